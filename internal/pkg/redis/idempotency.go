// internal/pkg/redis/idempotency.go
package redis

import (
	"context"
	"time"
)

// IdempotencyStore 用 redis 实现消费端按 eventId 去重。
// 标记只在事件处理成功之后写入：崩溃窗口里最多重复处理一次
// （处理器本身幂等），不会把没有生效的事件当成重复吃掉。
// 键带 TTL：去重窗口只需要覆盖 broker 的重投递窗口，不用永久保留。
type IdempotencyStore struct {
	client *Client
	prefix string
	ttl    time.Duration
}

func NewIdempotencyStore(client *Client, prefix string, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

// Seen 查询 eventID 是否已处理完成。
func (s *IdempotencyStore) Seen(ctx context.Context, eventID string) (bool, error) {
	return s.client.Exists(ctx, s.prefix+eventID)
}

// Mark 在处理成功后记录 eventID。SETNX 保证并发的重复投递只留一个标记。
func (s *IdempotencyStore) Mark(ctx context.Context, eventID string) error {
	_, err := s.client.SetNX(ctx, s.prefix+eventID, "1", s.ttl)
	return err
}
