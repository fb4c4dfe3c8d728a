// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository 订单聚合的持久化端口。
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	Save(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByOrderNumber(ctx context.Context, number string) (*Order, error)
	FindByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)
}
