// internal/service/inventory/application/sweeper.go
package application

import (
	"context"
	"time"

	"atlas/internal/pkg/logger"
)

// SweepLock 清扫周期的互斥端口，由 ZooKeeper 分布式锁实现。
// 清扫本身是幂等的，锁只是避免多实例重复扫同一批预留。
type SweepLock interface {
	TryLock() (bool, error)
	Unlock() error
}

// ExpirySweeper 周期性地把超过 TTL 的预留转为 EXPIRED 并归还台账份额。
// 作为 bootstrap.Runner 随服务一起启动。
type ExpirySweeper struct {
	svc      *ReservationManager
	lock     SweepLock
	interval time.Duration
	batch    int
}

// NewExpirySweeper lock 可以为 nil（单实例部署或测试）。
func NewExpirySweeper(svc *ReservationManager, lock SweepLock, interval time.Duration, batch int) *ExpirySweeper {
	return &ExpirySweeper{svc: svc, lock: lock, interval: interval, batch: batch}
}

// Run 阻塞运行直到 ctx 取消。
func (w *ExpirySweeper) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Dur("interval", w.interval).Int("batch", w.batch).
		Msg("expiry sweeper started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("expiry sweeper stopped")
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpirySweeper) sweep(ctx context.Context) {
	if w.lock != nil {
		ok, err := w.lock.TryLock()
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("sweep lock unavailable, skipping this cycle")
			return
		}
		if !ok {
			logger.Ctx(ctx).Debug().Msg("another instance holds the sweep lock, skipping")
			return
		}
		defer func() {
			if err := w.lock.Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("failed to release sweep lock")
			}
		}()
	}

	if _, err := w.svc.ExpireOverdue(ctx, time.Now().UTC(), w.batch); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("expiry sweep failed")
	}
}
