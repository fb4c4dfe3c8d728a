// internal/service/inventory/application/service.go
package application

import (
	"context"
	"sort"
	"time"

	"atlas/internal/events"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/inventory/domain"
	"atlas/internal/service/inventory/port"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const sourceName = "inventory-service"

// ReservationManager 编排台账、预留、流水这三张表上的所有业务操作。
//
// 写路径全部走 repo.Mutate：同一商品的并发修改被行锁串行化，
// 预留、流水和台账变更落在同一个事务里。事件只在事务提交之后发布。
type ReservationManager struct {
	repo      domain.Repository
	publisher port.EventPublisher
	alert     domain.AlertRule
	ttl       time.Duration
	tracer    trace.Tracer
}

func NewReservationManager(repo domain.Repository, publisher port.EventPublisher, alert domain.AlertRule, ttl time.Duration) *ReservationManager {
	return &ReservationManager{
		repo:      repo,
		publisher: publisher,
		alert:     alert,
		ttl:       ttl,
		tracer:    otel.Tracer("inventory.application"),
	}
}

// Reserve 为一个订单原子地预留一批行项目。
//
// 行项目按 productId 排序后逐个加锁，杜绝交叉订单的死锁；
// 任何一项不足时，本次已建立的预留全部补偿释放，整批失败。
// 同一订单的重复请求（至少一次投递）直接返回已有预留。
func (s *ReservationManager) Reserve(ctx context.Context, orderID string, items []domain.ReserveItem) ([]domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Reserve")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	merged, err := mergeItems(items)
	if err != nil {
		reservationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	existing, err := s.repo.ReservationsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		logger.Ctx(ctx).Info().Str("order_id", orderID).
			Msg("reservation request replayed, returning existing reservations")
		return existing, nil
	}

	expiresAt := time.Now().UTC().Add(s.ttl)
	created := make([]domain.Reservation, 0, len(merged))
	snapshots := make([]domain.Inventory, 0, len(merged))

	for _, it := range merged {
		var (
			r    *domain.Reservation
			snap domain.Inventory
		)
		err := s.repo.Mutate(ctx, it.ProductID, func(tx domain.TxStore, inv *domain.Inventory) error {
			if inv.Available() < it.Quantity {
				return &domain.InsufficientStockError{
					ProductID: it.ProductID,
					Requested: it.Quantity,
					Available: inv.Available(),
				}
			}
			inv.Reserved += it.Quantity
			if err := inv.CheckInvariant(); err != nil {
				return err
			}
			r = domain.NewReservation(orderID, it.ProductID, inv.SKU, it.Quantity, expiresAt)
			if err := tx.CreateReservation(ctx, r); err != nil {
				return err
			}
			m := domain.NewMovement(it.ProductID, inv.SKU, domain.MovementTypeReserve, it.Quantity, orderID, "reservation created")
			if err := tx.CreateMovement(ctx, m); err != nil {
				return err
			}
			snap = *inv
			return nil
		})
		if err != nil {
			s.rollbackReservations(ctx, orderID, created)
			if errors.Is(err, domain.ErrInsufficientStock) {
				reservationsTotal.WithLabelValues("insufficient_stock").Inc()
				logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).
					Str("product_id", it.ProductID).Msg("reservation rejected, compensated partial batch")
			} else {
				reservationsTotal.WithLabelValues("error").Inc()
			}
			return nil, err
		}
		created = append(created, *r)
		snapshots = append(snapshots, snap)
	}

	reservationsTotal.WithLabelValues("reserved").Inc()
	logger.Ctx(ctx).Info().Str("order_id", orderID).Int("items", len(created)).
		Time("expires_at", expiresAt).Msg("✅ stock reserved")

	s.publishForOrder(ctx, events.TypeInventoryReserved, orderID, events.InventoryReserved{
		OrderID:    orderID,
		ReservedAt: time.Now().UTC(),
	})
	for _, snap := range snapshots {
		s.maybePublishStockLow(ctx, snap)
	}
	return created, nil
}

// Confirm 在支付成功后把订单的预留转为实际出库。
// 台账 Quantity 和 Reserved 同减，可售数量不变。
// 全部已确认的重复调用是 no-op；任何一条已释放/过期则整单确认失败。
func (s *ReservationManager) Confirm(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	rs, err := s.repo.ReservationsByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if len(rs) == 0 {
		return errors.Wrapf(domain.ErrReservationNotFound, "order %s", orderID)
	}

	allConfirmed := true
	for _, r := range rs {
		switch r.Status {
		case domain.ReservationStatusConfirmed:
		case domain.ReservationStatusReleased, domain.ReservationStatusExpired:
			return errors.Wrapf(domain.ErrReservationExpired,
				"order %s product %s is %s", orderID, r.ProductID, r.Status)
		default:
			allConfirmed = false
		}
	}
	if allConfirmed {
		logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("confirm replayed, order already confirmed")
		return nil
	}

	now := time.Now().UTC()
	for _, r := range rs {
		if r.Status == domain.ReservationStatusConfirmed {
			continue
		}
		err := s.repo.Mutate(ctx, r.ProductID, func(tx domain.TxStore, inv *domain.Inventory) error {
			cur, err := tx.ReservationByID(ctx, r.ID)
			if err != nil {
				return err
			}
			if cur.Status == domain.ReservationStatusConfirmed {
				return nil
			}
			if err := cur.MarkConfirmed(now); err != nil {
				return errors.Wrapf(err, "order %s product %s", orderID, r.ProductID)
			}
			inv.Quantity -= cur.Quantity
			inv.Reserved -= cur.Quantity
			if err := inv.CheckInvariant(); err != nil {
				return err
			}
			if err := tx.UpdateReservation(ctx, cur); err != nil {
				return err
			}
			m := domain.NewMovement(r.ProductID, cur.SKU, domain.MovementTypeOut, cur.Quantity, orderID, "reservation confirmed")
			return tx.CreateMovement(ctx, m)
		})
		if err != nil {
			return err
		}
		reservationTransitionsTotal.WithLabelValues("CONFIRMED").Inc()
	}

	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("✅ reservation confirmed, stock deducted")
	s.publishForOrder(ctx, events.TypeInventoryConfirmed, orderID, events.InventoryConfirmed{
		OrderID:   orderID,
		Timestamp: now,
	})
	return nil
}

// Release 补偿释放一个订单的全部活跃预留（取消、支付失败）。
// 已到终态的预留跳过，重复调用是 no-op。
func (s *ReservationManager) Release(ctx context.Context, orderID, reason string) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Release")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	rs, err := s.repo.ReservationsByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if len(rs) == 0 {
		return errors.Wrapf(domain.ErrReservationNotFound, "order %s", orderID)
	}

	now := time.Now().UTC()
	released := 0
	for _, r := range rs {
		if r.Terminal() {
			continue
		}
		var did bool
		err := s.repo.Mutate(ctx, r.ProductID, func(tx domain.TxStore, inv *domain.Inventory) error {
			cur, err := tx.ReservationByID(ctx, r.ID)
			if err != nil {
				return err
			}
			if cur.Terminal() {
				return nil
			}
			if err := cur.MarkReleased(now); err != nil {
				return err
			}
			inv.Reserved -= cur.Quantity
			if err := inv.CheckInvariant(); err != nil {
				return err
			}
			if err := tx.UpdateReservation(ctx, cur); err != nil {
				return err
			}
			m := domain.NewMovement(r.ProductID, cur.SKU, domain.MovementTypeRelease, cur.Quantity, orderID, reason)
			if err := tx.CreateMovement(ctx, m); err != nil {
				return err
			}
			did = true
			return nil
		})
		if err != nil {
			return err
		}
		if did {
			released++
			reservationTransitionsTotal.WithLabelValues("RELEASED").Inc()
		}
	}

	if released == 0 {
		logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("release replayed, nothing to do")
		return nil
	}

	logger.Ctx(ctx).Info().Str("order_id", orderID).Int("released", released).
		Str("reason", reason).Msg("stock released")
	s.publishForOrder(ctx, events.TypeInventoryReleased, orderID, events.InventoryReleased{
		OrderID:   orderID,
		Timestamp: now,
	})
	return nil
}

// ExpireOverdue 清扫一批超过 TTL 仍处于 RESERVED 的预留。
// 每条候选都在行锁下复核状态和期限，并发清扫器不会重复归还份额。
// 返回本次实际转为 EXPIRED 的条数。
func (s *ReservationManager) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.ExpireOverdue")
	defer span.End()
	timer := prometheus.NewTimer(expirySweepDuration)
	defer timer.ObserveDuration()

	candidates, err := s.repo.ExpiredReservations(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	touchedOrders := make(map[string]struct{})
	for _, r := range candidates {
		var did bool
		err := s.repo.Mutate(ctx, r.ProductID, func(tx domain.TxStore, inv *domain.Inventory) error {
			cur, err := tx.ReservationByID(ctx, r.ID)
			if err != nil {
				return err
			}
			// 候选可能在排队等锁期间被 confirm/release，复核后再动台账。
			if !cur.Active() || !cur.IsExpired(now) {
				return nil
			}
			if err := cur.MarkExpired(now); err != nil {
				return err
			}
			inv.Reserved -= cur.Quantity
			if err := inv.CheckInvariant(); err != nil {
				return err
			}
			if err := tx.UpdateReservation(ctx, cur); err != nil {
				return err
			}
			m := domain.NewMovement(r.ProductID, cur.SKU, domain.MovementTypeRelease, cur.Quantity, r.OrderID, "reservation expired")
			if err := tx.CreateMovement(ctx, m); err != nil {
				return err
			}
			did = true
			return nil
		})
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("reservation_id", r.ID).
				Str("product_id", r.ProductID).Msg("failed to expire reservation, will retry next sweep")
			continue
		}
		if did {
			expired++
			touchedOrders[r.OrderID] = struct{}{}
			reservationTransitionsTotal.WithLabelValues("EXPIRED").Inc()
		}
	}

	for orderID := range touchedOrders {
		s.publishForOrder(ctx, events.TypeInventoryReleased, orderID, events.InventoryReleased{
			OrderID:   orderID,
			Timestamp: now,
		})
	}
	if expired > 0 {
		logger.Ctx(ctx).Info().Int("expired", expired).Int("orders", len(touchedOrders)).
			Msg("expiry sweep released overdue reservations")
	}
	return expired, nil
}

// CreateInventory 为一个新商品建立台账行。初始数量走一条 IN 流水入账，
// 保证流水与台账从第一天起对得上。
func (s *ReservationManager) CreateInventory(ctx context.Context, productID, sku string, quantity, threshold int, warehouseID string) (*domain.Inventory, error) {
	if quantity < 0 || threshold < 0 {
		return nil, errors.Wrap(domain.ErrInvalidQuantity, "quantity and threshold must not be negative")
	}
	if warehouseID == "" {
		warehouseID = "DEFAULT"
	}
	inv := &domain.Inventory{
		ID:                uuid.New().String(),
		ProductID:         productID,
		SKU:               sku,
		LowStockThreshold: threshold,
		WarehouseID:       warehouseID,
	}
	if err := s.repo.CreateInventory(ctx, inv); err != nil {
		return nil, err
	}
	if quantity > 0 {
		return s.AddStock(ctx, productID, quantity, "", "initial stock")
	}
	logger.Ctx(ctx).Info().Str("product_id", productID).Str("sku", sku).Msg("inventory created")
	return inv, nil
}

// AddStock 入库。
func (s *ReservationManager) AddStock(ctx context.Context, productID string, quantity int, reference, reason string) (*domain.Inventory, error) {
	if quantity <= 0 {
		return nil, errors.Wrapf(domain.ErrInvalidQuantity, "add stock for product %s: %d", productID, quantity)
	}
	var snap domain.Inventory
	err := s.repo.Mutate(ctx, productID, func(tx domain.TxStore, inv *domain.Inventory) error {
		inv.Quantity += quantity
		if err := inv.CheckInvariant(); err != nil {
			return err
		}
		m := domain.NewMovement(productID, inv.SKU, domain.MovementTypeIn, quantity, reference, reason)
		if err := tx.CreateMovement(ctx, m); err != nil {
			return err
		}
		snap = *inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("product_id", productID).Int("quantity", quantity).
		Int("on_hand", snap.Quantity).Msg("stock added")
	return &snap, nil
}

// Adjust 人工盘点，把在库数量修正为 newQuantity。
// 修正不能低于当前已预留份额，否则台账不变量被破坏。
func (s *ReservationManager) Adjust(ctx context.Context, productID string, newQuantity int, reason string) (*domain.Inventory, error) {
	if newQuantity < 0 {
		return nil, errors.Wrapf(domain.ErrInvalidAdjustment, "product %s: negative quantity %d", productID, newQuantity)
	}
	var (
		snap  domain.Inventory
		delta int
	)
	err := s.repo.Mutate(ctx, productID, func(tx domain.TxStore, inv *domain.Inventory) error {
		if newQuantity < inv.Reserved {
			return errors.Wrapf(domain.ErrInvalidAdjustment,
				"product %s: new quantity %d below reserved %d", productID, newQuantity, inv.Reserved)
		}
		delta = newQuantity - inv.Quantity
		if delta == 0 {
			snap = *inv
			return nil
		}
		inv.Quantity = newQuantity
		if err := inv.CheckInvariant(); err != nil {
			return err
		}
		m := domain.NewMovement(productID, inv.SKU, domain.MovementTypeAdjust, delta, "", reason)
		if err := tx.CreateMovement(ctx, m); err != nil {
			return err
		}
		snap = *inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("product_id", productID).Int("delta", delta).
		Int("on_hand", snap.Quantity).Str("reason", reason).Msg("stock adjusted")
	if delta < 0 {
		s.maybePublishStockLow(ctx, snap)
	}
	return &snap, nil
}

// Inventory 按商品 ID 查询台账行。
func (s *ReservationManager) Inventory(ctx context.Context, productID string) (*domain.Inventory, error) {
	return s.repo.InventoryByProductID(ctx, productID)
}

// InventoryBySKU 按 SKU 查询台账行。
func (s *ReservationManager) InventoryBySKU(ctx context.Context, sku string) (*domain.Inventory, error) {
	return s.repo.InventoryBySKU(ctx, sku)
}

// ListInventories 分页列出台账。
func (s *ReservationManager) ListInventories(ctx context.Context, limit, offset int) ([]domain.Inventory, error) {
	return s.repo.ListInventories(ctx, limit, offset)
}

// LowStock 列出可售数量低于阈值的商品。
func (s *ReservationManager) LowStock(ctx context.Context) ([]domain.Inventory, error) {
	return s.repo.LowStock(ctx)
}

// Reservations 查询一个订单名下的全部预留。
func (s *ReservationManager) Reservations(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return s.repo.ReservationsByOrderID(ctx, orderID)
}

// Movements 查询一个商品最近的流水。
func (s *ReservationManager) Movements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	return s.repo.MovementsByProductID(ctx, productID, limit)
}

// rollbackReservations 补偿本批次已建立的预留。补偿失败只能告警，
// 残留的份额最终由过期清扫兜底归还。
func (s *ReservationManager) rollbackReservations(ctx context.Context, orderID string, created []domain.Reservation) {
	now := time.Now().UTC()
	for i := range created {
		r := created[i]
		err := s.repo.Mutate(ctx, r.ProductID, func(tx domain.TxStore, inv *domain.Inventory) error {
			cur, err := tx.ReservationByID(ctx, r.ID)
			if err != nil {
				return err
			}
			if cur.Terminal() {
				return nil
			}
			if err := cur.MarkReleased(now); err != nil {
				return err
			}
			inv.Reserved -= cur.Quantity
			if err := inv.CheckInvariant(); err != nil {
				return err
			}
			if err := tx.UpdateReservation(ctx, cur); err != nil {
				return err
			}
			m := domain.NewMovement(r.ProductID, cur.SKU, domain.MovementTypeRelease, cur.Quantity, orderID, "compensated partial reservation")
			return tx.CreateMovement(ctx, m)
		})
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Str("product_id", r.ProductID).
				Msg("🚨 CRITICAL: failed to compensate reservation, expiry sweep will reclaim it")
		}
	}
}

func (s *ReservationManager) publishForOrder(ctx context.Context, t events.Type, orderID string, payload interface{}) {
	env, err := events.NewEnvelope(t, sourceName, orderID, payload)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_type", string(t)).Msg("failed to build event envelope")
		return
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		// 状态已落库，事件发不出去靠上游重试/清扫收敛，这里只能大声记录。
		logger.Ctx(ctx).Error().Err(err).Str("event_type", string(t)).
			Str("order_id", orderID).Msg("🚨 failed to publish event after commit")
	}
}

func (s *ReservationManager) maybePublishStockLow(ctx context.Context, inv domain.Inventory) {
	if s.alert == nil {
		return
	}
	hit, err := s.alert.ShouldAlert(&inv)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", inv.ProductID).Msg("alert rule evaluation failed")
		return
	}
	if !hit {
		return
	}
	env, err := events.NewEnvelope(events.TypeStockLow, sourceName, inv.ProductID, events.StockLow{
		ProductID: inv.ProductID,
		SKU:       inv.SKU,
		Available: inv.Available(),
		Threshold: inv.LowStockThreshold,
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to build StockLow envelope")
		return
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", inv.ProductID).Msg("failed to publish StockLow alert")
		return
	}
	stockLowAlertsTotal.Inc()
}

// mergeItems 合并重复商品并做基础校验，返回按 productId 排序的行项目。
// 排序决定了加锁顺序，交叉订单因此不会死锁。
func mergeItems(items []domain.ReserveItem) ([]domain.ReserveItem, error) {
	if len(items) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidQuantity, "no items to reserve")
	}
	byProduct := make(map[string]*domain.ReserveItem, len(items))
	order := make([]string, 0, len(items))
	for _, it := range items {
		if it.ProductID == "" {
			return nil, errors.Wrap(domain.ErrInvalidQuantity, "item missing productId")
		}
		if it.Quantity <= 0 {
			return nil, errors.Wrapf(domain.ErrInvalidQuantity, "product %s: %d", it.ProductID, it.Quantity)
		}
		if cur, ok := byProduct[it.ProductID]; ok {
			cur.Quantity += it.Quantity
			continue
		}
		cp := it
		byProduct[it.ProductID] = &cp
		order = append(order, it.ProductID)
	}
	sort.Strings(order)
	merged := make([]domain.ReserveItem, 0, len(order))
	for _, pid := range order {
		merged = append(merged, *byProduct[pid])
	}
	return merged, nil
}
