// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"atlas/internal/service/inventory/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInventoryRepository 是 domain.Repository 的 GORM 实现。
//
// Mutate 在一个事务里用 SELECT ... FOR UPDATE 锁住商品的台账行，
// 行锁粒度是单个商品：同一商品的并发写互斥，不同商品互不影响。
type GormInventoryRepository struct {
	db *gorm.DB
}

func NewGormInventoryRepository(db *gorm.DB) *GormInventoryRepository {
	return &GormInventoryRepository{db: db}
}

func (r *GormInventoryRepository) CreateInventory(ctx context.Context, inv *domain.Inventory) error {
	err := r.db.WithContext(ctx).Create(inv).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrapf(domain.ErrDuplicateInventory, "product %s sku %s", inv.ProductID, inv.SKU)
	}
	return err
}

func (r *GormInventoryRepository) InventoryByProductID(ctx context.Context, productID string) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrInventoryNotFound, "product %s", productID)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *GormInventoryRepository) InventoryBySKU(ctx context.Context, sku string) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrInventoryNotFound, "sku %s", sku)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *GormInventoryRepository) ListInventories(ctx context.Context, limit, offset int) ([]domain.Inventory, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []domain.Inventory
	err := r.db.WithContext(ctx).Order("product_id").Limit(limit).Offset(offset).Find(&out).Error
	return out, err
}

func (r *GormInventoryRepository) LowStock(ctx context.Context) ([]domain.Inventory, error) {
	var out []domain.Inventory
	err := r.db.WithContext(ctx).
		Where("quantity - reserved <= low_stock_threshold").
		Order("product_id").Find(&out).Error
	return out, err
}

func (r *GormInventoryRepository) Mutate(ctx context.Context, productID string, fn func(tx domain.TxStore, inv *domain.Inventory) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv domain.Inventory
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ?", productID).First(&inv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(domain.ErrInventoryNotFound, "product %s", productID)
		}
		if err != nil {
			return err
		}
		if err := fn(&gormTxStore{tx: tx}, &inv); err != nil {
			return err
		}
		return tx.Save(&inv).Error
	})
}

func (r *GormInventoryRepository) ReservationsByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	var out []domain.Reservation
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("product_id").Find(&out).Error
	return out, err
}

func (r *GormInventoryRepository) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Reservation
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", domain.ReservationStatusReserved, now).
		Order("expires_at").Limit(limit).Find(&out).Error
	return out, err
}

func (r *GormInventoryRepository) MovementsByProductID(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []domain.StockMovement
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).
		Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// gormTxStore 把行锁事务暴露给应用层的变更函数。
type gormTxStore struct {
	tx *gorm.DB
}

func (s *gormTxStore) ReservationByID(ctx context.Context, id string) (*domain.Reservation, error) {
	var r domain.Reservation
	err := s.tx.WithContext(ctx).Where("id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *gormTxStore) CreateReservation(ctx context.Context, r *domain.Reservation) error {
	err := s.tx.WithContext(ctx).Create(r).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrapf(domain.ErrDuplicateReservation, "order %s product %s", r.OrderID, r.ProductID)
	}
	return err
}

func (s *gormTxStore) UpdateReservation(ctx context.Context, r *domain.Reservation) error {
	return s.tx.WithContext(ctx).Save(r).Error
}

func (s *gormTxStore) CreateMovement(ctx context.Context, m *domain.StockMovement) error {
	return s.tx.WithContext(ctx).Create(m).Error
}
