package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/domain/stock"
)

// GormLotRepository implements the read-side lot queries using GORM
type GormLotRepository struct {
	db *gorm.DB
}

// NewGormLotRepository creates a new GormLotRepository
func NewGormLotRepository(db *gorm.DB) *GormLotRepository {
	return &GormLotRepository{db: db}
}

// FindByID finds a lot by its ID
func (r *GormLotRepository) FindByID(ctx context.Context, id uuid.UUID) (*stock.Lot, error) {
	var lot stock.Lot
	if err := r.db.WithContext(ctx).First(&lot, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &lot, nil
}

// FindByStockLevel lists lots backing one ledger entry, oldest receipt first
func (r *GormLotRepository) FindByStockLevel(ctx context.Context, stockLevelID uuid.UUID) ([]stock.Lot, error) {
	var lots []stock.Lot
	if err := r.db.WithContext(ctx).
		Where("stock_level_id = ?", stockLevelID).
		Order("received_at ASC").
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// FindAvailable lists lots for a key that still have quantity
func (r *GormLotRepository) FindAvailable(ctx context.Context, itemID, warehouseID uuid.UUID) ([]stock.Lot, error) {
	var lots []stock.Lot
	if err := r.db.WithContext(ctx).
		Where("item_id = ? AND warehouse_id = ? AND qty_available > 0", itemID, warehouseID).
		Order("received_at ASC").
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// FindExpiringBefore lists undepleted lots expiring before the deadline
func (r *GormLotRepository) FindExpiringBefore(ctx context.Context, deadline time.Time, filter shared.Filter) ([]stock.Lot, error) {
	var lots []stock.Lot
	query := r.db.WithContext(ctx).Model(&stock.Lot{}).
		Where("qty_available > 0 AND expiry_at IS NOT NULL AND expiry_at < ?", deadline)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.Limit())
	}

	if err := query.Order("expiry_at ASC").Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// Ensure GormLotRepository implements LotRepository
var _ stock.LotRepository = (*GormLotRepository)(nil)
