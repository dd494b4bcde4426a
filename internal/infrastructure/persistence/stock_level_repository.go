package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/domain/stock"
)

// GormStockLevelRepository implements StockLevelRepository using GORM.
// The ForUpdate finders take a SELECT ... FOR UPDATE row lock on the ledger
// entry, which serializes every mutation of one (item, warehouse) key for
// the duration of the enclosing transaction.
type GormStockLevelRepository struct {
	db *gorm.DB
}

// NewGormStockLevelRepository creates a new GormStockLevelRepository
func NewGormStockLevelRepository(db *gorm.DB) *GormStockLevelRepository {
	return &GormStockLevelRepository{db: db}
}

// FindByID finds a stock level by its ID with lots and claims loaded
func (r *GormStockLevelRepository) FindByID(ctx context.Context, id uuid.UUID) (*stock.StockLevel, error) {
	var level stock.StockLevel
	if err := r.withAssociations(ctx).First(&level, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &level, nil
}

// FindByIDForUpdate finds a stock level by its ID holding a row lock for the
// remainder of the enclosing transaction
func (r *GormStockLevelRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*stock.StockLevel, error) {
	var level stock.StockLevel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "stock_levels"}}).
		First(&level, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadChildren(ctx, &level); err != nil {
		return nil, err
	}
	return &level, nil
}

// FindByItemAndWarehouse finds the ledger entry for a key, read-only
func (r *GormStockLevelRepository) FindByItemAndWarehouse(ctx context.Context, itemID, warehouseID uuid.UUID) (*stock.StockLevel, error) {
	return r.findByKey(ctx, itemID, warehouseID, false)
}

// FindByItemAndWarehouseForUpdate finds the ledger entry holding a per-key
// write lock for the remainder of the enclosing transaction
func (r *GormStockLevelRepository) FindByItemAndWarehouseForUpdate(ctx context.Context, itemID, warehouseID uuid.UUID) (*stock.StockLevel, error) {
	return r.findByKey(ctx, itemID, warehouseID, true)
}

// GetOrCreateForUpdate returns the ledger entry for a key, creating an empty
// one on first receipt, locked for update
func (r *GormStockLevelRepository) GetOrCreateForUpdate(ctx context.Context, itemID, warehouseID uuid.UUID) (*stock.StockLevel, error) {
	level, err := r.findByKey(ctx, itemID, warehouseID, true)
	if err == nil {
		return level, nil
	}
	if !shared.HasCode(err, shared.CodeNotFound) {
		return nil, err
	}

	created, err := stock.NewStockLevel(itemID, warehouseID)
	if err != nil {
		return nil, err
	}

	// ON CONFLICT handles the race between two first receipts of the same key
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}, {Name: "warehouse_id"}},
			DoNothing: true,
		}).
		Omit("Lots", "Claims").
		Create(created).Error; err != nil {
		return nil, err
	}

	return r.findByKey(ctx, itemID, warehouseID, true)
}

// FindByWarehouse lists ledger entries in a warehouse
func (r *GormStockLevelRepository) FindByWarehouse(ctx context.Context, warehouseID uuid.UUID, filter shared.Filter) ([]stock.StockLevel, error) {
	var levels []stock.StockLevel
	query := applyFilter(
		r.withAssociations(ctx).Model(&stock.StockLevel{}).
			Where("warehouse_id = ?", warehouseID),
		filter,
		StockLevelSortFields,
	)
	if err := query.Find(&levels).Error; err != nil {
		return nil, err
	}
	return levels, nil
}

// Save persists the aggregate including changed lots and claims
func (r *GormStockLevelRepository) Save(ctx context.Context, level *stock.StockLevel) error {
	if err := r.db.WithContext(ctx).Omit("Lots", "Claims").Save(level).Error; err != nil {
		return err
	}
	return r.saveChildren(ctx, level)
}

// SaveWithLock persists with an optimistic version check. Mutations may bump
// the aggregate version more than once per transaction, so the guard is
// "stored version is still behind mine" rather than an exact predecessor
// match. A stale aggregate surfaces as CONCURRENCY_CONFLICT.
func (r *GormStockLevelRepository) SaveWithLock(ctx context.Context, level *stock.StockLevel) error {
	result := r.db.WithContext(ctx).
		Model(&stock.StockLevel{}).
		Where("id = ? AND version < ?", level.ID, level.Version).
		Updates(map[string]interface{}{
			"qty_on_hand":  level.QtyOnHand,
			"qty_reserved": level.QtyReserved,
			"unit_cost":    level.UnitCost,
			"version":      level.Version,
			"updated_at":   level.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return r.saveChildren(ctx, level)
}

func (r *GormStockLevelRepository) saveChildren(ctx context.Context, level *stock.StockLevel) error {
	if len(level.Lots) > 0 {
		if err := r.db.WithContext(ctx).Save(&level.Lots).Error; err != nil {
			return err
		}
	}
	if len(level.Claims) > 0 {
		if err := r.db.WithContext(ctx).Save(&level.Claims).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *GormStockLevelRepository) findByKey(ctx context.Context, itemID, warehouseID uuid.UUID, forUpdate bool) (*stock.StockLevel, error) {
	query := r.db.WithContext(ctx)
	if forUpdate {
		// Lock only the ledger row; lots and claims are loaded afterwards
		// under the protection of that lock
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "stock_levels"}})
	}

	var level stock.StockLevel
	if err := query.
		Where("item_id = ? AND warehouse_id = ?", itemID, warehouseID).
		First(&level).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	if err := r.loadChildren(ctx, &level); err != nil {
		return nil, err
	}
	return &level, nil
}

func (r *GormStockLevelRepository) loadChildren(ctx context.Context, level *stock.StockLevel) error {
	if err := r.db.WithContext(ctx).
		Where("stock_level_id = ?", level.ID).
		Order("received_at ASC").
		Find(&level.Lots).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where("stock_level_id = ?", level.ID).
		Order("created_at ASC").
		Find(&level.Claims).Error
}

func (r *GormStockLevelRepository) withAssociations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Lots").Preload("Claims")
}

// applyFilter applies pagination and whitelisted ordering to a query
func applyFilter(query *gorm.DB, filter shared.Filter, allowedFields map[string]bool) *gorm.DB {
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	orderBy := ValidateSortField(filter.OrderBy, allowedFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	return query.Order(orderBy + " " + orderDir)
}

// Ensure GormStockLevelRepository implements StockLevelRepository
var _ stock.StockLevelRepository = (*GormStockLevelRepository)(nil)
