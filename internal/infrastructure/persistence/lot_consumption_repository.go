package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wms/backend/internal/domain/stock"
)

// GormLotConsumptionRepository implements the append-only consumption audit
// trail using GORM. Records are only ever created, never updated or deleted.
type GormLotConsumptionRepository struct {
	db *gorm.DB
}

// NewGormLotConsumptionRepository creates a new GormLotConsumptionRepository
func NewGormLotConsumptionRepository(db *gorm.DB) *GormLotConsumptionRepository {
	return &GormLotConsumptionRepository{db: db}
}

// Create appends a consumption record
func (r *GormLotConsumptionRepository) Create(ctx context.Context, record *stock.LotConsumption) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// CreateBatch appends multiple records in one statement
func (r *GormLotConsumptionRepository) CreateBatch(ctx context.Context, records []*stock.LotConsumption) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(records).Error
}

// FindByLot lists consumption records for a lot, oldest first
func (r *GormLotConsumptionRepository) FindByLot(ctx context.Context, lotID uuid.UUID) ([]stock.LotConsumption, error) {
	var records []stock.LotConsumption
	if err := r.db.WithContext(ctx).
		Where("lot_id = ?", lotID).
		Order("consumed_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindByConsumingLine lists records written for a document line
func (r *GormLotConsumptionRepository) FindByConsumingLine(ctx context.Context, consumingLineID string) ([]stock.LotConsumption, error) {
	var records []stock.LotConsumption
	if err := r.db.WithContext(ctx).
		Where("consuming_line_id = ?", consumingLineID).
		Order("consumed_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Ensure GormLotConsumptionRepository implements LotConsumptionRepository
var _ stock.LotConsumptionRepository = (*GormLotConsumptionRepository)(nil)
