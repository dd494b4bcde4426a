package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wms/backend/internal/domain/approval"
	"github.com/wms/backend/internal/domain/document"
	"github.com/wms/backend/internal/domain/shared"
)

// GormThresholdRepository implements ThresholdRepository using GORM
type GormThresholdRepository struct {
	db *gorm.DB
}

// NewGormThresholdRepository creates a new GormThresholdRepository
func NewGormThresholdRepository(db *gorm.DB) *GormThresholdRepository {
	return &GormThresholdRepository{db: db}
}

// FindAll returns every configured threshold
func (r *GormThresholdRepository) FindAll(ctx context.Context) ([]approval.Threshold, error) {
	var thresholds []approval.Threshold
	if err := r.db.WithContext(ctx).
		Order("document_type ASC, min_amount ASC").
		Find(&thresholds).Error; err != nil {
		return nil, err
	}
	return thresholds, nil
}

// FindByDocumentType returns the thresholds of one document type
func (r *GormThresholdRepository) FindByDocumentType(ctx context.Context, docType document.Type) ([]approval.Threshold, error) {
	var thresholds []approval.Threshold
	if err := r.db.WithContext(ctx).
		Where("document_type = ?", docType).
		Order("min_amount ASC").
		Find(&thresholds).Error; err != nil {
		return nil, err
	}
	return thresholds, nil
}

// Save creates or updates a threshold
func (r *GormThresholdRepository) Save(ctx context.Context, threshold *approval.Threshold) error {
	return r.db.WithContext(ctx).Save(threshold).Error
}

// Delete removes a threshold
func (r *GormThresholdRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&approval.Threshold{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormThresholdRepository implements ThresholdRepository
var _ approval.ThresholdRepository = (*GormThresholdRepository)(nil)
