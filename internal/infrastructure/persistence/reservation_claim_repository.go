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

// GormReservationClaimRepository implements the cross-aggregate claim
// queries using GORM. Claim state transitions go through the StockLevel
// aggregate; this repository only locates claims.
type GormReservationClaimRepository struct {
	db *gorm.DB
}

// NewGormReservationClaimRepository creates a new GormReservationClaimRepository
func NewGormReservationClaimRepository(db *gorm.DB) *GormReservationClaimRepository {
	return &GormReservationClaimRepository{db: db}
}

// FindByID finds a claim by its ID
func (r *GormReservationClaimRepository) FindByID(ctx context.Context, id uuid.UUID) (*stock.ReservationClaim, error) {
	var claim stock.ReservationClaim
	if err := r.db.WithContext(ctx).First(&claim, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &claim, nil
}

// FindBySource lists claims held for a source document
func (r *GormReservationClaimRepository) FindBySource(ctx context.Context, sourceType, sourceID string) ([]stock.ReservationClaim, error) {
	var claims []stock.ReservationClaim
	if err := r.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Order("created_at ASC").
		Find(&claims).Error; err != nil {
		return nil, err
	}
	return claims, nil
}

// FindExpired lists active claims past their expiry
func (r *GormReservationClaimRepository) FindExpired(ctx context.Context) ([]stock.ReservationClaim, error) {
	var claims []stock.ReservationClaim
	if err := r.db.WithContext(ctx).
		Where("released = ? AND consumed = ? AND expire_at < ?", false, false, time.Now()).
		Order("expire_at ASC").
		Find(&claims).Error; err != nil {
		return nil, err
	}
	return claims, nil
}

// Ensure GormReservationClaimRepository implements ReservationClaimRepository
var _ stock.ReservationClaimRepository = (*GormReservationClaimRepository)(nil)
