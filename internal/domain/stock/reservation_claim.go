package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms/backend/internal/domain/shared"
)

// ReservationClaim records how much a single document line currently holds
// against a stock level's reserved quantity. It is the engine's memory of
// "how much did this line reserve", which makes releases exact after partial
// failures and lets an expiry sweep reclaim abandoned approvals.
type ReservationClaim struct {
	shared.BaseEntity
	StockLevelID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	SourceType   string          `gorm:"type:varchar(50);not null;index:idx_claim_src"`  // Document type, e.g. "mirv"
	SourceID     string          `gorm:"type:varchar(100);not null;index:idx_claim_src"` // Document line ID
	ExpireAt     time.Time       `gorm:"not null;index"`
	Released     bool            `gorm:"not null;default:false"` // Claim cancelled, quantity returned
	Consumed     bool            `gorm:"not null;default:false"` // Claim fulfilled by a consumption
	ReleasedAt   *time.Time      `gorm:"type:timestamptz"`
}

// TableName returns the table name for GORM
func (ReservationClaim) TableName() string {
	return "reservation_claims"
}

// NewReservationClaim creates a claim against a stock level
func NewReservationClaim(
	stockLevelID uuid.UUID,
	quantity decimal.Decimal,
	sourceType, sourceID string,
	expireAt time.Time,
) *ReservationClaim {
	return &ReservationClaim{
		BaseEntity:   shared.NewBaseEntity(),
		StockLevelID: stockLevelID,
		Quantity:     quantity,
		SourceType:   sourceType,
		SourceID:     sourceID,
		ExpireAt:     expireAt,
	}
}

// IsActive returns true if the claim still holds reserved quantity
func (c *ReservationClaim) IsActive() bool {
	return !c.Released && !c.Consumed
}

// IsExpired returns true if the claim has passed its expiry
func (c *ReservationClaim) IsExpired() bool {
	return time.Now().After(c.ExpireAt)
}

// Release marks the claim as cancelled
func (c *ReservationClaim) Release() {
	now := time.Now()
	c.Released = true
	c.ReleasedAt = &now
	c.UpdatedAt = now
}

// DrawDown lowers the held quantity after a partial consumption. The
// remainder stays active and can still be released or swept on expiry.
func (c *ReservationClaim) DrawDown(qty decimal.Decimal) {
	c.Quantity = c.Quantity.Sub(qty)
	c.UpdatedAt = time.Now()
}

// Consume marks the claim as fulfilled
func (c *ReservationClaim) Consume() {
	now := time.Now()
	c.Consumed = true
	c.ReleasedAt = &now
	c.UpdatedAt = now
}
