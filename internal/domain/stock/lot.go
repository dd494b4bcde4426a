package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms/backend/internal/domain/shared"
)

// Lot represents a batch of stock tied to a single receiving document line.
// It carries the receipt cost and optional expiry used for FEFO selection.
// Lots are never deleted, even when fully depleted, so historical
// consumptions can always be costed back to their source receipt.
type Lot struct {
	shared.BaseEntity
	StockLevelID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ItemID           uuid.UUID       `gorm:"type:uuid;not null;index:idx_lot_item_warehouse,priority:1"`
	WarehouseID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_lot_item_warehouse,priority:2"`
	QtyReceived      decimal.Decimal `gorm:"type:decimal(18,4);not null"` // Immutable original quantity
	QtyAvailable     decimal.Decimal `gorm:"type:decimal(18,4);not null"` // Monotonically non-increasing
	UnitCost         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ReceivedAt       time.Time       `gorm:"type:timestamptz;not null;index"`
	ExpiryAt         *time.Time      `gorm:"type:timestamptz;index"` // nil = does not expire
	ProvenanceLineID string          `gorm:"type:varchar(100);not null"`
}

// TableName returns the table name for GORM
func (Lot) TableName() string {
	return "lots"
}

// NewLot creates a lot for a freshly received quantity
func NewLot(
	stockLevelID, itemID, warehouseID uuid.UUID,
	qty, unitCost decimal.Decimal,
	provenanceLineID string,
	receivedAt time.Time,
	expiryAt *time.Time,
) (*Lot, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Received quantity must be positive")
	}
	if unitCost.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Unit cost cannot be negative")
	}
	if provenanceLineID == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Provenance line ID is required")
	}

	return &Lot{
		BaseEntity:       shared.NewBaseEntity(),
		StockLevelID:     stockLevelID,
		ItemID:           itemID,
		WarehouseID:      warehouseID,
		QtyReceived:      qty,
		QtyAvailable:     qty,
		UnitCost:         unitCost,
		ReceivedAt:       receivedAt,
		ExpiryAt:         expiryAt,
		ProvenanceLineID: provenanceLineID,
	}, nil
}

// HasStock returns true if the lot still has available quantity
func (l *Lot) HasStock() bool {
	return l.QtyAvailable.GreaterThan(decimal.Zero)
}

// IsExpired returns true if the lot has passed its expiry date
func (l *Lot) IsExpired() bool {
	if l.ExpiryAt == nil {
		return false
	}
	return l.ExpiryAt.Before(time.Now())
}

// WillExpireWithin returns true if the lot expires within the given duration
func (l *Lot) WillExpireWithin(window time.Duration) bool {
	if l.ExpiryAt == nil {
		return false
	}
	return l.ExpiryAt.Before(time.Now().Add(window))
}

// Deduct reduces the available quantity. The quantity must not exceed what
// the lot holds; consumption planning caps draws before applying them.
func (l *Lot) Deduct(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError(shared.CodeInvalidQuantity, "Deduct quantity must be positive")
	}
	if qty.GreaterThan(l.QtyAvailable) {
		return shared.NewDomainError(shared.CodeInsufficientStock,
			"Deduct quantity exceeds lot availability")
	}

	l.QtyAvailable = l.QtyAvailable.Sub(qty)
	l.UpdatedAt = time.Now()
	return nil
}

// RemainingValue returns the value of the undepleted quantity
func (l *Lot) RemainingValue() decimal.Decimal {
	return l.QtyAvailable.Mul(l.UnitCost)
}
