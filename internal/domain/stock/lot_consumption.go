package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms/backend/internal/domain/shared"
)

// LotConsumption is an immutable record of a quantity drawn from a lot by a
// consuming document line. Once created it is never updated; corrections are
// made with new stock movements. The series of records for a lot allows the
// cost of any past issue to be reconstructed exactly.
type LotConsumption struct {
	shared.BaseEntity
	LotID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	StockLevelID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ConsumingLineID string          `gorm:"type:varchar(100);not null;index"`
	QtyConsumed     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitCostApplied decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ConsumedAt      time.Time       `gorm:"type:timestamptz;not null;index"`
}

// TableName returns the table name for GORM
func (LotConsumption) TableName() string {
	return "lot_consumptions"
}

// NewLotConsumption creates an audit record for a single lot draw
func NewLotConsumption(
	lotID, stockLevelID uuid.UUID,
	consumingLineID string,
	qtyConsumed, unitCostApplied decimal.Decimal,
) (*LotConsumption, error) {
	if lotID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Lot ID cannot be empty")
	}
	if consumingLineID == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Consuming line ID is required")
	}
	if qtyConsumed.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Consumed quantity must be positive")
	}
	if unitCostApplied.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Applied unit cost cannot be negative")
	}

	return &LotConsumption{
		BaseEntity:      shared.NewBaseEntity(),
		LotID:           lotID,
		StockLevelID:    stockLevelID,
		ConsumingLineID: consumingLineID,
		QtyConsumed:     qtyConsumed,
		UnitCostApplied: unitCostApplied,
		ConsumedAt:      time.Now(),
	}, nil
}

// TotalCost returns QtyConsumed * UnitCostApplied
func (c *LotConsumption) TotalCost() decimal.Decimal {
	return c.QtyConsumed.Mul(c.UnitCostApplied)
}
