package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms/backend/internal/domain/stock"
)

// StockKey identifies one ledger entry
type StockKey struct {
	ItemID      uuid.UUID `json:"item_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
}

// ReceiveStockLine is one receiving document line to post
type ReceiveStockLine struct {
	ItemID           uuid.UUID       `json:"item_id"`
	WarehouseID      uuid.UUID       `json:"warehouse_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	ProvenanceLineID string          `json:"provenance_line_id"`
	ExpiryAt         *time.Time      `json:"expiry_at,omitempty"`
}

// ReceiveStockRequest posts the lines of one receiving document
type ReceiveStockRequest struct {
	Lines []ReceiveStockLine `json:"lines"`
}

// ReceiveStockLineResult reports the lot created for one line
type ReceiveStockLineResult struct {
	StockLevelID uuid.UUID       `json:"stock_level_id"`
	LotID        uuid.UUID       `json:"lot_id"`
	ItemID       uuid.UUID       `json:"item_id"`
	WarehouseID  uuid.UUID       `json:"warehouse_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	QtyOnHand    decimal.Decimal `json:"qty_on_hand"`
	UnitCost     decimal.Decimal `json:"unit_cost"` // Moving average after the receipt
}

// ReceiveStockResult reports the outcome of posting a receiving document
type ReceiveStockResult struct {
	Lines []ReceiveStockLineResult `json:"lines"`
}

// ReserveStockLine is one document line to reserve
type ReserveStockLine struct {
	ItemID      uuid.UUID       `json:"item_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	LineID      string          `json:"line_id"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// ReserveStockRequest reserves stock for the lines of one document
type ReserveStockRequest struct {
	Lines         []ReserveStockLine      `json:"lines"`
	SourceType    string                  `json:"source_type"`
	Policy        stock.ReservationPolicy `json:"policy"`
	ClaimDuration time.Duration           `json:"claim_duration,omitempty"`
}

// ReleaseStockRequest releases the claims a document's lines hold
type ReleaseStockRequest struct {
	Keys       []StockKey `json:"keys"`
	SourceType string     `json:"source_type"`
	LineIDs    []string   `json:"line_ids"`
}

// ConsumeStockLine is one document line to issue
type ConsumeStockLine struct {
	ItemID      uuid.UUID       `json:"item_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	LineID      string          `json:"line_id"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// ConsumeStockRequest issues stock for the lines of one document. The whole
// request fails if any line cannot be fully covered by available lots.
type ConsumeStockRequest struct {
	Lines []ConsumeStockLine `json:"lines"`
}

// ConsumeStockLineResult reports the costed consumption of one line
type ConsumeStockLineResult struct {
	LineID           string          `json:"line_id"`
	ItemID           uuid.UUID       `json:"item_id"`
	WarehouseID      uuid.UUID       `json:"warehouse_id"`
	QtyConsumed      decimal.Decimal `json:"qty_consumed"`
	WeightedUnitCost decimal.Decimal `json:"weighted_unit_cost"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	Draws            []stock.LotDraw `json:"draws"`
}

// ConsumeStockResult reports the outcome of issuing a document
type ConsumeStockResult struct {
	Lines     []ConsumeStockLineResult `json:"lines"`
	TotalCost decimal.Decimal          `json:"total_cost"`
}

// ConsumptionPreview reports what a consumption would draw and cost without
// touching the ledger
type ConsumptionPreview struct {
	ItemID      uuid.UUID              `json:"item_id"`
	WarehouseID uuid.UUID              `json:"warehouse_id"`
	Plan        *stock.ConsumptionPlan `json:"plan"`
}

// StockLevelDTO is the read model for one ledger entry
type StockLevelDTO struct {
	ID           uuid.UUID       `json:"id"`
	ItemID       uuid.UUID       `json:"item_id"`
	WarehouseID  uuid.UUID       `json:"warehouse_id"`
	QtyOnHand    decimal.Decimal `json:"qty_on_hand"`
	QtyReserved  decimal.Decimal `json:"qty_reserved"`
	QtyAvailable decimal.Decimal `json:"qty_available"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ActiveClaims int             `json:"active_claims"`
	OpenLots     int             `json:"open_lots"`
	Version      int             `json:"version"`
}

// ToStockLevelDTO converts a stock level aggregate to its read model
func ToStockLevelDTO(level *stock.StockLevel) *StockLevelDTO {
	return &StockLevelDTO{
		ID:           level.ID,
		ItemID:       level.ItemID,
		WarehouseID:  level.WarehouseID,
		QtyOnHand:    level.QtyOnHand,
		QtyReserved:  level.QtyReserved,
		QtyAvailable: level.Available(),
		UnitCost:     level.UnitCost,
		ActiveClaims: len(level.ActiveClaims()),
		OpenLots:     len(level.AvailableLots()),
		Version:      level.Version,
	}
}
