package stock

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeStockLevel = "StockLevel"

// Event type constants
const (
	EventTypeStockReceived      = "StockReceived"
	EventTypeStockReserved      = "StockReserved"
	EventTypeStockReleased      = "StockReleased"
	EventTypeStockConsumed      = "StockConsumed"
	EventTypeReservationExpired = "ReservationExpired"
)

// StockReceivedEvent is raised when a receipt adds a lot to the ledger
type StockReceivedEvent struct {
	shared.BaseDomainEvent
	StockLevelID     uuid.UUID       `json:"stock_level_id"`
	ItemID           uuid.UUID       `json:"item_id"`
	WarehouseID      uuid.UUID       `json:"warehouse_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	LotID            uuid.UUID       `json:"lot_id"`
	ProvenanceLineID string          `json:"provenance_line_id"`
}

// NewStockReceivedEvent creates a new StockReceivedEvent
func NewStockReceivedEvent(level *StockLevel, qty, unitCost decimal.Decimal, lotID uuid.UUID, provenanceLineID string) *StockReceivedEvent {
	return &StockReceivedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeStockReceived, AggregateTypeStockLevel, level.ID),
		StockLevelID:     level.ID,
		ItemID:           level.ItemID,
		WarehouseID:      level.WarehouseID,
		Quantity:         qty,
		UnitCost:         unitCost,
		LotID:            lotID,
		ProvenanceLineID: provenanceLineID,
	}
}

// StockReservedEvent is raised when a claim is placed against available stock
type StockReservedEvent struct {
	shared.BaseDomainEvent
	StockLevelID uuid.UUID       `json:"stock_level_id"`
	ItemID       uuid.UUID       `json:"item_id"`
	WarehouseID  uuid.UUID       `json:"warehouse_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	ClaimID      uuid.UUID       `json:"claim_id"`
	SourceType   string          `json:"source_type"`
	SourceID     string          `json:"source_id"`
}

// NewStockReservedEvent creates a new StockReservedEvent
func NewStockReservedEvent(level *StockLevel, qty decimal.Decimal, claimID uuid.UUID, sourceType, sourceID string) *StockReservedEvent {
	return &StockReservedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReserved, AggregateTypeStockLevel, level.ID),
		StockLevelID:    level.ID,
		ItemID:          level.ItemID,
		WarehouseID:     level.WarehouseID,
		Quantity:        qty,
		ClaimID:         claimID,
		SourceType:      sourceType,
		SourceID:        sourceID,
	}
}

// StockReleasedEvent is raised when reserved quantity returns to available
type StockReleasedEvent struct {
	shared.BaseDomainEvent
	StockLevelID uuid.UUID       `json:"stock_level_id"`
	ItemID       uuid.UUID       `json:"item_id"`
	WarehouseID  uuid.UUID       `json:"warehouse_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	ClaimID      uuid.UUID       `json:"claim_id,omitempty"`
	SourceType   string          `json:"source_type,omitempty"`
	SourceID     string          `json:"source_id,omitempty"`
}

// NewStockReleasedEvent creates a new StockReleasedEvent
func NewStockReleasedEvent(level *StockLevel, qty decimal.Decimal, claimID uuid.UUID, sourceType, sourceID string) *StockReleasedEvent {
	return &StockReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReleased, AggregateTypeStockLevel, level.ID),
		StockLevelID:    level.ID,
		ItemID:          level.ItemID,
		WarehouseID:     level.WarehouseID,
		Quantity:        qty,
		ClaimID:         claimID,
		SourceType:      sourceType,
		SourceID:        sourceID,
	}
}

// StockConsumedEvent is raised when lots are depleted by an actual movement
type StockConsumedEvent struct {
	shared.BaseDomainEvent
	StockLevelID    uuid.UUID       `json:"stock_level_id"`
	ItemID          uuid.UUID       `json:"item_id"`
	WarehouseID     uuid.UUID       `json:"warehouse_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCostApplied decimal.Decimal `json:"unit_cost_applied"`
	ConsumingLineID string          `json:"consuming_line_id"`
}

// NewStockConsumedEvent creates a new StockConsumedEvent
func NewStockConsumedEvent(level *StockLevel, qty, unitCost decimal.Decimal, consumingLineID string) *StockConsumedEvent {
	return &StockConsumedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockConsumed, AggregateTypeStockLevel, level.ID),
		StockLevelID:    level.ID,
		ItemID:          level.ItemID,
		WarehouseID:     level.WarehouseID,
		Quantity:        qty,
		UnitCostApplied: unitCost,
		ConsumingLineID: consumingLineID,
	}
}

// ReservationExpiredEvent is raised when an expired claim is swept back to
// available stock
type ReservationExpiredEvent struct {
	shared.BaseDomainEvent
	StockLevelID uuid.UUID       `json:"stock_level_id"`
	ItemID       uuid.UUID       `json:"item_id"`
	WarehouseID  uuid.UUID       `json:"warehouse_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	ClaimID      uuid.UUID       `json:"claim_id"`
	SourceType   string          `json:"source_type"`
	SourceID     string          `json:"source_id"`
}

// NewReservationExpiredEvent creates a new ReservationExpiredEvent
func NewReservationExpiredEvent(level *StockLevel, qty decimal.Decimal, claimID uuid.UUID, sourceType, sourceID string) *ReservationExpiredEvent {
	return &ReservationExpiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReservationExpired, AggregateTypeStockLevel, level.ID),
		StockLevelID:    level.ID,
		ItemID:          level.ItemID,
		WarehouseID:     level.WarehouseID,
		Quantity:        qty,
		ClaimID:         claimID,
		SourceType:      sourceType,
		SourceID:        sourceID,
	}
}
