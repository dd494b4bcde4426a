package stock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms/backend/internal/domain/shared"
)

// StockLevel is the ledger entry for one (item, warehouse) combination and
// the aggregate root for all stock operations. It owns the lots backing its
// on-hand quantity and the reservation claims held against it.
//
// Invariants maintained by every mutation:
//   - 0 <= QtyReserved <= QtyOnHand
//   - sum of lot availability == QtyOnHand
//
// Available stock is QtyOnHand - QtyReserved; reservations never touch lots,
// only consumption does.
type StockLevel struct {
	shared.BaseAggregateRoot
	ItemID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_level_item_warehouse,priority:1"`
	WarehouseID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_level_item_warehouse,priority:2"`
	QtyOnHand   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	QtyReserved decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	UnitCost    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"` // Moving weighted average over receipts

	// Associations - loaded with the aggregate
	Lots   []Lot              `gorm:"foreignKey:StockLevelID;references:ID"`
	Claims []ReservationClaim `gorm:"foreignKey:StockLevelID;references:ID"`
}

// TableName returns the table name for GORM
func (StockLevel) TableName() string {
	return "stock_levels"
}

// NewStockLevel creates an empty ledger entry for an item-warehouse combination
func NewStockLevel(itemID, warehouseID uuid.UUID) (*StockLevel, error) {
	if itemID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Item ID cannot be empty")
	}
	if warehouseID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Warehouse ID cannot be empty")
	}

	return &StockLevel{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ItemID:            itemID,
		WarehouseID:       warehouseID,
		QtyOnHand:         decimal.Zero,
		QtyReserved:       decimal.Zero,
		UnitCost:          decimal.Zero,
		Lots:              make([]Lot, 0),
		Claims:            make([]ReservationClaim, 0),
	}, nil
}

// Available returns the quantity not held by reservations
func (s *StockLevel) Available() decimal.Decimal {
	return s.QtyOnHand.Sub(s.QtyReserved)
}

// CanFulfill returns true if the available quantity covers the request
func (s *StockLevel) CanFulfill(qty decimal.Decimal) bool {
	return s.Available().GreaterThanOrEqual(qty)
}

// Receive adds stock from a receiving document line: creates a lot, raises
// on-hand and updates the moving weighted average cost. Reservations are not
// affected.
func (s *StockLevel) Receive(
	qty, unitCost decimal.Decimal,
	provenanceLineID string,
	expiryAt *time.Time,
) (*Lot, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Quantity must be positive")
	}
	if unitCost.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Unit cost cannot be negative")
	}

	lot, err := NewLot(s.ID, s.ItemID, s.WarehouseID, qty, unitCost, provenanceLineID, time.Now(), expiryAt)
	if err != nil {
		return nil, err
	}

	// Moving weighted average over the quantity on hand
	if s.QtyOnHand.IsZero() {
		s.UnitCost = unitCost
	} else {
		totalValue := s.QtyOnHand.Mul(s.UnitCost).Add(qty.Mul(unitCost))
		s.UnitCost = totalValue.Div(s.QtyOnHand.Add(qty)).Round(4)
	}

	s.QtyOnHand = s.QtyOnHand.Add(qty)
	s.Lots = append(s.Lots, *lot)
	s.UpdatedAt = time.Now()
	s.IncrementVersion()

	s.AddDomainEvent(NewStockReceivedEvent(s, qty, unitCost, lot.ID, provenanceLineID))

	return lot, nil
}

// Reserve places a soft hold on available stock for a document line.
// Fails with INSUFFICIENT_STOCK when available < qty and changes nothing.
func (s *StockLevel) Reserve(
	qty decimal.Decimal,
	sourceType, sourceID string,
	expireAt time.Time,
) (*ReservationClaim, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Reserve quantity must be positive")
	}
	if sourceType == "" || sourceID == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Source type and ID are required")
	}
	if !s.CanFulfill(qty) {
		return nil, shared.NewDomainError(shared.CodeInsufficientStock,
			fmt.Sprintf("Insufficient stock: available=%s, requested=%s", s.Available().String(), qty.String()))
	}

	s.QtyReserved = s.QtyReserved.Add(qty)
	claim := NewReservationClaim(s.ID, qty, sourceType, sourceID, expireAt)
	s.Claims = append(s.Claims, *claim)
	s.UpdatedAt = time.Now()
	s.IncrementVersion()

	s.AddDomainEvent(NewStockReservedEvent(s, qty, claim.ID, sourceType, sourceID))

	return claim, nil
}

// ReleaseClaim returns a claim's full quantity to available stock
func (s *StockLevel) ReleaseClaim(claimID uuid.UUID) error {
	idx := s.findActiveClaim(claimID)
	if idx < 0 {
		return shared.NewDomainError(shared.CodeNotFound,
			"Reservation claim not found or already released/consumed")
	}

	claim := &s.Claims[idx]
	s.QtyReserved = s.QtyReserved.Sub(claim.Quantity)
	if s.QtyReserved.IsNegative() {
		s.QtyReserved = decimal.Zero
	}
	claim.Release()
	s.UpdatedAt = time.Now()
	s.IncrementVersion()

	s.AddDomainEvent(NewStockReleasedEvent(s, claim.Quantity, claim.ID, claim.SourceType, claim.SourceID))

	return nil
}

// ReleaseQuantity lowers the reserved quantity by qty, floored at zero.
// Callers that track their claims should prefer ReleaseClaim; this primitive
// exists for orchestration layers that manage their own hold bookkeeping.
func (s *StockLevel) ReleaseQuantity(qty decimal.Decimal) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError(shared.CodeInvalidQuantity, "Release quantity must be positive")
	}

	released := decimal.Min(qty, s.QtyReserved)
	s.QtyReserved = s.QtyReserved.Sub(released)
	s.UpdatedAt = time.Now()
	s.IncrementVersion()

	s.AddDomainEvent(NewStockReleasedEvent(s, released, uuid.Nil, "", ""))

	return nil
}

// ApplyConsumption executes a consumption plan built by SelectLots against
// this level: each drawn lot is depleted, on-hand drops by the consumed
// quantity, and an append-only LotConsumption record is produced per draw.
//
// The consuming line's claims are drawn down by the consumed quantity,
// oldest first. A claim drawn to zero is marked consumed; a partially drawn
// claim keeps its remainder active so the line can still be released or
// swept on expiry.
func (s *StockLevel) ApplyConsumption(plan *ConsumptionPlan, consumingLineID string) ([]*LotConsumption, error) {
	if plan == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Consumption plan cannot be nil")
	}
	if consumingLineID == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Consuming line ID is required")
	}
	if plan.QtyConsumed.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Plan consumes nothing")
	}

	lotIndex := make(map[uuid.UUID]int, len(s.Lots))
	for i := range s.Lots {
		lotIndex[s.Lots[i].ID] = i
	}

	records := make([]*LotConsumption, 0, len(plan.Draws))
	for _, draw := range plan.Draws {
		i, ok := lotIndex[draw.LotID]
		if !ok {
			return nil, shared.NewDomainError(shared.CodeNotFound, "Lot not found: "+draw.LotID.String())
		}
		if err := s.Lots[i].Deduct(draw.Qty); err != nil {
			return nil, err
		}

		record, err := NewLotConsumption(draw.LotID, s.ID, consumingLineID, draw.Qty, draw.UnitCost)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	s.QtyOnHand = s.QtyOnHand.Sub(plan.QtyConsumed)

	remaining := plan.QtyConsumed
	for i := range s.Claims {
		claim := &s.Claims[i]
		if !claim.IsActive() || claim.SourceID != consumingLineID {
			continue
		}
		if !remaining.IsPositive() {
			break
		}
		drawn := decimal.Min(claim.Quantity, remaining)
		remaining = remaining.Sub(drawn)
		s.QtyReserved = s.QtyReserved.Sub(drawn)
		if drawn.Equal(claim.Quantity) {
			claim.Consume()
		} else {
			claim.DrawDown(drawn)
		}
	}
	// Consumption past the line's claims digs into unreserved stock; when
	// that leaves on-hand below the holds of other lines, cap reserved so
	// the ledger invariant holds.
	if s.QtyReserved.GreaterThan(s.QtyOnHand) {
		s.QtyReserved = s.QtyOnHand
	}

	s.UpdatedAt = time.Now()
	s.IncrementVersion()

	s.AddDomainEvent(NewStockConsumedEvent(s, plan.QtyConsumed, plan.WeightedUnitCost, consumingLineID))

	return records, nil
}

// ReleaseExpiredClaims releases all active claims past their expiry and
// returns how many were released
func (s *StockLevel) ReleaseExpiredClaims() int {
	count := 0
	for i := range s.Claims {
		claim := &s.Claims[i]
		if claim.IsActive() && claim.IsExpired() {
			if err := s.ReleaseClaim(claim.ID); err == nil {
				s.AddDomainEvent(NewReservationExpiredEvent(s, claim.Quantity, claim.ID, claim.SourceType, claim.SourceID))
				count++
			}
		}
	}
	return count
}

// ActiveClaims returns all claims still holding reserved quantity
func (s *StockLevel) ActiveClaims() []ReservationClaim {
	active := make([]ReservationClaim, 0)
	for _, claim := range s.Claims {
		if claim.IsActive() {
			active = append(active, claim)
		}
	}
	return active
}

// AvailableLots returns lots that still have quantity to consume
func (s *StockLevel) AvailableLots() []Lot {
	available := make([]Lot, 0, len(s.Lots))
	for _, lot := range s.Lots {
		if lot.HasStock() {
			available = append(available, lot)
		}
	}
	return available
}

// CheckInvariants verifies the ledger invariants hold. Violations indicate a
// bug in the engine, not a business condition, so the error is INVALID_STATE.
func (s *StockLevel) CheckInvariants() error {
	if s.QtyReserved.IsNegative() {
		return shared.NewDomainError(shared.CodeInvalidState, "Reserved quantity is negative")
	}
	if s.QtyReserved.GreaterThan(s.QtyOnHand) {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("Reserved %s exceeds on-hand %s", s.QtyReserved.String(), s.QtyOnHand.String()))
	}
	if !TotalAvailable(s.Lots).Equal(s.QtyOnHand) {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("Lot availability %s does not match on-hand %s",
				TotalAvailable(s.Lots).String(), s.QtyOnHand.String()))
	}
	return nil
}

func (s *StockLevel) findActiveClaim(claimID uuid.UUID) int {
	for i := range s.Claims {
		if s.Claims[i].ID == claimID && s.Claims[i].IsActive() {
			return i
		}
	}
	return -1
}
