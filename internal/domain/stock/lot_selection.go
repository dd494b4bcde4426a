package stock

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms/backend/internal/domain/shared"
)

// LotDraw represents the quantity taken from a single lot by a consumption plan
type LotDraw struct {
	LotID          uuid.UUID       // Lot being drawn from
	Qty            decimal.Decimal // Quantity drawn
	UnitCost       decimal.Decimal // Lot's receipt cost
	TotalCost      decimal.Decimal // Qty * UnitCost
	RemainingInLot decimal.Decimal // Lot availability after the draw
	FullyDepleted  bool            // True if the draw empties the lot
}

// ConsumptionPlan is the result of selecting lots for a requested quantity.
// It carries everything needed to apply the consumption and to cost it:
// per-lot draws, the quantity-weighted average unit cost, and any shortfall.
type ConsumptionPlan struct {
	Draws            []LotDraw
	QtyRequested     decimal.Decimal
	QtyConsumed      decimal.Decimal
	TotalCost        decimal.Decimal
	WeightedUnitCost decimal.Decimal // Σ(qty_from_lot * lot cost) / qty consumed
	Shortfall        decimal.Decimal // QtyRequested - QtyConsumed
	FullySatisfied   bool
}

// SelectLots builds a consumption plan for the requested quantity using FEFO
// order: earliest expiry first, lots without expiry last, ties broken by
// receipt time (FIFO). Lots with no availability are skipped. The plan makes
// no changes; callers apply it through StockLevel.ApplyConsumption.
func SelectLots(qtyRequested decimal.Decimal, lots []Lot) (*ConsumptionPlan, error) {
	if qtyRequested.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError(shared.CodeInvalidQuantity, "Requested quantity must be positive")
	}

	candidates := make([]Lot, 0, len(lots))
	for _, lot := range lots {
		if lot.HasStock() {
			candidates = append(candidates, lot)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		// FEFO: expiring lots first, earliest expiry wins
		if candidates[i].ExpiryAt != nil && candidates[j].ExpiryAt != nil {
			if !candidates[i].ExpiryAt.Equal(*candidates[j].ExpiryAt) {
				return candidates[i].ExpiryAt.Before(*candidates[j].ExpiryAt)
			}
		} else if candidates[i].ExpiryAt != nil {
			return true
		} else if candidates[j].ExpiryAt != nil {
			return false
		}
		// FIFO tie-break on receipt time
		return candidates[i].ReceivedAt.Before(candidates[j].ReceivedAt)
	})

	plan := &ConsumptionPlan{
		Draws:        make([]LotDraw, 0, len(candidates)),
		QtyRequested: qtyRequested,
		QtyConsumed:  decimal.Zero,
		TotalCost:    decimal.Zero,
	}

	remaining := qtyRequested
	for _, lot := range candidates {
		if remaining.IsZero() {
			break
		}

		drawQty := decimal.Min(remaining, lot.QtyAvailable)
		remainingInLot := lot.QtyAvailable.Sub(drawQty)
		drawCost := drawQty.Mul(lot.UnitCost)

		plan.Draws = append(plan.Draws, LotDraw{
			LotID:          lot.ID,
			Qty:            drawQty,
			UnitCost:       lot.UnitCost,
			TotalCost:      drawCost,
			RemainingInLot: remainingInLot,
			FullyDepleted:  remainingInLot.IsZero(),
		})

		plan.QtyConsumed = plan.QtyConsumed.Add(drawQty)
		plan.TotalCost = plan.TotalCost.Add(drawCost)
		remaining = remaining.Sub(drawQty)
	}

	plan.Shortfall = remaining
	plan.FullySatisfied = remaining.IsZero()
	if plan.QtyConsumed.GreaterThan(decimal.Zero) {
		plan.WeightedUnitCost = plan.TotalCost.Div(plan.QtyConsumed).Round(4)
	}

	return plan, nil
}

// TotalAvailable sums the available quantity across the given lots
func TotalAvailable(lots []Lot) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.QtyAvailable)
	}
	return total
}
