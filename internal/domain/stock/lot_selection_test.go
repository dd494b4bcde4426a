package stock

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms/backend/internal/domain/shared"
)

func makeLot(t *testing.T, qty, cost string, receivedAt time.Time, expiryAt *time.Time) Lot {
	t.Helper()
	lot, err := NewLot(
		uuid.New(), uuid.New(), uuid.New(),
		dec(qty), dec(cost),
		"grn-line-"+uuid.NewString()[:8],
		receivedAt, expiryAt,
	)
	require.NoError(t, err)
	return *lot
}

func timePtr(tm time.Time) *time.Time {
	return &tm
}

func TestSelectLots(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("earliest expiry drawn first", func(t *testing.T) {
		late := makeLot(t, "50", "10", base, timePtr(base.AddDate(0, 6, 0)))
		early := makeLot(t, "50", "20", base.Add(time.Hour), timePtr(base.AddDate(0, 1, 0)))

		plan, err := SelectLots(dec("30"), []Lot{late, early})
		require.NoError(t, err)

		require.Len(t, plan.Draws, 1)
		assert.Equal(t, early.ID, plan.Draws[0].LotID)
		assert.True(t, plan.Draws[0].Qty.Equal(dec("30")))
		assert.True(t, plan.FullySatisfied)
	})

	t.Run("nil expiry sorts last", func(t *testing.T) {
		durable := makeLot(t, "100", "10", base, nil)
		perishable := makeLot(t, "10", "10", base.Add(time.Hour), timePtr(base.AddDate(1, 0, 0)))

		plan, err := SelectLots(dec("15"), []Lot{durable, perishable})
		require.NoError(t, err)

		require.Len(t, plan.Draws, 2)
		assert.Equal(t, perishable.ID, plan.Draws[0].LotID)
		assert.True(t, plan.Draws[0].Qty.Equal(dec("10")))
		assert.True(t, plan.Draws[0].FullyDepleted)
		assert.Equal(t, durable.ID, plan.Draws[1].LotID)
		assert.True(t, plan.Draws[1].Qty.Equal(dec("5")))
		assert.False(t, plan.Draws[1].FullyDepleted)
	})

	t.Run("equal expiry breaks tie by receipt time", func(t *testing.T) {
		expiry := timePtr(base.AddDate(0, 3, 0))
		second := makeLot(t, "40", "10", base.Add(48*time.Hour), expiry)
		first := makeLot(t, "40", "10", base, expiry)

		plan, err := SelectLots(dec("10"), []Lot{second, first})
		require.NoError(t, err)

		require.Len(t, plan.Draws, 1)
		assert.Equal(t, first.ID, plan.Draws[0].LotID)
	})

	t.Run("weighted unit cost spans lots", func(t *testing.T) {
		// 10 units at 10 plus 10 units at 22 gives a weighted cost of 16
		cheap := makeLot(t, "10", "10", base, timePtr(base.AddDate(0, 1, 0)))
		dear := makeLot(t, "30", "22", base, timePtr(base.AddDate(0, 2, 0)))

		plan, err := SelectLots(dec("20"), []Lot{dear, cheap})
		require.NoError(t, err)

		assert.True(t, plan.QtyConsumed.Equal(dec("20")))
		assert.True(t, plan.TotalCost.Equal(dec("320")), "got %s", plan.TotalCost)
		assert.True(t, plan.WeightedUnitCost.Equal(dec("16")), "got %s", plan.WeightedUnitCost)
	})

	t.Run("shortfall reported when lots run out", func(t *testing.T) {
		only := makeLot(t, "5", "10", base, nil)

		plan, err := SelectLots(dec("8"), []Lot{only})
		require.NoError(t, err)

		assert.False(t, plan.FullySatisfied)
		assert.True(t, plan.QtyConsumed.Equal(dec("5")))
		assert.True(t, plan.Shortfall.Equal(dec("3")))
	})

	t.Run("empty lots drained entirely into shortfall", func(t *testing.T) {
		plan, err := SelectLots(dec("4"), nil)
		require.NoError(t, err)

		assert.Empty(t, plan.Draws)
		assert.True(t, plan.Shortfall.Equal(dec("4")))
		assert.True(t, plan.WeightedUnitCost.IsZero())
	})

	t.Run("depleted lots are skipped", func(t *testing.T) {
		depleted := makeLot(t, "10", "10", base, timePtr(base.AddDate(0, 1, 0)))
		require.NoError(t, depleted.Deduct(dec("10")))
		full := makeLot(t, "10", "12", base, nil)

		plan, err := SelectLots(dec("6"), []Lot{depleted, full})
		require.NoError(t, err)

		require.Len(t, plan.Draws, 1)
		assert.Equal(t, full.ID, plan.Draws[0].LotID)
	})

	t.Run("non-positive request rejected", func(t *testing.T) {
		_, err := SelectLots(decimal.Zero, nil)
		assert.True(t, shared.HasCode(err, shared.CodeInvalidQuantity))
	})
}

func TestTotalAvailable(t *testing.T) {
	base := time.Now()
	a := makeLot(t, "3.5", "1", base, nil)
	b := makeLot(t, "6.5", "1", base, nil)

	assert.True(t, TotalAvailable([]Lot{a, b}).Equal(dec("10")))
	assert.True(t, TotalAvailable(nil).IsZero())
}
