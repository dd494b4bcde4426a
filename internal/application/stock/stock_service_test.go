package stock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appstock "github.com/wms/backend/internal/application/stock"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/domain/stock"
	"github.com/wms/backend/internal/infrastructure/persistence/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.EventType()
	}
	return types
}

func newService(t *testing.T) (*appstock.StockService, *memory.Store, *capturingPublisher) {
	t.Helper()
	store := memory.NewStore()
	publisher := &capturingPublisher{}
	svc := appstock.NewStockService(
		store.Scope(),
		store.StockLevelRepo(),
		store.LotRepo(),
		store.ClaimRepo(),
		store.ConsumptionRepo(),
		stock.NewReservationService(),
		publisher,
		zap.NewNop(),
	)
	return svc, store, publisher
}

func receive(t *testing.T, svc *appstock.StockService, itemID, warehouseID uuid.UUID, qty, cost string, expiryAt *time.Time) {
	t.Helper()
	_, err := svc.Receive(context.Background(), appstock.ReceiveStockRequest{
		Lines: []appstock.ReceiveStockLine{{
			ItemID:           itemID,
			WarehouseID:      warehouseID,
			Quantity:         dec(qty),
			UnitCost:         dec(cost),
			ProvenanceLineID: "grn-" + uuid.NewString()[:8],
			ExpiryAt:         expiryAt,
		}},
	})
	require.NoError(t, err)
}

func TestStockServiceReceive(t *testing.T) {
	ctx := context.Background()
	svc, _, publisher := newService(t)
	itemID, warehouseID := uuid.New(), uuid.New()

	t.Run("first receipt creates the ledger entry", func(t *testing.T) {
		result, err := svc.Receive(ctx, appstock.ReceiveStockRequest{
			Lines: []appstock.ReceiveStockLine{{
				ItemID:           itemID,
				WarehouseID:      warehouseID,
				Quantity:         dec("100"),
				UnitCost:         dec("10"),
				ProvenanceLineID: "grn-line-1",
			}},
		})
		require.NoError(t, err)

		require.Len(t, result.Lines, 1)
		assert.True(t, result.Lines[0].QtyOnHand.Equal(dec("100")))

		dto, err := svc.GetStockLevel(ctx, itemID, warehouseID)
		require.NoError(t, err)
		assert.True(t, dto.QtyAvailable.Equal(dec("100")))
		assert.Equal(t, 1, dto.OpenLots)
		assert.Contains(t, publisher.Types(), stock.EventTypeStockReceived)
	})

	t.Run("second receipt moves the average cost", func(t *testing.T) {
		receive(t, svc, itemID, warehouseID, "100", "20", nil)

		dto, err := svc.GetStockLevel(ctx, itemID, warehouseID)
		require.NoError(t, err)
		assert.True(t, dto.QtyOnHand.Equal(dec("200")))
		assert.True(t, dto.UnitCost.Equal(dec("15")))
	})

	t.Run("empty request rejected", func(t *testing.T) {
		_, err := svc.Receive(ctx, appstock.ReceiveStockRequest{})
		assert.True(t, shared.HasCode(err, shared.CodeInvalidInput))
	})
}

func TestStockServiceReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves and persists claims", func(t *testing.T) {
		svc, _, _ := newService(t)
		itemID, warehouseID := uuid.New(), uuid.New()
		receive(t, svc, itemID, warehouseID, "100", "10", nil)

		result, err := svc.Reserve(ctx, appstock.ReserveStockRequest{
			Lines: []appstock.ReserveStockLine{
				{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("60")},
			},
			SourceType: "mirv",
			Policy:     stock.PolicyAllOrNothing,
		})
		require.NoError(t, err)
		assert.True(t, result.Success)

		dto, err := svc.GetStockLevel(ctx, itemID, warehouseID)
		require.NoError(t, err)
		assert.True(t, dto.QtyReserved.Equal(dec("60")))
		assert.True(t, dto.QtyAvailable.Equal(dec("40")))

		claims, err := svc.GetClaimsBySource(ctx, "mirv", "line-1")
		require.NoError(t, err)
		require.Len(t, claims, 1)
		assert.True(t, claims[0].IsActive())
	})

	t.Run("all-or-nothing shortfall leaves nothing held", func(t *testing.T) {
		svc, _, _ := newService(t)
		itemA, itemB, warehouseID := uuid.New(), uuid.New(), uuid.New()
		receive(t, svc, itemA, warehouseID, "100", "10", nil)
		receive(t, svc, itemB, warehouseID, "10", "10", nil)

		result, err := svc.Reserve(ctx, appstock.ReserveStockRequest{
			Lines: []appstock.ReserveStockLine{
				{ItemID: itemA, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("50")},
				{ItemID: itemB, WarehouseID: warehouseID, LineID: "line-2", Quantity: dec("20")},
			},
			SourceType: "mirv",
			Policy:     stock.PolicyAllOrNothing,
		})
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.True(t, result.Compensated)

		dtoA, err := svc.GetStockLevel(ctx, itemA, warehouseID)
		require.NoError(t, err)
		assert.True(t, dtoA.QtyReserved.IsZero())
		dtoB, err := svc.GetStockLevel(ctx, itemB, warehouseID)
		require.NoError(t, err)
		assert.True(t, dtoB.QtyReserved.IsZero())
	})

	t.Run("concurrent reservations cannot oversell", func(t *testing.T) {
		svc, _, _ := newService(t)
		itemID, warehouseID := uuid.New(), uuid.New()
		receive(t, svc, itemID, warehouseID, "100", "10", nil)

		results := make([]*stock.ReservationResult, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				result, err := svc.Reserve(ctx, appstock.ReserveStockRequest{
					Lines: []appstock.ReserveStockLine{
						{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-" + string(rune('a'+i)), Quantity: dec("60")},
					},
					SourceType: "mirv",
					Policy:     stock.PolicyAllOrNothing,
				})
				assert.NoError(t, err)
				results[i] = result
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, r := range results {
			if r != nil && r.Success {
				succeeded++
			}
		}
		assert.Equal(t, 1, succeeded, "exactly one of two competing reservations may win")

		dto, err := svc.GetStockLevel(ctx, itemID, warehouseID)
		require.NoError(t, err)
		assert.True(t, dto.QtyReserved.Equal(dec("60")))
	})
}

func TestStockServiceRelease(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	itemID, warehouseID := uuid.New(), uuid.New()
	receive(t, svc, itemID, warehouseID, "100", "10", nil)

	_, err := svc.Reserve(ctx, appstock.ReserveStockRequest{
		Lines: []appstock.ReserveStockLine{
			{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("30")},
			{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-2", Quantity: dec("20")},
		},
		SourceType: "mirv",
		Policy:     stock.PolicyAllOrNothing,
	})
	require.NoError(t, err)

	result, err := svc.Release(ctx, appstock.ReleaseStockRequest{
		Keys:       []appstock.StockKey{{ItemID: itemID, WarehouseID: warehouseID}},
		SourceType: "mirv",
		LineIDs:    []string{"line-1"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.TotalReleased.Equal(dec("30")))

	dto, err := svc.GetStockLevel(ctx, itemID, warehouseID)
	require.NoError(t, err)
	assert.True(t, dto.QtyReserved.Equal(dec("20")))
}

func TestStockServiceConsume(t *testing.T) {
	ctx := context.Background()

	t.Run("draws FEFO across lots and records the audit trail", func(t *testing.T) {
		svc, _, publisher := newService(t)
		itemID, warehouseID := uuid.New(), uuid.New()
		expiry := time.Now().AddDate(0, 1, 0)
		receive(t, svc, itemID, warehouseID, "60", "10", &expiry)
		receive(t, svc, itemID, warehouseID, "40", "22", nil)

		_, err := svc.Reserve(ctx, appstock.ReserveStockRequest{
			Lines: []appstock.ReserveStockLine{
				{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("80")},
			},
			SourceType: "mirv",
			Policy:     stock.PolicyAllOrNothing,
		})
		require.NoError(t, err)

		result, err := svc.Consume(ctx, appstock.ConsumeStockRequest{
			Lines: []appstock.ConsumeStockLine{
				{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("80")},
			},
		})
		require.NoError(t, err)

		require.Len(t, result.Lines, 1)
		line := result.Lines[0]
		assert.True(t, line.QtyConsumed.Equal(dec("80")))
		// 60 at 10 plus 20 at 22 = 1040, weighted 13
		assert.True(t, line.TotalCost.Equal(dec("1040")), "got %s", line.TotalCost)
		assert.True(t, line.WeightedUnitCost.Equal(dec("13")), "got %s", line.WeightedUnitCost)
		require.Len(t, line.Draws, 2)

		dto, err := svc.GetStockLevel(ctx, itemID, warehouseID)
		require.NoError(t, err)
		assert.True(t, dto.QtyOnHand.Equal(dec("20")))
		assert.True(t, dto.QtyReserved.IsZero())

		records, err := svc.GetLineConsumptions(ctx, "line-1")
		require.NoError(t, err)
		assert.Len(t, records, 2)
		assert.Contains(t, publisher.Types(), stock.EventTypeStockConsumed)
	})

	t.Run("cancelling after a partial consumption frees the remainder", func(t *testing.T) {
		svc, _, _ := newService(t)
		itemID, warehouseID := uuid.New(), uuid.New()
		receive(t, svc, itemID, warehouseID, "100", "10", nil)

		_, err := svc.Reserve(ctx, appstock.ReserveStockRequest{
			Lines: []appstock.ReserveStockLine{
				{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("10")},
			},
			SourceType: "mirv",
			Policy:     stock.PolicyAllOrNothing,
		})
		require.NoError(t, err)

		_, err = svc.Consume(ctx, appstock.ConsumeStockRequest{
			Lines: []appstock.ConsumeStockLine{
				{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("6")},
			},
		})
		require.NoError(t, err)

		dto, err := svc.GetStockLevel(ctx, itemID, warehouseID)
		require.NoError(t, err)
		assert.True(t, dto.QtyReserved.Equal(dec("4")), "got %s", dto.QtyReserved)

		result, err := svc.Release(ctx, appstock.ReleaseStockRequest{
			Keys:       []appstock.StockKey{{ItemID: itemID, WarehouseID: warehouseID}},
			SourceType: "mirv",
			LineIDs:    []string{"line-1"},
		})
		require.NoError(t, err)
		assert.True(t, result.TotalReleased.Equal(dec("4")), "got %s", result.TotalReleased)

		dto, err = svc.GetStockLevel(ctx, itemID, warehouseID)
		require.NoError(t, err)
		assert.True(t, dto.QtyReserved.IsZero())
		assert.True(t, dto.QtyOnHand.Equal(dec("94")))
	})

	t.Run("shortfall fails the whole request and consumes nothing", func(t *testing.T) {
		svc, _, _ := newService(t)
		itemA, itemB, warehouseID := uuid.New(), uuid.New(), uuid.New()
		receive(t, svc, itemA, warehouseID, "50", "10", nil)
		receive(t, svc, itemB, warehouseID, "10", "10", nil)

		_, err := svc.Consume(ctx, appstock.ConsumeStockRequest{
			Lines: []appstock.ConsumeStockLine{
				{ItemID: itemA, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("30")},
				{ItemID: itemB, WarehouseID: warehouseID, LineID: "line-2", Quantity: dec("15")},
			},
		})
		assert.True(t, shared.HasCode(err, shared.CodeInsufficientStock))

		dtoA, err := svc.GetStockLevel(ctx, itemA, warehouseID)
		require.NoError(t, err)
		assert.True(t, dtoA.QtyOnHand.Equal(dec("50")), "failed request must not consume")

		records, err := svc.GetLineConsumptions(ctx, "line-1")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("two lines against the same entry share its lots", func(t *testing.T) {
		svc, _, _ := newService(t)
		itemID, warehouseID := uuid.New(), uuid.New()
		receive(t, svc, itemID, warehouseID, "50", "10", nil)

		_, err := svc.Consume(ctx, appstock.ConsumeStockRequest{
			Lines: []appstock.ConsumeStockLine{
				{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("30")},
				{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-2", Quantity: dec("30")},
			},
		})
		assert.True(t, shared.HasCode(err, shared.CodeInsufficientStock))
	})
}

func TestStockServicePreviews(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	itemID, warehouseID := uuid.New(), uuid.New()
	receive(t, svc, itemID, warehouseID, "40", "10", nil)

	t.Run("consumption preview plans without side effects", func(t *testing.T) {
		preview, err := svc.PreviewConsumption(ctx, itemID, warehouseID, dec("25"))
		require.NoError(t, err)
		assert.True(t, preview.Plan.FullySatisfied)
		assert.True(t, preview.Plan.WeightedUnitCost.Equal(dec("10")))

		dto, err := svc.GetStockLevel(ctx, itemID, warehouseID)
		require.NoError(t, err)
		assert.True(t, dto.QtyOnHand.Equal(dec("40")))
	})

	t.Run("reservation preview reports shortage", func(t *testing.T) {
		preview, err := svc.PreviewReservation(ctx, appstock.ReserveStockRequest{
			Lines: []appstock.ReserveStockLine{
				{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("55")},
			},
			SourceType: "mirv",
			Policy:     stock.PolicyAllOrNothing,
		})
		require.NoError(t, err)
		assert.False(t, preview.CanFulfillAll)
		assert.True(t, preview.Lines[0].Shortage.Equal(dec("15")))
	})
}

func TestStockServiceWithNoOpScope(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	scope := appstock.NewNoOpTransactionScope(store.StockLevelRepo(), store.ClaimRepo(), store.ConsumptionRepo())
	svc := appstock.NewStockService(
		scope,
		store.StockLevelRepo(),
		store.LotRepo(),
		store.ClaimRepo(),
		store.ConsumptionRepo(),
		stock.NewReservationService(),
		nil,
		zap.NewNop(),
	)

	itemID, warehouseID := uuid.New(), uuid.New()
	receive(t, svc, itemID, warehouseID, "50", "10", nil)

	_, err := svc.Reserve(ctx, appstock.ReserveStockRequest{
		Lines: []appstock.ReserveStockLine{
			{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("20")},
		},
		SourceType: "mirv",
		Policy:     stock.PolicyAllOrNothing,
	})
	require.NoError(t, err)

	dto, err := svc.GetStockLevel(ctx, itemID, warehouseID)
	require.NoError(t, err)
	assert.True(t, dto.QtyOnHand.Equal(dec("50")))
	assert.True(t, dto.QtyReserved.Equal(dec("20")))
}

func TestClaimExpiryService(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	itemID, warehouseID := uuid.New(), uuid.New()
	receive(t, svc, itemID, warehouseID, "100", "10", nil)

	// One claim already expired, one still live
	_, err := svc.Reserve(ctx, appstock.ReserveStockRequest{
		Lines: []appstock.ReserveStockLine{
			{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-1", Quantity: dec("20")},
		},
		SourceType:    "mirv",
		Policy:        stock.PolicyAllOrNothing,
		ClaimDuration: time.Nanosecond,
	})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, appstock.ReserveStockRequest{
		Lines: []appstock.ReserveStockLine{
			{ItemID: itemID, WarehouseID: warehouseID, LineID: "line-2", Quantity: dec("30")},
		},
		SourceType: "mirv",
		Policy:     stock.PolicyAllOrNothing,
	})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	sweep := appstock.NewClaimExpiryService(store.Scope(), store.ClaimRepo(), nil, zap.NewNop())
	stats, err := sweep.ReleaseExpiredClaims(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TotalExpired)
	assert.Equal(t, 1, stats.ClaimsReleased)
	assert.Equal(t, 0, stats.FailedLevels)

	dto, err := svc.GetStockLevel(ctx, itemID, warehouseID)
	require.NoError(t, err)
	assert.True(t, dto.QtyReserved.Equal(dec("30")))

	// A second sweep finds nothing
	stats, err = sweep.ReleaseExpiredClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalExpired)
}
