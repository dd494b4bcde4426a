package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appstock "github.com/wms/backend/internal/application/stock"
	"github.com/wms/backend/internal/domain/approval"
	"github.com/wms/backend/internal/domain/document"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/domain/stock"
)

// setupStockTestDB creates an in-memory SQLite database for testing.
// SQLite has no SELECT ... FOR UPDATE, so these tests cover the
// non-locking finders and the optimistic save path; the row-lock
// behaviour is Postgres-only.
func setupStockTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE stock_levels (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			item_id TEXT NOT NULL,
			warehouse_id TEXT NOT NULL,
			qty_on_hand DECIMAL(18,4) NOT NULL DEFAULT 0,
			qty_reserved DECIMAL(18,4) NOT NULL DEFAULT 0,
			unit_cost DECIMAL(18,4) NOT NULL DEFAULT 0,
			UNIQUE(item_id, warehouse_id)
		)
	`).Error
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE lots (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			stock_level_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			warehouse_id TEXT NOT NULL,
			qty_received DECIMAL(18,4) NOT NULL,
			qty_available DECIMAL(18,4) NOT NULL,
			unit_cost DECIMAL(18,4) NOT NULL,
			received_at DATETIME NOT NULL,
			expiry_at DATETIME,
			provenance_line_id TEXT NOT NULL
		)
	`).Error
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE reservation_claims (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			stock_level_id TEXT NOT NULL,
			quantity DECIMAL(18,4) NOT NULL,
			source_type TEXT NOT NULL,
			source_id TEXT NOT NULL,
			expire_at DATETIME NOT NULL,
			released INTEGER NOT NULL DEFAULT 0,
			consumed INTEGER NOT NULL DEFAULT 0,
			released_at DATETIME
		)
	`).Error
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE lot_consumptions (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			lot_id TEXT NOT NULL,
			stock_level_id TEXT NOT NULL,
			consuming_line_id TEXT NOT NULL,
			qty_consumed DECIMAL(18,4) NOT NULL,
			unit_cost_applied DECIMAL(18,4) NOT NULL,
			consumed_at DATETIME NOT NULL
		)
	`).Error
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE approval_thresholds (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			document_type TEXT NOT NULL,
			min_amount DECIMAL(18,4) NOT NULL,
			max_amount DECIMAL(18,4),
			approver_role TEXT NOT NULL,
			sla_hours INTEGER NOT NULL
		)
	`).Error
	require.NoError(t, err)

	return db
}

func mustNewLevel(t *testing.T) *stock.StockLevel {
	t.Helper()
	level, err := stock.NewStockLevel(uuid.New(), uuid.New())
	require.NoError(t, err)
	return level
}

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGormStockLevelRepository_SaveAndFind(t *testing.T) {
	db := setupStockTestDB(t)
	repo := NewGormStockLevelRepository(db)
	ctx := context.Background()

	level := mustNewLevel(t)
	expiry := time.Now().Add(72 * time.Hour)

	_, err := level.Receive(qty("100"), qty("10"), "grn-line-1", nil)
	require.NoError(t, err)
	_, err = level.Receive(qty("50"), qty("22"), "grn-line-2", &expiry)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, level))

	retrieved, err := repo.FindByItemAndWarehouse(ctx, level.ItemID, level.WarehouseID)
	require.NoError(t, err)
	assert.Equal(t, level.ID, retrieved.ID)
	assert.True(t, retrieved.QtyOnHand.Equal(qty("150")))
	assert.True(t, retrieved.UnitCost.Equal(qty("14")))
	require.Len(t, retrieved.Lots, 2)
	assert.Equal(t, "grn-line-1", retrieved.Lots[0].ProvenanceLineID)
	assert.Nil(t, retrieved.Lots[0].ExpiryAt)
	require.NotNil(t, retrieved.Lots[1].ExpiryAt)
}

func TestGormStockLevelRepository_FindByID_NotFound(t *testing.T) {
	db := setupStockTestDB(t)
	repo := NewGormStockLevelRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.True(t, shared.HasCode(err, shared.CodeNotFound))
}

func TestGormStockLevelRepository_SaveWithLock(t *testing.T) {
	db := setupStockTestDB(t)
	repo := NewGormStockLevelRepository(db)
	ctx := context.Background()

	level := mustNewLevel(t)
	_, err := level.Receive(qty("100"), qty("10"), "grn-line-1", nil)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, level))

	first, err := repo.FindByItemAndWarehouse(ctx, level.ItemID, level.WarehouseID)
	require.NoError(t, err)
	second, err := repo.FindByItemAndWarehouse(ctx, level.ItemID, level.WarehouseID)
	require.NoError(t, err)

	_, err = first.Reserve(qty("30"), "mirv", "line-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.SaveWithLock(ctx, first))

	// The second copy is now stale; its version no longer beats the store
	_, err = second.Reserve(qty("30"), "mirv", "line-2", time.Now().Add(time.Hour))
	require.NoError(t, err)
	err = repo.SaveWithLock(ctx, second)
	assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))

	retrieved, err := repo.FindByItemAndWarehouse(ctx, level.ItemID, level.WarehouseID)
	require.NoError(t, err)
	assert.True(t, retrieved.QtyReserved.Equal(qty("30")))
}

func TestGormStockLevelRepository_FindByWarehouse(t *testing.T) {
	db := setupStockTestDB(t)
	repo := NewGormStockLevelRepository(db)
	ctx := context.Background()

	warehouseID := uuid.New()
	for i := 0; i < 3; i++ {
		level, err := stock.NewStockLevel(uuid.New(), warehouseID)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, level))
	}
	other, err := stock.NewStockLevel(uuid.New(), uuid.New())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, other))

	levels, err := repo.FindByWarehouse(ctx, warehouseID, shared.Filter{})
	require.NoError(t, err)
	assert.Len(t, levels, 3)

	page, err := repo.FindByWarehouse(ctx, warehouseID, shared.Filter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestGormLotRepository_FindAvailable(t *testing.T) {
	db := setupStockTestDB(t)
	levelRepo := NewGormStockLevelRepository(db)
	lotRepo := NewGormLotRepository(db)
	ctx := context.Background()

	level := mustNewLevel(t)
	_, err := level.Receive(qty("100"), qty("10"), "grn-line-1", nil)
	require.NoError(t, err)
	_, err = level.Receive(qty("40"), qty("12"), "grn-line-2", nil)
	require.NoError(t, err)
	// Deplete the first lot manually to simulate a fully issued receipt
	level.Lots[0].QtyAvailable = decimal.Zero
	require.NoError(t, levelRepo.Save(ctx, level))

	lots, err := lotRepo.FindAvailable(ctx, level.ItemID, level.WarehouseID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "grn-line-2", lots[0].ProvenanceLineID)
}

func TestGormLotRepository_FindExpiringBefore(t *testing.T) {
	db := setupStockTestDB(t)
	levelRepo := NewGormStockLevelRepository(db)
	lotRepo := NewGormLotRepository(db)
	ctx := context.Background()

	level := mustNewLevel(t)
	soon := time.Now().Add(24 * time.Hour)
	far := time.Now().Add(30 * 24 * time.Hour)

	_, err := level.Receive(qty("10"), qty("5"), "grn-line-1", &soon)
	require.NoError(t, err)
	_, err = level.Receive(qty("10"), qty("5"), "grn-line-2", &far)
	require.NoError(t, err)
	_, err = level.Receive(qty("10"), qty("5"), "grn-line-3", nil)
	require.NoError(t, err)
	require.NoError(t, levelRepo.Save(ctx, level))

	lots, err := lotRepo.FindExpiringBefore(ctx, time.Now().Add(7*24*time.Hour), shared.Filter{})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "grn-line-1", lots[0].ProvenanceLineID)
}

func TestGormReservationClaimRepository_FindBySource(t *testing.T) {
	db := setupStockTestDB(t)
	levelRepo := NewGormStockLevelRepository(db)
	claimRepo := NewGormReservationClaimRepository(db)
	ctx := context.Background()

	level := mustNewLevel(t)
	_, err := level.Receive(qty("100"), qty("10"), "grn-line-1", nil)
	require.NoError(t, err)
	_, err = level.Reserve(qty("20"), "mirv", "line-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = level.Reserve(qty("10"), "mirv", "line-2", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, levelRepo.Save(ctx, level))

	claims, err := claimRepo.FindBySource(ctx, "mirv", "line-1")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.True(t, claims[0].Quantity.Equal(qty("20")))

	claims, err = claimRepo.FindBySource(ctx, "transfer", "line-1")
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestGormReservationClaimRepository_FindExpired(t *testing.T) {
	db := setupStockTestDB(t)
	levelRepo := NewGormStockLevelRepository(db)
	claimRepo := NewGormReservationClaimRepository(db)
	ctx := context.Background()

	level := mustNewLevel(t)
	_, err := level.Receive(qty("100"), qty("10"), "grn-line-1", nil)
	require.NoError(t, err)

	expired, err := level.Reserve(qty("20"), "mirv", "line-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	released, err := level.Reserve(qty("10"), "mirv", "line-2", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = level.Reserve(qty("5"), "mirv", "line-3", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, level.ReleaseClaim(released.ID))
	require.NoError(t, levelRepo.Save(ctx, level))

	claims, err := claimRepo.FindExpired(ctx)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, expired.ID, claims[0].ID)
}

func TestGormLotConsumptionRepository_CreateBatchAndFind(t *testing.T) {
	db := setupStockTestDB(t)
	repo := NewGormLotConsumptionRepository(db)
	ctx := context.Background()

	lotID := uuid.New()
	levelID := uuid.New()
	mustRecord := func(lot uuid.UUID, line string, consumed, cost decimal.Decimal) *stock.LotConsumption {
		record, err := stock.NewLotConsumption(lot, levelID, line, consumed, cost)
		require.NoError(t, err)
		return record
	}
	records := []*stock.LotConsumption{
		mustRecord(lotID, "issue-line-1", qty("60"), qty("10")),
		mustRecord(uuid.New(), "issue-line-1", qty("20"), qty("22")),
		mustRecord(lotID, "issue-line-2", qty("5"), qty("10")),
	}
	require.NoError(t, repo.CreateBatch(ctx, records))

	byLine, err := repo.FindByConsumingLine(ctx, "issue-line-1")
	require.NoError(t, err)
	assert.Len(t, byLine, 2)

	byLot, err := repo.FindByLot(ctx, lotID)
	require.NoError(t, err)
	assert.Len(t, byLot, 2)
}

func TestGormThresholdRepository_CRUD(t *testing.T) {
	db := setupStockTestDB(t)
	repo := NewGormThresholdRepository(db)
	ctx := context.Background()

	max := qty("9999.9999")
	low, err := approval.NewThreshold(document.TypeMaterialIssue, qty("0"), &max, "supervisor", 4)
	require.NoError(t, err)
	high, err := approval.NewThreshold(document.TypeMaterialIssue, qty("10000"), nil, "warehouse_manager", 8)
	require.NoError(t, err)
	writeOff, err := approval.NewThreshold(document.TypeWriteOff, qty("0"), nil, "finance_director", 24)
	require.NoError(t, err)

	for _, th := range []*approval.Threshold{low, high, writeOff} {
		require.NoError(t, repo.Save(ctx, th))
	}

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	issue, err := repo.FindByDocumentType(ctx, document.TypeMaterialIssue)
	require.NoError(t, err)
	require.Len(t, issue, 2)
	assert.Equal(t, "supervisor", issue[0].ApproverRole)
	assert.Nil(t, issue[1].MaxAmount)

	require.NoError(t, repo.Delete(ctx, writeOff.ID))
	err = repo.Delete(ctx, writeOff.ID)
	assert.True(t, shared.HasCode(err, shared.CodeNotFound))
}

func TestGormTransactionScope_RollsBackOnError(t *testing.T) {
	db := setupStockTestDB(t)
	scope := NewGormTransactionScope(db)
	ctx := context.Background()

	level := mustNewLevel(t)
	_, err := level.Receive(qty("100"), qty("10"), "grn-line-1", nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = scope.Execute(ctx, func(repos appstock.TransactionalRepositories) error {
		if err := repos.StockLevelRepo().Save(ctx, level); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = NewGormStockLevelRepository(db).FindByID(ctx, level.ID)
	assert.True(t, shared.HasCode(err, shared.CodeNotFound))

	err = scope.Execute(ctx, func(repos appstock.TransactionalRepositories) error {
		return repos.StockLevelRepo().Save(ctx, level)
	})
	require.NoError(t, err)

	retrieved, err := NewGormStockLevelRepository(db).FindByID(ctx, level.ID)
	require.NoError(t, err)
	assert.True(t, retrieved.QtyOnHand.Equal(qty("100")))
}
