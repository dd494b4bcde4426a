package stock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wms/backend/internal/domain/shared"
)

// StockLevelRepository defines persistence for the StockLevel aggregate.
//
// Reads that precede a mutation must go through the ForUpdate variants so the
// underlying store can take a per-key lock; the plain finders are for
// queries only. Lots and claims are child entities of the aggregate and are
// persisted with it; they have no independent write path.
type StockLevelRepository interface {
	// FindByID finds a stock level by its ID, with lots and claims loaded
	FindByID(ctx context.Context, id uuid.UUID) (*StockLevel, error)

	// FindByIDForUpdate finds a stock level by its ID holding a per-key
	// write lock for the remainder of the enclosing transaction
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*StockLevel, error)

	// FindByItemAndWarehouse finds the ledger entry for a key, read-only
	FindByItemAndWarehouse(ctx context.Context, itemID, warehouseID uuid.UUID) (*StockLevel, error)

	// FindByItemAndWarehouseForUpdate finds the ledger entry holding a
	// per-key write lock for the remainder of the enclosing transaction
	FindByItemAndWarehouseForUpdate(ctx context.Context, itemID, warehouseID uuid.UUID) (*StockLevel, error)

	// GetOrCreateForUpdate returns the ledger entry for a key, creating an
	// empty one if this is the first receipt, locked for update
	GetOrCreateForUpdate(ctx context.Context, itemID, warehouseID uuid.UUID) (*StockLevel, error)

	// FindByWarehouse lists ledger entries in a warehouse
	FindByWarehouse(ctx context.Context, warehouseID uuid.UUID, filter shared.Filter) ([]StockLevel, error)

	// Save persists the aggregate including changed lots and claims
	Save(ctx context.Context, level *StockLevel) error

	// SaveWithLock persists with an optimistic version check; a stale
	// version surfaces as CONCURRENCY_CONFLICT
	SaveWithLock(ctx context.Context, level *StockLevel) error
}

// LotRepository provides read-side queries over lots that span aggregates
// (expiry dashboards, receipt audits). All lot mutations go through the
// StockLevel aggregate.
type LotRepository interface {
	// FindByID finds a lot by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Lot, error)

	// FindByStockLevel lists lots backing one ledger entry
	FindByStockLevel(ctx context.Context, stockLevelID uuid.UUID) ([]Lot, error)

	// FindAvailable lists lots for a key that still have quantity
	FindAvailable(ctx context.Context, itemID, warehouseID uuid.UUID) ([]Lot, error)

	// FindExpiringBefore lists undepleted lots expiring before the deadline
	FindExpiringBefore(ctx context.Context, deadline time.Time, filter shared.Filter) ([]Lot, error)
}

// LotConsumptionRepository persists the append-only consumption audit trail
type LotConsumptionRepository interface {
	// Create appends a consumption record; records are never updated
	Create(ctx context.Context, record *LotConsumption) error

	// CreateBatch appends multiple records
	CreateBatch(ctx context.Context, records []*LotConsumption) error

	// FindByLot lists consumption records for a lot, oldest first
	FindByLot(ctx context.Context, lotID uuid.UUID) ([]LotConsumption, error)

	// FindByConsumingLine lists records written for a document line
	FindByConsumingLine(ctx context.Context, consumingLineID string) ([]LotConsumption, error)
}

// ReservationClaimRepository provides cross-aggregate claim queries. Claim
// state transitions happen through StockLevel methods; this repository only
// locates claims (by source document, by expiry) for the orchestration and
// sweep paths.
type ReservationClaimRepository interface {
	// FindByID finds a claim by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*ReservationClaim, error)

	// FindBySource lists claims held for a source document
	FindBySource(ctx context.Context, sourceType, sourceID string) ([]ReservationClaim, error)

	// FindExpired lists active claims past their expiry
	FindExpired(ctx context.Context) ([]ReservationClaim, error)
}
