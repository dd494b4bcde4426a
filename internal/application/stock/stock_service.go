package stock

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/domain/stock"
)

// StockService orchestrates the stock ledger use cases: receiving, reserving,
// releasing and consuming. Every mutation runs inside a transaction scope,
// loads the affected ledger entries with per-key locks in a fixed order, lets
// the aggregates and domain services do the work, then persists with an
// optimistic version check.
type StockService struct {
	scope           TransactionScope
	levelRepo       stock.StockLevelRepository
	lotRepo         stock.LotRepository
	claimRepo       stock.ReservationClaimRepository
	consumptionRepo stock.LotConsumptionRepository
	reservations    *stock.ReservationService
	publisher       shared.EventPublisher
	logger          *zap.Logger
}

// NewStockService creates a new StockService
func NewStockService(
	scope TransactionScope,
	levelRepo stock.StockLevelRepository,
	lotRepo stock.LotRepository,
	claimRepo stock.ReservationClaimRepository,
	consumptionRepo stock.LotConsumptionRepository,
	reservations *stock.ReservationService,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *StockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{
		scope:           scope,
		levelRepo:       levelRepo,
		lotRepo:         lotRepo,
		claimRepo:       claimRepo,
		consumptionRepo: consumptionRepo,
		reservations:    reservations,
		publisher:       publisher,
		logger:          logger,
	}
}

// Receive posts the lines of a receiving document: each line creates a lot
// and raises the on-hand quantity of its ledger entry
func (s *StockService) Receive(ctx context.Context, req ReceiveStockRequest) (*ReceiveStockResult, error) {
	if len(req.Lines) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "At least one line is required")
	}

	result := &ReceiveStockResult{Lines: make([]ReceiveStockLineResult, 0, len(req.Lines))}
	var touched []*stock.StockLevel

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		levels, err := s.loadForUpdate(ctx, repos, keysOf(receiveKeys(req.Lines)), true)
		if err != nil {
			return err
		}

		for _, line := range req.Lines {
			level := levels[StockKey{ItemID: line.ItemID, WarehouseID: line.WarehouseID}]
			lot, err := level.Receive(line.Quantity, line.UnitCost, line.ProvenanceLineID, line.ExpiryAt)
			if err != nil {
				return err
			}
			result.Lines = append(result.Lines, ReceiveStockLineResult{
				StockLevelID: level.ID,
				LotID:        lot.ID,
				ItemID:       level.ItemID,
				WarehouseID:  level.WarehouseID,
				Quantity:     line.Quantity,
				QtyOnHand:    level.QtyOnHand,
				UnitCost:     level.UnitCost,
			})
		}

		touched = levelList(levels)
		return s.saveAll(ctx, repos, touched)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, touched)
	s.logger.Info("Posted stock receipt",
		zap.Int("lines", len(req.Lines)),
	)
	return result, nil
}

// Reserve places claims for all lines of a document according to its policy.
// Ledger entries are locked in a fixed key order so concurrent documents
// touching the same items cannot deadlock. Under ALL_OR_NOTHING a shortfall
// on any line leaves no line held; the compensated claims are still persisted
// as released, keeping the attempt auditable.
func (s *StockService) Reserve(ctx context.Context, req ReserveStockRequest) (*stock.ReservationResult, error) {
	if len(req.Lines) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "At least one line is required")
	}

	var result *stock.ReservationResult
	var touched []*stock.StockLevel

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		levels, err := s.loadForUpdate(ctx, repos, keysOf(reserveKeys(req.Lines)), false)
		if err != nil {
			return err
		}

		lines := make([]stock.ReservationLine, len(req.Lines))
		for i, line := range req.Lines {
			lines[i] = stock.ReservationLine{
				Level:    levels[StockKey{ItemID: line.ItemID, WarehouseID: line.WarehouseID}],
				LineID:   line.LineID,
				Quantity: line.Quantity,
			}
		}

		result, err = s.reservations.Reserve(ctx, stock.ReservationRequest{
			Lines:         lines,
			SourceType:    req.SourceType,
			Policy:        req.Policy,
			ClaimDuration: req.ClaimDuration,
		})
		if err != nil {
			return err
		}

		touched = levelList(levels)
		return s.saveAll(ctx, repos, touched)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, touched)
	s.logger.Info("Processed reservation",
		zap.String("source_type", req.SourceType),
		zap.String("policy", string(req.Policy)),
		zap.Bool("success", result.Success),
		zap.String("total_reserved", result.TotalReserved.String()),
	)
	return result, nil
}

// PreviewReservation reports per-line feasibility without placing claims or
// taking locks
func (s *StockService) PreviewReservation(ctx context.Context, req ReserveStockRequest) (*stock.ReservationPreview, error) {
	if len(req.Lines) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "At least one line is required")
	}

	lines := make([]stock.ReservationLine, len(req.Lines))
	for i, line := range req.Lines {
		level, err := s.levelRepo.FindByItemAndWarehouse(ctx, line.ItemID, line.WarehouseID)
		if err != nil {
			return nil, err
		}
		lines[i] = stock.ReservationLine{Level: level, LineID: line.LineID, Quantity: line.Quantity}
	}

	return s.reservations.PreviewReservation(ctx, stock.ReservationRequest{
		Lines:      lines,
		SourceType: req.SourceType,
		Policy:     req.Policy,
	})
}

// Release returns the claims held by the named document lines to available
// stock. Used on rejection and cancellation.
func (s *StockService) Release(ctx context.Context, req ReleaseStockRequest) (*stock.ReleaseResult, error) {
	if len(req.Keys) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "At least one stock key is required")
	}

	var result *stock.ReleaseResult
	var touched []*stock.StockLevel

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		levels, err := s.loadForUpdate(ctx, repos, keysOf(req.Keys), false)
		if err != nil {
			return err
		}

		touched = levelList(levels)
		result, err = s.reservations.ReleaseReservation(ctx, touched, req.SourceType, req.LineIDs)
		if err != nil {
			return err
		}

		return s.saveAll(ctx, repos, touched)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, touched)
	s.logger.Info("Released reservation claims",
		zap.String("source_type", req.SourceType),
		zap.Int("claims", len(result.Claims)),
		zap.String("total_released", result.TotalReleased.String()),
	)
	return result, nil
}

// Consume issues stock for the lines of an approved document. Lots are drawn
// in FEFO order and every draw is recorded with the lot's receipt cost. The
// whole request fails with INSUFFICIENT_STOCK if any line cannot be fully
// covered; nothing is consumed in that case.
func (s *StockService) Consume(ctx context.Context, req ConsumeStockRequest) (*ConsumeStockResult, error) {
	if len(req.Lines) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "At least one line is required")
	}

	result := &ConsumeStockResult{
		Lines:     make([]ConsumeStockLineResult, 0, len(req.Lines)),
		TotalCost: decimal.Zero,
	}
	var touched []*stock.StockLevel

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		levels, err := s.loadForUpdate(ctx, repos, keysOf(consumeKeys(req.Lines)), false)
		if err != nil {
			return err
		}

		records := make([]*stock.LotConsumption, 0, len(req.Lines))
		for _, line := range req.Lines {
			level := levels[StockKey{ItemID: line.ItemID, WarehouseID: line.WarehouseID}]

			// Later lines against the same entry see earlier deductions
			plan, err := stock.SelectLots(line.Quantity, level.AvailableLots())
			if err != nil {
				return err
			}
			if !plan.FullySatisfied {
				return shared.NewDomainError(shared.CodeInsufficientStock,
					"Lots cover "+plan.QtyConsumed.String()+" of "+line.Quantity.String()+
						" for line "+line.LineID)
			}

			lineRecords, err := level.ApplyConsumption(plan, line.LineID)
			if err != nil {
				return err
			}
			records = append(records, lineRecords...)

			result.Lines = append(result.Lines, ConsumeStockLineResult{
				LineID:           line.LineID,
				ItemID:           level.ItemID,
				WarehouseID:      level.WarehouseID,
				QtyConsumed:      plan.QtyConsumed,
				WeightedUnitCost: plan.WeightedUnitCost,
				TotalCost:        plan.TotalCost,
				Draws:            plan.Draws,
			})
			result.TotalCost = result.TotalCost.Add(plan.TotalCost)
		}

		if err := repos.ConsumptionRepo().CreateBatch(ctx, records); err != nil {
			return err
		}

		touched = levelList(levels)
		return s.saveAll(ctx, repos, touched)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvents(ctx, touched)
	s.logger.Info("Consumed stock",
		zap.Int("lines", len(req.Lines)),
		zap.String("total_cost", result.TotalCost.String()),
	)
	return result, nil
}

// PreviewConsumption reports the FEFO draws and weighted cost a consumption
// would produce, without touching the ledger
func (s *StockService) PreviewConsumption(ctx context.Context, itemID, warehouseID uuid.UUID, qty decimal.Decimal) (*ConsumptionPreview, error) {
	lots, err := s.lotRepo.FindAvailable(ctx, itemID, warehouseID)
	if err != nil {
		return nil, err
	}

	plan, err := stock.SelectLots(qty, lots)
	if err != nil {
		return nil, err
	}

	return &ConsumptionPreview{ItemID: itemID, WarehouseID: warehouseID, Plan: plan}, nil
}

// GetStockLevel returns the read model for one ledger entry
func (s *StockService) GetStockLevel(ctx context.Context, itemID, warehouseID uuid.UUID) (*StockLevelDTO, error) {
	level, err := s.levelRepo.FindByItemAndWarehouse(ctx, itemID, warehouseID)
	if err != nil {
		return nil, err
	}
	return ToStockLevelDTO(level), nil
}

// ListWarehouseStock lists the ledger entries of a warehouse
func (s *StockService) ListWarehouseStock(ctx context.Context, warehouseID uuid.UUID, filter shared.Filter) ([]StockLevelDTO, error) {
	levels, err := s.levelRepo.FindByWarehouse(ctx, warehouseID, filter)
	if err != nil {
		return nil, err
	}

	dtos := make([]StockLevelDTO, len(levels))
	for i := range levels {
		dtos[i] = *ToStockLevelDTO(&levels[i])
	}
	return dtos, nil
}

// ListExpiringLots lists undepleted lots expiring before the deadline
func (s *StockService) ListExpiringLots(ctx context.Context, deadline time.Time, filter shared.Filter) ([]stock.Lot, error) {
	return s.lotRepo.FindExpiringBefore(ctx, deadline, filter)
}

// GetLotConsumptions returns the consumption audit trail of one lot
func (s *StockService) GetLotConsumptions(ctx context.Context, lotID uuid.UUID) ([]stock.LotConsumption, error) {
	return s.consumptionRepo.FindByLot(ctx, lotID)
}

// GetLineConsumptions returns the consumption records written for a document line
func (s *StockService) GetLineConsumptions(ctx context.Context, lineID string) ([]stock.LotConsumption, error) {
	return s.consumptionRepo.FindByConsumingLine(ctx, lineID)
}

// GetClaimsBySource returns the claims held for a source document
func (s *StockService) GetClaimsBySource(ctx context.Context, sourceType, sourceID string) ([]stock.ReservationClaim, error) {
	return s.claimRepo.FindBySource(ctx, sourceType, sourceID)
}

// loadForUpdate loads the ledger entries for the given keys with per-key
// write locks. Keys are deduplicated and locked in sorted order; every caller
// acquiring multiple locks uses the same order, which rules out deadlocks
// between concurrent documents.
func (s *StockService) loadForUpdate(
	ctx context.Context,
	repos TransactionalRepositories,
	keys []StockKey,
	createMissing bool,
) (map[StockKey]*stock.StockLevel, error) {
	levels := make(map[StockKey]*stock.StockLevel, len(keys))
	for _, key := range keys {
		var level *stock.StockLevel
		var err error
		if createMissing {
			level, err = repos.StockLevelRepo().GetOrCreateForUpdate(ctx, key.ItemID, key.WarehouseID)
		} else {
			level, err = repos.StockLevelRepo().FindByItemAndWarehouseForUpdate(ctx, key.ItemID, key.WarehouseID)
		}
		if err != nil {
			return nil, err
		}
		levels[key] = level
	}
	return levels, nil
}

func (s *StockService) saveAll(ctx context.Context, repos TransactionalRepositories, levels []*stock.StockLevel) error {
	for _, level := range levels {
		if err := level.CheckInvariants(); err != nil {
			return err
		}
		if err := repos.StockLevelRepo().SaveWithLock(ctx, level); err != nil {
			return err
		}
	}
	return nil
}

func (s *StockService) publishEvents(ctx context.Context, levels []*stock.StockLevel) {
	if s.publisher == nil {
		return
	}
	for _, level := range levels {
		events := level.GetDomainEvents()
		if len(events) == 0 {
			continue
		}
		if err := s.publisher.Publish(ctx, events...); err != nil {
			s.logger.Warn("Failed to publish domain events",
				zap.String("stock_level_id", level.ID.String()),
				zap.Int("events", len(events)),
				zap.Error(err),
			)
			continue
		}
		level.ClearDomainEvents()
	}
}

// keysOf deduplicates and sorts stock keys into the canonical lock order
func keysOf(keys []StockKey) []StockKey {
	seen := make(map[StockKey]struct{}, len(keys))
	unique := make([]StockKey, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}

	sort.Slice(unique, func(i, j int) bool {
		if unique[i].ItemID != unique[j].ItemID {
			return unique[i].ItemID.String() < unique[j].ItemID.String()
		}
		return unique[i].WarehouseID.String() < unique[j].WarehouseID.String()
	})
	return unique
}

func receiveKeys(lines []ReceiveStockLine) []StockKey {
	keys := make([]StockKey, len(lines))
	for i, line := range lines {
		keys[i] = StockKey{ItemID: line.ItemID, WarehouseID: line.WarehouseID}
	}
	return keys
}

func reserveKeys(lines []ReserveStockLine) []StockKey {
	keys := make([]StockKey, len(lines))
	for i, line := range lines {
		keys[i] = StockKey{ItemID: line.ItemID, WarehouseID: line.WarehouseID}
	}
	return keys
}

func consumeKeys(lines []ConsumeStockLine) []StockKey {
	keys := make([]StockKey, len(lines))
	for i, line := range lines {
		keys[i] = StockKey{ItemID: line.ItemID, WarehouseID: line.WarehouseID}
	}
	return keys
}

func levelList(levels map[StockKey]*stock.StockLevel) []*stock.StockLevel {
	list := make([]*stock.StockLevel, 0, len(levels))
	for _, key := range keysOf(mapKeys(levels)) {
		list = append(list, levels[key])
	}
	return list
}

func mapKeys(levels map[StockKey]*stock.StockLevel) []StockKey {
	keys := make([]StockKey, 0, len(levels))
	for key := range levels {
		keys = append(keys, key)
	}
	return keys
}
