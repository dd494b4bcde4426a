// Package memory provides an in-memory implementation of the stock
// repositories and transaction scope. It backs unit tests and local tooling;
// the Postgres implementation in the parent package is the production store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appstock "github.com/wms/backend/internal/application/stock"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/domain/stock"
)

type levelKey struct {
	itemID      uuid.UUID
	warehouseID uuid.UUID
}

// Store holds all engine state in memory. Reads hand out deep copies and
// writes replace whole aggregates, so callers can never mutate stored state
// except through Save. The transaction scope serializes critical sections on
// a single mutex, which gives the same per-key atomicity the row locks give
// in Postgres.
type Store struct {
	mu           sync.Mutex
	levels       map[uuid.UUID]*stock.StockLevel
	byKey        map[levelKey]uuid.UUID
	consumptions []stock.LotConsumption
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		levels: make(map[uuid.UUID]*stock.StockLevel),
		byKey:  make(map[levelKey]uuid.UUID),
	}
}

// Scope returns a transaction scope over this store. Execute holds the store
// lock for the duration of the callback and runs it against a staged copy of
// the state; the copy replaces the live state only when the callback
// succeeds, so a failed callback leaves the store untouched even after
// partial saves.
func (s *Store) Scope() appstock.TransactionScope {
	return &memoryScope{store: s}
}

// StockLevelRepo returns a standalone stock level repository for read paths
func (s *Store) StockLevelRepo() stock.StockLevelRepository {
	return &stockLevelRepo{store: s, locked: false}
}

// LotRepo returns the lot read repository
func (s *Store) LotRepo() stock.LotRepository {
	return &lotRepo{store: s}
}

// ClaimRepo returns the reservation claim read repository
func (s *Store) ClaimRepo() stock.ReservationClaimRepository {
	return &claimRepo{store: s}
}

// ConsumptionRepo returns the lot consumption repository
func (s *Store) ConsumptionRepo() stock.LotConsumptionRepository {
	return &consumptionRepo{store: s}
}

type memoryScope struct {
	store *Store
}

func (s *memoryScope) Execute(_ context.Context, fn func(repos appstock.TransactionalRepositories) error) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	staged := s.store.snapshot()
	if err := fn(&memoryRepos{store: staged}); err != nil {
		return err
	}

	s.store.levels = staged.levels
	s.store.byKey = staged.byKey
	s.store.consumptions = staged.consumptions
	return nil
}

type memoryRepos struct {
	store *Store
}

func (r *memoryRepos) StockLevelRepo() stock.StockLevelRepository {
	return &stockLevelRepo{store: r.store, locked: true}
}

func (r *memoryRepos) ClaimRepo() stock.ReservationClaimRepository {
	return &claimRepo{store: r.store, locked: true}
}

func (r *memoryRepos) ConsumptionRepo() stock.LotConsumptionRepository {
	return &consumptionRepo{store: r.store, locked: true}
}

var _ appstock.TransactionScope = (*memoryScope)(nil)
var _ appstock.TransactionalRepositories = (*memoryRepos)(nil)

// stockLevelRepo implements stock.StockLevelRepository over the store.
// Instances handed out by the transaction scope run with the store lock
// already held; standalone instances take it per call.
type stockLevelRepo struct {
	store  *Store
	locked bool
}

func (r *stockLevelRepo) lock() func() {
	if r.locked {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *stockLevelRepo) FindByID(_ context.Context, id uuid.UUID) (*stock.StockLevel, error) {
	defer r.lock()()
	level, ok := r.store.levels[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneLevel(level), nil
}

func (r *stockLevelRepo) FindByIDForUpdate(_ context.Context, id uuid.UUID) (*stock.StockLevel, error) {
	defer r.lock()()
	level, ok := r.store.levels[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneLevel(level), nil
}

func (r *stockLevelRepo) FindByItemAndWarehouse(_ context.Context, itemID, warehouseID uuid.UUID) (*stock.StockLevel, error) {
	defer r.lock()()
	return r.findByKey(itemID, warehouseID)
}

func (r *stockLevelRepo) FindByItemAndWarehouseForUpdate(_ context.Context, itemID, warehouseID uuid.UUID) (*stock.StockLevel, error) {
	defer r.lock()()
	return r.findByKey(itemID, warehouseID)
}

func (r *stockLevelRepo) GetOrCreateForUpdate(_ context.Context, itemID, warehouseID uuid.UUID) (*stock.StockLevel, error) {
	defer r.lock()()
	level, err := r.findByKey(itemID, warehouseID)
	if err == nil {
		return level, nil
	}
	if !shared.HasCode(err, shared.CodeNotFound) {
		return nil, err
	}

	created, err := stock.NewStockLevel(itemID, warehouseID)
	if err != nil {
		return nil, err
	}
	r.store.levels[created.ID] = cloneLevel(created)
	r.store.byKey[levelKey{itemID: itemID, warehouseID: warehouseID}] = created.ID
	return created, nil
}

func (r *stockLevelRepo) FindByWarehouse(_ context.Context, warehouseID uuid.UUID, filter shared.Filter) ([]stock.StockLevel, error) {
	defer r.lock()()

	matched := make([]stock.StockLevel, 0)
	for _, level := range r.store.levels {
		if level.WarehouseID == warehouseID {
			matched = append(matched, *cloneLevel(level))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return strings.Compare(matched[i].ItemID.String(), matched[j].ItemID.String()) < 0
	})

	start := filter.Offset()
	if start >= len(matched) {
		return []stock.StockLevel{}, nil
	}
	end := start + filter.Limit()
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (r *stockLevelRepo) Save(_ context.Context, level *stock.StockLevel) error {
	defer r.lock()()
	r.store.levels[level.ID] = cloneLevel(level)
	r.store.byKey[levelKey{itemID: level.ItemID, warehouseID: level.WarehouseID}] = level.ID
	return nil
}

func (r *stockLevelRepo) SaveWithLock(_ context.Context, level *stock.StockLevel) error {
	defer r.lock()()
	if stored, ok := r.store.levels[level.ID]; ok && stored.Version >= level.Version {
		return shared.ErrConcurrencyConflict
	}
	r.store.levels[level.ID] = cloneLevel(level)
	r.store.byKey[levelKey{itemID: level.ItemID, warehouseID: level.WarehouseID}] = level.ID
	return nil
}

func (r *stockLevelRepo) findByKey(itemID, warehouseID uuid.UUID) (*stock.StockLevel, error) {
	id, ok := r.store.byKey[levelKey{itemID: itemID, warehouseID: warehouseID}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneLevel(r.store.levels[id]), nil
}

type lotRepo struct {
	store  *Store
	locked bool
}

func (r *lotRepo) lock() func() {
	if r.locked {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *lotRepo) FindByID(_ context.Context, id uuid.UUID) (*stock.Lot, error) {
	defer r.lock()()
	for _, level := range r.store.levels {
		for i := range level.Lots {
			if level.Lots[i].ID == id {
				lot := level.Lots[i]
				return &lot, nil
			}
		}
	}
	return nil, shared.ErrNotFound
}

func (r *lotRepo) FindByStockLevel(_ context.Context, stockLevelID uuid.UUID) ([]stock.Lot, error) {
	defer r.lock()()
	level, ok := r.store.levels[stockLevelID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	lots := make([]stock.Lot, len(level.Lots))
	copy(lots, level.Lots)
	return lots, nil
}

func (r *lotRepo) FindAvailable(_ context.Context, itemID, warehouseID uuid.UUID) ([]stock.Lot, error) {
	defer r.lock()()
	id, ok := r.store.byKey[levelKey{itemID: itemID, warehouseID: warehouseID}]
	if !ok {
		return []stock.Lot{}, nil
	}
	return r.store.levels[id].AvailableLots(), nil
}

func (r *lotRepo) FindExpiringBefore(_ context.Context, deadline time.Time, filter shared.Filter) ([]stock.Lot, error) {
	defer r.lock()()

	matched := make([]stock.Lot, 0)
	for _, level := range r.store.levels {
		for _, lot := range level.Lots {
			if lot.HasStock() && lot.ExpiryAt != nil && lot.ExpiryAt.Before(deadline) {
				matched = append(matched, lot)
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ExpiryAt.Before(*matched[j].ExpiryAt)
	})

	start := filter.Offset()
	if start >= len(matched) {
		return []stock.Lot{}, nil
	}
	end := start + filter.Limit()
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

type claimRepo struct {
	store  *Store
	locked bool
}

func (r *claimRepo) lock() func() {
	if r.locked {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *claimRepo) FindByID(_ context.Context, id uuid.UUID) (*stock.ReservationClaim, error) {
	defer r.lock()()
	for _, level := range r.store.levels {
		for i := range level.Claims {
			if level.Claims[i].ID == id {
				claim := level.Claims[i]
				return &claim, nil
			}
		}
	}
	return nil, shared.ErrNotFound
}

func (r *claimRepo) FindBySource(_ context.Context, sourceType, sourceID string) ([]stock.ReservationClaim, error) {
	defer r.lock()()
	matched := make([]stock.ReservationClaim, 0)
	for _, level := range r.store.levels {
		for _, claim := range level.Claims {
			if claim.SourceType == sourceType && claim.SourceID == sourceID {
				matched = append(matched, claim)
			}
		}
	}
	return matched, nil
}

func (r *claimRepo) FindExpired(_ context.Context) ([]stock.ReservationClaim, error) {
	defer r.lock()()
	matched := make([]stock.ReservationClaim, 0)
	for _, level := range r.store.levels {
		for _, claim := range level.Claims {
			if claim.IsActive() && claim.IsExpired() {
				matched = append(matched, claim)
			}
		}
	}
	return matched, nil
}

type consumptionRepo struct {
	store  *Store
	locked bool
}

func (r *consumptionRepo) lock() func() {
	if r.locked {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *consumptionRepo) Create(_ context.Context, record *stock.LotConsumption) error {
	defer r.lock()()
	r.store.consumptions = append(r.store.consumptions, *record)
	return nil
}

func (r *consumptionRepo) CreateBatch(_ context.Context, records []*stock.LotConsumption) error {
	defer r.lock()()
	for _, record := range records {
		r.store.consumptions = append(r.store.consumptions, *record)
	}
	return nil
}

func (r *consumptionRepo) FindByLot(_ context.Context, lotID uuid.UUID) ([]stock.LotConsumption, error) {
	defer r.lock()()
	matched := make([]stock.LotConsumption, 0)
	for _, record := range r.store.consumptions {
		if record.LotID == lotID {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

func (r *consumptionRepo) FindByConsumingLine(_ context.Context, consumingLineID string) ([]stock.LotConsumption, error) {
	defer r.lock()()
	matched := make([]stock.LotConsumption, 0)
	for _, record := range r.store.consumptions {
		if record.ConsumingLineID == consumingLineID {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

// snapshot deep-copies the store state so a scope can stage its writes and
// drop them wholesale when the callback fails. Callers hold s.mu.
func (s *Store) snapshot() *Store {
	staged := &Store{
		levels:       make(map[uuid.UUID]*stock.StockLevel, len(s.levels)),
		byKey:        make(map[levelKey]uuid.UUID, len(s.byKey)),
		consumptions: make([]stock.LotConsumption, len(s.consumptions)),
	}
	for id, level := range s.levels {
		staged.levels[id] = cloneLevel(level)
	}
	for key, id := range s.byKey {
		staged.byKey[key] = id
	}
	copy(staged.consumptions, s.consumptions)
	return staged
}

// cloneLevel deep-copies an aggregate so stored state and caller state never
// alias. Pending domain events stay with the caller's copy.
func cloneLevel(level *stock.StockLevel) *stock.StockLevel {
	clone := *level
	clone.Lots = make([]stock.Lot, len(level.Lots))
	copy(clone.Lots, level.Lots)
	clone.Claims = make([]stock.ReservationClaim, len(level.Claims))
	copy(clone.Claims, level.Claims)
	clone.ClearDomainEvents()
	return &clone
}
