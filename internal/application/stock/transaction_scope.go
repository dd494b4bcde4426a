package stock

import (
	"context"

	"github.com/wms/backend/internal/domain/stock"
)

// TransactionScope provides transactional access to the stock repositories.
// When a function is executed within a transaction scope, all repository
// operations are part of the same database transaction and commit or roll
// back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the stock repositories within
// a transaction. All repositories returned share the same underlying
// database transaction.
//
// Aggregate boundary notes:
//   - StockLevelRepo: repository for the StockLevel aggregate root. All
//     ledger mutations (including lots and claims) go through this
//     repository; its ForUpdate finders take the per-key lock.
//   - ClaimRepo: cross-aggregate claim queries (FindExpired, FindBySource).
//     Claims are child entities of StockLevel with separate read access for
//     the sweep and cancellation paths.
//   - ConsumptionRepo: append-only repository for lot consumption records.
//
// Lots are child entities within the StockLevel aggregate and do not have an
// independent write path; they are persisted via association handling when
// the aggregate root is saved.
type TransactionalRepositories interface {
	// StockLevelRepo returns the stock level repository scoped to the current transaction
	StockLevelRepo() stock.StockLevelRepository
	// ClaimRepo returns the reservation claim repository scoped to the current transaction
	ClaimRepo() stock.ReservationClaimRepository
	// ConsumptionRepo returns the lot consumption repository scoped to the current transaction
	ConsumptionRepo() stock.LotConsumptionRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. Useful for testing or when transaction support is not
// required.
type NoOpTransactionScope struct {
	stockLevelRepo  stock.StockLevelRepository
	claimRepo       stock.ReservationClaimRepository
	consumptionRepo stock.LotConsumptionRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	stockLevelRepo stock.StockLevelRepository,
	claimRepo stock.ReservationClaimRepository,
	consumptionRepo stock.LotConsumptionRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		stockLevelRepo:  stockLevelRepo,
		claimRepo:       claimRepo,
		consumptionRepo: consumptionRepo,
	}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// StockLevelRepo returns the stock level repository.
func (s *NoOpTransactionScope) StockLevelRepo() stock.StockLevelRepository {
	return s.stockLevelRepo
}

// ClaimRepo returns the reservation claim repository.
func (s *NoOpTransactionScope) ClaimRepo() stock.ReservationClaimRepository {
	return s.claimRepo
}

// ConsumptionRepo returns the lot consumption repository.
func (s *NoOpTransactionScope) ConsumptionRepo() stock.LotConsumptionRepository {
	return s.consumptionRepo
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
