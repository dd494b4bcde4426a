package persistence

import (
	"context"

	"gorm.io/gorm"

	appstock "github.com/wms/backend/internal/application/stock"
	"github.com/wms/backend/internal/domain/stock"
)

// GormTransactionScope implements the stock TransactionScope using GORM
// transactions. Row locks taken by the ForUpdate finders live until the
// transaction commits or rolls back.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appstock.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to the stock repositories
// within a transaction
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// StockLevelRepo returns the stock level repository scoped to the current transaction
func (r *gormTransactionalRepositories) StockLevelRepo() stock.StockLevelRepository {
	return NewGormStockLevelRepository(r.tx)
}

// ClaimRepo returns the reservation claim repository scoped to the current transaction
func (r *gormTransactionalRepositories) ClaimRepo() stock.ReservationClaimRepository {
	return NewGormReservationClaimRepository(r.tx)
}

// ConsumptionRepo returns the lot consumption repository scoped to the current transaction
func (r *gormTransactionalRepositories) ConsumptionRepo() stock.LotConsumptionRepository {
	return NewGormLotConsumptionRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appstock.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appstock.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
