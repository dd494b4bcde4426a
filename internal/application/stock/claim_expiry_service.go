package stock

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/domain/stock"
)

// ClaimExpiryService reclaims reserved stock from claims whose documents
// never completed. It runs as a periodic sweep: expired active claims are
// released through their aggregates so the ledger invariants hold and the
// expiry events fire.
type ClaimExpiryService struct {
	scope     TransactionScope
	claimRepo stock.ReservationClaimRepository
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewClaimExpiryService creates a new ClaimExpiryService
func NewClaimExpiryService(
	scope TransactionScope,
	claimRepo stock.ReservationClaimRepository,
	publisher shared.EventPublisher,
	logger *zap.Logger,
) *ClaimExpiryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimExpiryService{
		scope:     scope,
		claimRepo: claimRepo,
		publisher: publisher,
		logger:    logger,
	}
}

// ExpiredClaimStats contains statistics about one sweep
type ExpiredClaimStats struct {
	TotalExpired    int       `json:"total_expired"`
	ClaimsReleased  int       `json:"claims_released"`
	LevelsProcessed int       `json:"levels_processed"`
	FailedLevels    int       `json:"failed_levels"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// ReleaseExpiredClaims finds all expired active claims and releases them
// through their stock levels. Each level is processed in its own
// transaction; a conflict on one level does not block the rest of the sweep.
func (s *ClaimExpiryService) ReleaseExpiredClaims(ctx context.Context) (*ExpiredClaimStats, error) {
	stats := &ExpiredClaimStats{ProcessedAt: time.Now()}

	expired, err := s.claimRepo.FindExpired(ctx)
	if err != nil {
		s.logger.Error("Failed to find expired claims", zap.Error(err))
		return nil, err
	}

	stats.TotalExpired = len(expired)
	if stats.TotalExpired == 0 {
		s.logger.Debug("No expired reservation claims found")
		return stats, nil
	}

	levelIDs := levelIDsOf(expired)
	s.logger.Info("Found expired reservation claims",
		zap.Int("claims", stats.TotalExpired),
		zap.Int("levels", len(levelIDs)),
	)

	for _, levelID := range levelIDs {
		released, err := s.releaseForLevel(ctx, levelID)
		if err != nil {
			s.logger.Error("Failed to release expired claims for stock level",
				zap.String("stock_level_id", levelID.String()),
				zap.Error(err),
			)
			stats.FailedLevels++
			continue
		}
		stats.ClaimsReleased += released
		stats.LevelsProcessed++
	}

	s.logger.Info("Completed expired claim sweep",
		zap.Int("total", stats.TotalExpired),
		zap.Int("released", stats.ClaimsReleased),
		zap.Int("failed_levels", stats.FailedLevels),
	)
	return stats, nil
}

// Run sweeps on the given interval until the context is cancelled
func (s *ClaimExpiryService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Claim expiry sweep started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Claim expiry sweep stopped")
			return
		case <-ticker.C:
			if _, err := s.ReleaseExpiredClaims(ctx); err != nil {
				s.logger.Error("Claim expiry sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *ClaimExpiryService) releaseForLevel(ctx context.Context, levelID uuid.UUID) (int, error) {
	released := 0
	var level *stock.StockLevel

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		level, err = repos.StockLevelRepo().FindByIDForUpdate(ctx, levelID)
		if err != nil {
			return err
		}

		released = level.ReleaseExpiredClaims()
		if released == 0 {
			return nil
		}
		if err := level.CheckInvariants(); err != nil {
			return err
		}
		return repos.StockLevelRepo().SaveWithLock(ctx, level)
	})
	if err != nil {
		return 0, err
	}

	if released > 0 && s.publisher != nil {
		events := level.GetDomainEvents()
		if err := s.publisher.Publish(ctx, events...); err != nil {
			s.logger.Warn("Failed to publish expiry events",
				zap.String("stock_level_id", levelID.String()),
				zap.Error(err),
			)
		} else {
			level.ClearDomainEvents()
		}
	}
	return released, nil
}

func levelIDsOf(claims []stock.ReservationClaim) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(claims))
	ids := make([]uuid.UUID, 0, len(claims))
	for _, claim := range claims {
		if _, ok := seen[claim.StockLevelID]; ok {
			continue
		}
		seen[claim.StockLevelID] = struct{}{}
		ids = append(ids, claim.StockLevelID)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}
