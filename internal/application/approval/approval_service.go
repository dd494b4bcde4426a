package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wms/backend/internal/domain/approval"
	"github.com/wms/backend/internal/domain/document"
	"github.com/wms/backend/internal/domain/shared"
)

// ThresholdCache caches the full bracket table between router rebuilds.
// A miss returns NOT_FOUND. Implementations live in infrastructure/cache.
type ThresholdCache interface {
	Get(ctx context.Context) ([]approval.Threshold, error)
	Set(ctx context.Context, thresholds []approval.Threshold) error
	Invalidate(ctx context.Context) error
}

// ApprovalService resolves which role must approve a document submission and
// when that approval is due. The bracket table comes from the repository,
// optionally fronted by a cache; the built router is memoized until the
// table changes.
type ApprovalService struct {
	repo   approval.ThresholdRepository
	cache  ThresholdCache
	logger *zap.Logger

	mu     sync.RWMutex
	router *approval.Router
}

// NewApprovalService creates a new ApprovalService. The cache may be nil.
func NewApprovalService(
	repo approval.ThresholdRepository,
	cache ThresholdCache,
	logger *zap.Logger,
) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// ApprovalDecision is the routing outcome for one submission
type ApprovalDecision struct {
	DocumentType document.Type   `json:"document_type"`
	Amount       decimal.Decimal `json:"amount"`
	ApproverRole string          `json:"approver_role"`
	SLAHours     int             `json:"sla_hours"`
	DueAt        time.Time       `json:"due_at"`
}

// Resolve returns the route for a document type and amount
func (s *ApprovalService) Resolve(ctx context.Context, docType document.Type, amount decimal.Decimal) (*approval.Route, error) {
	router, err := s.getRouter(ctx)
	if err != nil {
		return nil, err
	}
	return router.Resolve(docType, amount)
}

// Submit routes a document entering approval: it validates the status
// transition into pending_approval, resolves the approver role and stamps
// the SLA deadline. The document itself lives with the caller; the engine
// only decides routing.
func (s *ApprovalService) Submit(
	ctx context.Context,
	docType document.Type,
	currentStatus document.Status,
	amount decimal.Decimal,
) (*ApprovalDecision, error) {
	if err := document.AssertTransition(docType, currentStatus, document.StatusPendingApproval); err != nil {
		return nil, err
	}

	route, err := s.Resolve(ctx, docType, amount)
	if err != nil {
		s.logger.Warn("Approval routing failed",
			zap.String("document_type", docType.String()),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		return nil, err
	}

	decision := &ApprovalDecision{
		DocumentType: docType,
		Amount:       amount,
		ApproverRole: route.ApproverRole,
		SLAHours:     route.SLAHours,
		DueAt:        route.DueAt(time.Now()),
	}

	s.logger.Info("Routed document for approval",
		zap.String("document_type", docType.String()),
		zap.String("amount", amount.String()),
		zap.String("approver_role", decision.ApproverRole),
		zap.Time("due_at", decision.DueAt),
	)
	return decision, nil
}

// SaveThreshold creates or updates a bracket and invalidates the cached table
func (s *ApprovalService) SaveThreshold(ctx context.Context, threshold *approval.Threshold) error {
	if err := s.repo.Save(ctx, threshold); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// DeleteThreshold removes a bracket and invalidates the cached table
func (s *ApprovalService) DeleteThreshold(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ListThresholds returns the brackets of one document type
func (s *ApprovalService) ListThresholds(ctx context.Context, docType document.Type) ([]approval.Threshold, error) {
	return s.repo.FindByDocumentType(ctx, docType)
}

// Refresh discards the memoized router and rebuilds it from the repository
func (s *ApprovalService) Refresh(ctx context.Context) error {
	s.invalidate(ctx)
	_, err := s.getRouter(ctx)
	return err
}

func (s *ApprovalService) getRouter(ctx context.Context) (*approval.Router, error) {
	s.mu.RLock()
	router := s.router
	s.mu.RUnlock()
	if router != nil {
		return router, nil
	}

	thresholds, err := s.loadThresholds(ctx)
	if err != nil {
		return nil, err
	}

	router, err = approval.NewRouter(thresholds)
	if err != nil {
		s.logger.Error("Approval bracket table is invalid", zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	s.router = router
	s.mu.Unlock()
	return router, nil
}

func (s *ApprovalService) loadThresholds(ctx context.Context) ([]approval.Threshold, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx)
		if err == nil {
			return cached, nil
		}
		if !shared.HasCode(err, shared.CodeNotFound) {
			s.logger.Warn("Threshold cache read failed", zap.Error(err))
		}
	}

	thresholds, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, thresholds); err != nil {
			s.logger.Warn("Threshold cache write failed", zap.Error(err))
		}
	}
	return thresholds, nil
}

func (s *ApprovalService) invalidate(ctx context.Context) {
	s.mu.Lock()
	s.router = nil
	s.mu.Unlock()
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("Threshold cache invalidation failed", zap.Error(err))
		}
	}
}
