package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wms/backend/internal/domain/shared"
)

// ReservationPolicy selects how a multi-line reservation treats a shortfall
// on one of its lines. The policy is always an explicit caller decision,
// never an accident of loop order.
type ReservationPolicy string

const (
	// PolicyAllOrNothing reserves every line or none: a shortfall on any
	// line rolls back the claims already placed for the document.
	PolicyAllOrNothing ReservationPolicy = "ALL_OR_NOTHING"
	// PolicyBestEffort reserves each line independently and reports which
	// lines succeeded; the caller decides what a partial hold means.
	PolicyBestEffort ReservationPolicy = "BEST_EFFORT"
)

// IsValid checks if the policy is a known value
func (p ReservationPolicy) IsValid() bool {
	return p == PolicyAllOrNothing || p == PolicyBestEffort
}

// ReservationService coordinates reservations that span multiple StockLevel
// aggregates. Under PolicyAllOrNothing it applies compensation: claims placed
// before a failing line are released again, so the document ends up holding
// everything or nothing.
//
// The service mutates the aggregates in memory and does NOT persist them.
// The application layer retrieves the levels (locked, in a fixed key order),
// invokes this service, then persists and publishes inside its transaction.
type ReservationService struct {
	defaultClaimDuration time.Duration
}

// ReservationServiceOption is a functional option for ReservationService
type ReservationServiceOption func(*ReservationService)

// WithDefaultClaimDuration sets how long claims live before the expiry sweep
// may reclaim them
func WithDefaultClaimDuration(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.defaultClaimDuration = d
		}
	}
}

// NewReservationService creates a new reservation service
func NewReservationService(opts ...ReservationServiceOption) *ReservationService {
	s := &ReservationService{
		defaultClaimDuration: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultClaimDuration returns the configured claim lifetime
func (s *ReservationService) DefaultClaimDuration() time.Duration {
	return s.defaultClaimDuration
}

// ReservationLine is one document line to reserve
type ReservationLine struct {
	Level    *StockLevel     // Ledger entry to reserve against
	LineID   string          // Document line ID, recorded on the claim
	Quantity decimal.Decimal // Quantity to hold
}

// ReservationRequest reserves stock for all lines of one document
type ReservationRequest struct {
	Lines         []ReservationLine
	SourceType    string            // Document type, e.g. "mirv"
	Policy        ReservationPolicy // Explicit; there is no default
	ClaimDuration time.Duration     // Optional override of the claim lifetime
}

// Validate validates the reservation request
func (r *ReservationRequest) Validate() error {
	if len(r.Lines) == 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "At least one line is required")
	}
	if r.SourceType == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Source type is required")
	}
	if !r.Policy.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput,
			"Reservation policy must be ALL_OR_NOTHING or BEST_EFFORT")
	}
	for i, line := range r.Lines {
		if line.Level == nil {
			return shared.NewDomainError(shared.CodeInvalidInput,
				fmt.Sprintf("Stock level at index %d is nil", i))
		}
		if line.LineID == "" {
			return shared.NewDomainError(shared.CodeInvalidInput,
				fmt.Sprintf("Line ID at index %d is empty", i))
		}
		if line.Quantity.LessThanOrEqual(decimal.Zero) {
			return shared.NewDomainError(shared.CodeInvalidQuantity,
				fmt.Sprintf("Quantity at index %d must be positive", i))
		}
	}
	return nil
}

// ReservationLineResult reports the outcome for one line
type ReservationLineResult struct {
	StockLevelID uuid.UUID       `json:"stock_level_id"`
	ItemID       uuid.UUID       `json:"item_id"`
	WarehouseID  uuid.UUID       `json:"warehouse_id"`
	LineID       string          `json:"line_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	ClaimID      uuid.UUID       `json:"claim_id,omitempty"`
	ExpireAt     time.Time       `json:"expire_at,omitempty"`
	Success      bool            `json:"success"`
	Error        error           `json:"-"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// ReservationResult reports the outcome of reserving a whole document
type ReservationResult struct {
	CorrelationID uuid.UUID               `json:"correlation_id"`
	SourceType    string                  `json:"source_type"`
	Policy        ReservationPolicy       `json:"policy"`
	Lines         []ReservationLineResult `json:"lines"`
	TotalRequested decimal.Decimal        `json:"total_requested"`
	TotalReserved  decimal.Decimal        `json:"total_reserved"`

	// Success is true when every line holds a claim at return time
	Success bool `json:"success"`
	// Compensated is true when all-or-nothing rolled back earlier claims
	Compensated bool  `json:"compensated"`
	FailedLines []int `json:"failed_lines,omitempty"`
}

// HeldClaims returns the line results that still hold a claim
func (r *ReservationResult) HeldClaims() []ReservationLineResult {
	held := make([]ReservationLineResult, 0)
	for _, line := range r.Lines {
		if line.Success {
			held = append(held, line)
		}
	}
	return held
}

// Reserve places claims for all lines of the request according to its policy.
//
// PolicyAllOrNothing: every line is attempted; on any shortfall the claims
// already placed are released (compensation) and no line ends up held.
// PolicyBestEffort: each line is attempted independently; successful claims
// stay in place and FailedLines lists the rest.
//
// Either way a line can never oversell: StockLevel.Reserve rechecks
// availability under whatever lock the caller holds on the aggregate.
func (s *ReservationService) Reserve(_ context.Context, req ReservationRequest) (*ReservationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	claimDuration := s.defaultClaimDuration
	if req.ClaimDuration > 0 {
		claimDuration = req.ClaimDuration
	}
	expireAt := time.Now().Add(claimDuration)

	result := &ReservationResult{
		CorrelationID:  uuid.New(),
		SourceType:     req.SourceType,
		Policy:         req.Policy,
		Lines:          make([]ReservationLineResult, len(req.Lines)),
		TotalRequested: decimal.Zero,
		TotalReserved:  decimal.Zero,
	}
	for _, line := range req.Lines {
		result.TotalRequested = result.TotalRequested.Add(line.Quantity)
	}

	type placed struct {
		level *StockLevel
		claim *ReservationClaim
	}
	placedClaims := make([]placed, 0, len(req.Lines))

	for i, line := range req.Lines {
		lineResult := ReservationLineResult{
			StockLevelID: line.Level.ID,
			ItemID:       line.Level.ItemID,
			WarehouseID:  line.Level.WarehouseID,
			LineID:       line.LineID,
			Quantity:     line.Quantity,
		}

		claim, err := line.Level.Reserve(line.Quantity, req.SourceType, line.LineID, expireAt)
		if err != nil {
			lineResult.Success = false
			lineResult.Error = err
			lineResult.ErrorMessage = err.Error()
			result.Lines[i] = lineResult
			result.FailedLines = append(result.FailedLines, i)
			continue
		}

		lineResult.Success = true
		lineResult.ClaimID = claim.ID
		lineResult.ExpireAt = expireAt
		result.Lines[i] = lineResult
		result.TotalReserved = result.TotalReserved.Add(line.Quantity)
		placedClaims = append(placedClaims, placed{level: line.Level, claim: claim})
	}

	if len(result.FailedLines) == 0 {
		result.Success = true
		return result, nil
	}

	if req.Policy == PolicyAllOrNothing && len(placedClaims) > 0 {
		for _, p := range placedClaims {
			if err := p.level.ReleaseClaim(p.claim.ID); err == nil {
				result.TotalReserved = result.TotalReserved.Sub(p.claim.Quantity)
			}
		}
		for i := range result.Lines {
			result.Lines[i].Success = false
		}
		result.Compensated = true
	}

	result.Success = false
	return result, nil
}

// PreviewReservation reports per-line feasibility without placing any claims
func (s *ReservationService) PreviewReservation(_ context.Context, req ReservationRequest) (*ReservationPreview, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	preview := &ReservationPreview{
		SourceType:    req.SourceType,
		Lines:         make([]ReservationPreviewLine, len(req.Lines)),
		CanFulfillAll: true,
	}

	for i, line := range req.Lines {
		previewLine := ReservationPreviewLine{
			StockLevelID: line.Level.ID,
			ItemID:       line.Level.ItemID,
			WarehouseID:  line.Level.WarehouseID,
			LineID:       line.LineID,
			Requested:    line.Quantity,
			Available:    line.Level.Available(),
			CanFulfill:   line.Level.CanFulfill(line.Quantity),
		}
		if !previewLine.CanFulfill {
			previewLine.Shortage = line.Quantity.Sub(line.Level.Available())
			preview.CanFulfillAll = false
			preview.ShortageLines = append(preview.ShortageLines, i)
		}
		preview.Lines[i] = previewLine
	}

	return preview, nil
}

// ReservationPreview reports feasibility for a document without side effects
type ReservationPreview struct {
	SourceType    string                   `json:"source_type"`
	Lines         []ReservationPreviewLine `json:"lines"`
	CanFulfillAll bool                     `json:"can_fulfill_all"`
	ShortageLines []int                    `json:"shortage_lines,omitempty"`
}

// ReservationPreviewLine is the feasibility of one line
type ReservationPreviewLine struct {
	StockLevelID uuid.UUID       `json:"stock_level_id"`
	ItemID       uuid.UUID       `json:"item_id"`
	WarehouseID  uuid.UUID       `json:"warehouse_id"`
	LineID       string          `json:"line_id"`
	Requested    decimal.Decimal `json:"requested"`
	Available    decimal.Decimal `json:"available"`
	CanFulfill   bool            `json:"can_fulfill"`
	Shortage     decimal.Decimal `json:"shortage,omitempty"`
}

// ReleaseReservation releases the active claims a document's lines hold on
// the given levels. Claims record the document line ID as their source, so a
// whole-document cancellation passes every line ID. Used on cancellation and
// by the expiry sweep.
func (s *ReservationService) ReleaseReservation(
	_ context.Context,
	levels []*StockLevel,
	sourceType string,
	lineIDs []string,
) (*ReleaseResult, error) {
	if len(levels) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "At least one stock level is required")
	}
	if sourceType == "" || len(lineIDs) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Source type and line IDs are required")
	}

	lineSet := make(map[string]struct{}, len(lineIDs))
	for _, id := range lineIDs {
		lineSet[id] = struct{}{}
	}

	result := &ReleaseResult{
		CorrelationID: uuid.New(),
		SourceType:    sourceType,
		Claims:        make([]ReleasedClaim, 0),
		TotalReleased: decimal.Zero,
		Success:       true,
	}

	for _, level := range levels {
		for _, claim := range level.ActiveClaims() {
			if claim.SourceType != sourceType {
				continue
			}
			if _, ok := lineSet[claim.SourceID]; !ok {
				continue
			}
			released := ReleasedClaim{
				StockLevelID: level.ID,
				ClaimID:      claim.ID,
				LineID:       claim.SourceID,
				Quantity:     claim.Quantity,
			}
			if err := level.ReleaseClaim(claim.ID); err != nil {
				released.Success = false
				released.ErrorMessage = err.Error()
				result.Success = false
			} else {
				released.Success = true
				result.TotalReleased = result.TotalReleased.Add(claim.Quantity)
			}
			result.Claims = append(result.Claims, released)
		}
	}

	return result, nil
}

// ReleaseResult reports the outcome of releasing a document's claims
type ReleaseResult struct {
	CorrelationID uuid.UUID       `json:"correlation_id"`
	SourceType    string          `json:"source_type"`
	Claims        []ReleasedClaim `json:"claims"`
	TotalReleased decimal.Decimal `json:"total_released"`
	Success       bool            `json:"success"`
}

// ReleasedClaim is the outcome of releasing a single claim
type ReleasedClaim struct {
	StockLevelID uuid.UUID       `json:"stock_level_id"`
	ClaimID      uuid.UUID       `json:"claim_id"`
	LineID       string          `json:"line_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message,omitempty"`
}
