package approval

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wms/backend/internal/domain/document"
	"github.com/wms/backend/internal/domain/shared"
)

// Threshold maps a monetary bracket of one document type to the role that
// must approve it and the SLA window for doing so. Both bounds are
// inclusive; a nil MaxAmount means the bracket is unbounded above.
type Threshold struct {
	shared.BaseEntity
	DocumentType document.Type    `gorm:"type:varchar(50);not null;index"`
	MinAmount    decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	MaxAmount    *decimal.Decimal `gorm:"type:decimal(18,4)"` // nil = unbounded
	ApproverRole string           `gorm:"type:varchar(100);not null"`
	SLAHours     int              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Threshold) TableName() string {
	return "approval_thresholds"
}

// NewThreshold creates a validated threshold bracket
func NewThreshold(
	docType document.Type,
	minAmount decimal.Decimal,
	maxAmount *decimal.Decimal,
	approverRole string,
	slaHours int,
) (*Threshold, error) {
	if !docType.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Unknown document type")
	}
	if minAmount.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Minimum amount cannot be negative")
	}
	if maxAmount != nil && maxAmount.LessThan(minAmount) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Maximum amount is below minimum")
	}
	if approverRole == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Approver role is required")
	}
	if slaHours <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "SLA hours must be positive")
	}

	return &Threshold{
		BaseEntity:   shared.NewBaseEntity(),
		DocumentType: docType,
		MinAmount:    minAmount,
		MaxAmount:    maxAmount,
		ApproverRole: approverRole,
		SLAHours:     slaHours,
	}, nil
}

// Matches reports whether the amount falls inside this bracket
func (t *Threshold) Matches(amount decimal.Decimal) bool {
	if amount.LessThan(t.MinAmount) {
		return false
	}
	if t.MaxAmount != nil && amount.GreaterThan(*t.MaxAmount) {
		return false
	}
	return true
}

// ValidateBrackets checks that the brackets for one document type cover
// every non-negative amount without a gap. Overlaps are tolerated (Resolve
// picks the tightest lower bound); gaps are a configuration error that would
// strand valid submissions.
func ValidateBrackets(docType document.Type, brackets []Threshold) error {
	if len(brackets) == 0 {
		return shared.NewDomainError(shared.CodeNoApprovalRule,
			fmt.Sprintf("No approval brackets configured for document type %q", docType))
	}

	sorted := sortByMinAmount(brackets)

	if sorted[0].MinAmount.GreaterThan(decimal.Zero) {
		return shared.NewDomainError(shared.CodeNoApprovalRule,
			fmt.Sprintf("Approval brackets for %q do not cover amounts below %s",
				docType, sorted[0].MinAmount.String()))
	}

	// Walk the brackets tracking the highest amount covered so far
	covered := sorted[0].MaxAmount
	for _, b := range sorted[1:] {
		if covered == nil {
			break // already unbounded
		}
		// The next bracket must start at or below covered+epsilon; since
		// bounds are inclusive, a gap exists when min > covered and there is
		// any amount strictly between them
		if b.MinAmount.GreaterThan(*covered) && b.MinAmount.Sub(*covered).GreaterThan(decimal.New(1, -4)) {
			return shared.NewDomainError(shared.CodeNoApprovalRule,
				fmt.Sprintf("Approval brackets for %q leave a gap between %s and %s",
					docType, covered.String(), b.MinAmount.String()))
		}
		if b.MaxAmount == nil {
			covered = nil
		} else if b.MaxAmount.GreaterThan(*covered) {
			covered = b.MaxAmount
		}
	}

	if covered != nil {
		return shared.NewDomainError(shared.CodeNoApprovalRule,
			fmt.Sprintf("Approval brackets for %q are bounded at %s, leaving larger amounts unroutable",
				docType, covered.String()))
	}

	return nil
}

func sortByMinAmount(brackets []Threshold) []Threshold {
	sorted := make([]Threshold, len(brackets))
	copy(sorted, brackets)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinAmount.LessThan(sorted[j].MinAmount)
	})
	return sorted
}
