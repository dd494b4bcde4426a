package approval

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms/backend/internal/domain/document"
	"github.com/wms/backend/internal/domain/shared"
)

// Route is the routing decision for one submission: who approves it and how
// long they have
type Route struct {
	ApproverRole string `json:"approver_role"`
	SLAHours     int    `json:"sla_hours"`
}

// DueAt returns the SLA deadline counted from now
func (r Route) DueAt(now time.Time) time.Time {
	return ComputeSlaDueAt(now, r.SLAHours)
}

// ComputeSlaDueAt returns now + slaHours. Pure; callers supply the clock.
func ComputeSlaDueAt(now time.Time, slaHours int) time.Time {
	return now.Add(time.Duration(slaHours) * time.Hour)
}

// Router resolves which approver role a document submission requires based
// on its type and monetary amount. It is read-only over a static bracket
// table and safe for concurrent use.
type Router struct {
	brackets map[document.Type][]Threshold
}

// NewRouter builds a router over the given thresholds. Brackets are grouped
// by document type; each group must pass ValidateBrackets so that no valid
// amount is left without a rule.
func NewRouter(thresholds []Threshold) (*Router, error) {
	brackets := make(map[document.Type][]Threshold)
	for _, t := range thresholds {
		brackets[t.DocumentType] = append(brackets[t.DocumentType], t)
	}

	for docType, group := range brackets {
		if err := ValidateBrackets(docType, group); err != nil {
			return nil, err
		}
	}

	return &Router{brackets: brackets}, nil
}

// Resolve selects the bracket for (documentType, amount). Among all matching
// brackets the one with the largest MinAmount wins, so accidental overlaps
// resolve to the most specific rule. A missing rule is a configuration gap
// and fails with NO_APPROVAL_RULE; callers must treat that as fatal for the
// submission rather than defaulting to an arbitrary role.
func (r *Router) Resolve(docType document.Type, amount decimal.Decimal) (*Route, error) {
	if !docType.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Unknown document type")
	}
	if amount.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Amount cannot be negative")
	}

	var best *Threshold
	for i := range r.brackets[docType] {
		t := &r.brackets[docType][i]
		if !t.Matches(amount) {
			continue
		}
		if best == nil || t.MinAmount.GreaterThan(best.MinAmount) {
			best = t
		}
	}

	if best == nil {
		return nil, shared.NewDomainError(shared.CodeNoApprovalRule,
			fmt.Sprintf("No approval rule for document type %q and amount %s", docType, amount.String()))
	}

	return &Route{
		ApproverRole: best.ApproverRole,
		SLAHours:     best.SLAHours,
	}, nil
}

// BracketsFor returns the configured brackets for a document type
func (r *Router) BracketsFor(docType document.Type) []Threshold {
	return r.brackets[docType]
}
