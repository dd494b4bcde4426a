package document

import (
	"fmt"

	"github.com/wms/backend/internal/domain/shared"
)

// Status represents the lifecycle status shared by all document types that
// drive the stock engine
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusIssued          Status = "issued"
	StatusPartiallyIssued Status = "partially_issued"
	StatusCancelled       Status = "cancelled"
)

// IsValid checks if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusRejected,
		StatusIssued, StatusPartiallyIssued, StatusCancelled:
		return true
	}
	return false
}

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if no transition leaves this status
func (s Status) IsTerminal() bool {
	switch s {
	case StatusIssued, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo checks whether this status may move to target for the
// given document type. Types that disallow partial issue skip the
// partially_issued edges entirely.
func (s Status) CanTransitionTo(target Status, docType Type) bool {
	switch s {
	case StatusDraft:
		return target == StatusPendingApproval
	case StatusPendingApproval:
		return target == StatusApproved || target == StatusRejected
	case StatusApproved:
		switch target {
		case StatusIssued, StatusCancelled:
			return true
		case StatusPartiallyIssued:
			return docType.AllowsPartialIssue()
		}
		return false
	case StatusPartiallyIssued:
		if !docType.AllowsPartialIssue() {
			return false
		}
		return target == StatusIssued || target == StatusCancelled
	case StatusIssued, StatusRejected, StatusCancelled:
		return false // Terminal states
	}
	return false
}

// AssertTransition validates a status transition for a document type. It is
// a pure check with no side effects; callers invoke it before touching the
// reservation manager or the consumption engine. An illegal edge fails with
// INVALID_TRANSITION and must not be retried.
func AssertTransition(docType Type, current, target Status) error {
	if !docType.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Unknown document type")
	}
	if !current.IsValid() || !target.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Unknown document status")
	}
	if !current.CanTransitionTo(target, docType) {
		return shared.NewDomainError(shared.CodeInvalidTransition,
			fmt.Sprintf("Document type %q cannot move from %q to %q", docType, current, target))
	}
	return nil
}
