package approval

import (
	"context"

	"github.com/google/uuid"

	"github.com/wms/backend/internal/domain/document"
)

// ThresholdRepository persists the approval bracket table. The table is
// small and read-heavy; callers cache the full set and rebuild their router
// when it changes.
type ThresholdRepository interface {
	// FindAll returns every configured threshold
	FindAll(ctx context.Context) ([]Threshold, error)

	// FindByDocumentType returns the thresholds of one document type
	FindByDocumentType(ctx context.Context, docType document.Type) ([]Threshold, error)

	// Save creates or updates a threshold
	Save(ctx context.Context, threshold *Threshold) error

	// Delete removes a threshold
	Delete(ctx context.Context, id uuid.UUID) error
}
