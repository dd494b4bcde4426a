package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/wms/backend/internal/domain/approval"
	"github.com/wms/backend/internal/domain/document"
	"github.com/wms/backend/internal/domain/shared"
)

// ThresholdRepository is an in-memory approval.ThresholdRepository
type ThresholdRepository struct {
	mu         sync.RWMutex
	thresholds map[uuid.UUID]approval.Threshold
}

// NewThresholdRepository creates an empty in-memory threshold repository
func NewThresholdRepository() *ThresholdRepository {
	return &ThresholdRepository{
		thresholds: make(map[uuid.UUID]approval.Threshold),
	}
}

// FindAll returns every configured threshold
func (r *ThresholdRepository) FindAll(_ context.Context) ([]approval.Threshold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]approval.Threshold, 0, len(r.thresholds))
	for _, t := range r.thresholds {
		all = append(all, t)
	}
	return all, nil
}

// FindByDocumentType returns the thresholds of one document type
func (r *ThresholdRepository) FindByDocumentType(_ context.Context, docType document.Type) ([]approval.Threshold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]approval.Threshold, 0)
	for _, t := range r.thresholds {
		if t.DocumentType == docType {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// Save creates or updates a threshold
func (r *ThresholdRepository) Save(_ context.Context, threshold *approval.Threshold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thresholds[threshold.ID] = *threshold
	return nil
}

// Delete removes a threshold
func (r *ThresholdRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.thresholds[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.thresholds, id)
	return nil
}

var _ approval.ThresholdRepository = (*ThresholdRepository)(nil)
