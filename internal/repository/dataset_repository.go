package repository

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/noah-isme/campus-insight/internal/models"
	appErrors "github.com/noah-isme/campus-insight/pkg/errors"
)

// catalog is an immutable snapshot of the registry. Writers build a new
// catalog and swap it in; readers never observe a partially applied change.
type catalog struct {
	order []string
	byID  map[string]*models.Dataset
}

// DatasetRepository is the in-memory registry of datasets.
type DatasetRepository struct {
	mu         sync.Mutex
	generation uint64
	current    atomic.Pointer[catalog]
}

// NewDatasetRepository returns an empty registry.
func NewDatasetRepository() *DatasetRepository {
	r := &DatasetRepository{}
	r.current.Store(&catalog{byID: map[string]*models.Dataset{}})
	return r
}

// ValidateID rejects empty, whitespace-only and underscore-bearing ids.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return appErrors.Clone(appErrors.ErrInvalidID, "dataset id must not be empty or whitespace")
	}
	if strings.Contains(id, "_") {
		return appErrors.Clone(appErrors.ErrInvalidID, fmt.Sprintf("dataset id %q must not contain an underscore", id))
	}
	return nil
}

// Add registers a dataset and returns all known ids in insertion order. The
// rows are copied so later changes by the caller cannot leak in.
func (r *DatasetRepository) Add(id string, kind models.DatasetKind, rows []models.Row) ([]string, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown dataset kind %q", kind))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if _, exists := cur.byID[id]; exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, fmt.Sprintf("dataset %q already exists", id))
	}

	r.generation++
	dataset := &models.Dataset{ID: id, Kind: kind, Rows: models.CloneRows(rows), Generation: r.generation}

	next := &catalog{
		order: append(append(make([]string, 0, len(cur.order)+1), cur.order...), id),
		byID:  make(map[string]*models.Dataset, len(cur.byID)+1),
	}
	for k, v := range cur.byID {
		next.byID[k] = v
	}
	next.byID[id] = dataset
	r.current.Store(next)

	ids := make([]string, len(next.order))
	copy(ids, next.order)
	return ids, nil
}

// Remove deletes a dataset and returns its id.
func (r *DatasetRepository) Remove(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current.Load()
	if _, exists := cur.byID[id]; !exists {
		return "", notFound(id)
	}

	next := &catalog{
		order: make([]string, 0, len(cur.order)),
		byID:  make(map[string]*models.Dataset, len(cur.byID)),
	}
	for _, existing := range cur.order {
		if existing != id {
			next.order = append(next.order, existing)
			next.byID[existing] = cur.byID[existing]
		}
	}
	r.current.Store(next)
	return id, nil
}

// List summarises every dataset in insertion order.
func (r *DatasetRepository) List() []models.DatasetSummary {
	cur := r.current.Load()
	out := make([]models.DatasetSummary, 0, len(cur.order))
	for _, id := range cur.order {
		out = append(out, cur.byID[id].Summary())
	}
	return out
}

// Lookup returns the current snapshot of a dataset. The snapshot is shared
// with concurrent queries and must not be modified.
func (r *DatasetRepository) Lookup(id string) (*models.Dataset, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	dataset, ok := r.current.Load().byID[id]
	if !ok {
		return nil, notFound(id)
	}
	return dataset, nil
}

func notFound(id string) error {
	return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("dataset %q not found", id))
}
