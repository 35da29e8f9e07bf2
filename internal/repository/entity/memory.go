package entity

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/oshokin/safezone/internal/domain/tracking"
)

// MemoryRepository keeps entities in process memory. State is lost on restart.
type MemoryRepository struct {
	// mu protects entities.
	mu sync.RWMutex
	// entities maps entity id to a private copy of the entity.
	entities map[string]*tracking.Entity
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entities: make(map[string]*tracking.Entity),
	}
}

// Load returns a copy of the stored entity.
func (r *MemoryRepository) Load(_ context.Context, id string) (*tracking.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[id]
	if !ok {
		return nil, ErrNotFound
	}

	return e.Clone(), nil
}

// Save stores a copy of the entity.
func (r *MemoryRepository) Save(_ context.Context, e *tracking.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities[e.ID] = e.Clone()

	return nil
}

// List returns copies of all entities ordered by id.
func (r *MemoryRepository) List(_ context.Context) ([]*tracking.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*tracking.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		result = append(result, e.Clone())
	}

	sortByID(result)

	return result, nil
}

// sortByID orders entities by id for stable listings.
func sortByID(entities []*tracking.Entity) {
	slices.SortFunc(entities, func(a, b *tracking.Entity) int {
		return strings.Compare(a.ID, b.ID)
	})
}
