package ownership

import (
	"slices"
	"strings"
	"sync"
	"time"

	domain "github.com/oshokin/safezone/internal/domain/ownership"
	"github.com/oshokin/safezone/internal/keymutex"
)

// Registry stores one Record per owner.
type Registry struct {
	// locks serializes writers per owner.
	locks keymutex.KeyedMutex
	// mu protects the records map. Stored records are never mutated in place.
	mu sync.RWMutex
	// records maps owner id to its latest snapshot.
	records map[string]*domain.Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*domain.Record),
	}
}

// Get returns a copy of the owner's record, or nil when the owner never connected.
func (r *Registry) Get(ownerID string) *domain.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.records[ownerID].Clone()
}

// List returns copies of all records ordered by owner id.
func (r *Registry) List() []*domain.Record {
	r.mu.RLock()
	result := make([]*domain.Record, 0, len(r.records))

	for _, rec := range r.records {
		result = append(result, rec.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b *domain.Record) int {
		return strings.Compare(a.OwnerID, b.OwnerID)
	})

	return result
}

// Heartbeat creates or refreshes the owner's record and returns the new snapshot.
func (r *Registry) Heartbeat(ownerID, entityID string, now time.Time) *domain.Record {
	return r.update(ownerID, func(rec *domain.Record) {
		rec.Heartbeat(entityID, now)
	})
}

// Disconnect marks the owner's record disconnected. Unknown owners get a disconnected record.
func (r *Registry) Disconnect(ownerID string) *domain.Record {
	return r.update(ownerID, func(rec *domain.Record) {
		rec.Disconnect()
	})
}

// Sweep disconnects every connected record whose last heartbeat is older than window.
// It returns the owners that were disconnected.
func (r *Registry) Sweep(now time.Time, window time.Duration) []string {
	var swept []string

	for _, snapshot := range r.List() {
		if snapshot.State != domain.StateConnected || snapshot.Live(now, window) {
			continue
		}

		stale := false

		r.update(snapshot.OwnerID, func(rec *domain.Record) {
			// A heartbeat may have landed since the snapshot.
			if rec.State == domain.StateConnected && !rec.Live(now, window) {
				rec.Disconnect()

				stale = true
			}
		})

		if stale {
			swept = append(swept, snapshot.OwnerID)
		}
	}

	return swept
}

// update applies mutate to a copy of the owner's record under the owner lock and stores it.
func (r *Registry) update(ownerID string, mutate func(*domain.Record)) *domain.Record {
	unlock := r.locks.Lock(ownerID)
	defer unlock()

	rec := r.Get(ownerID)
	if rec == nil {
		rec = &domain.Record{OwnerID: ownerID}
	}

	mutate(rec)

	r.mu.Lock()
	r.records[ownerID] = rec
	r.mu.Unlock()

	return rec.Clone()
}
