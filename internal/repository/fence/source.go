package fence

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/domain/geofence"
)

// Source looks up the fence of a farm. A farm without a fence yields (nil, nil).
type Source interface {
	GetFence(ctx context.Context, farmID string) (*geofence.Fence, error)
}

// StaticSource serves fences defined in configuration.
type StaticSource struct {
	// fences maps farm id to its fence.
	fences map[string]*geofence.Fence
}

// NewStaticSource builds a source from configured vertex lists.
func NewStaticSource(static map[string][]config.Vertex) *StaticSource {
	fences := make(map[string]*geofence.Fence, len(static))

	for farmID, vertices := range static {
		f := &geofence.Fence{
			FarmID:   farmID,
			Vertices: make([]geofence.Point, 0, len(vertices)),
		}

		for _, v := range vertices {
			f.Vertices = append(f.Vertices, geofence.Point{Lat: v.Lat, Lng: v.Lng})
		}

		fences[farmID] = f
	}

	return &StaticSource{fences: fences}
}

// GetFence returns a copy of the configured fence.
func (s *StaticSource) GetFence(_ context.Context, farmID string) (*geofence.Fence, error) {
	f, ok := s.fences[farmID]
	if !ok {
		return nil, nil //nolint:nilnil // No fence is a valid answer.
	}

	return clone(f), nil
}

// clone copies a fence so callers cannot mutate shared vertices.
func clone(f *geofence.Fence) *geofence.Fence {
	if f == nil {
		return nil
	}

	return &geofence.Fence{
		FarmID:   f.FarmID,
		Vertices: append([]geofence.Point(nil), f.Vertices...),
	}
}

// cacheEntry is a memoized lookup.
type cacheEntry struct {
	// fence is the looked up fence, possibly nil.
	fence *geofence.Fence
	// expires is when the entry must be refreshed.
	expires time.Time
}

// CachedSource memoizes lookups of another source for a fixed time.
// Fence edits therefore reach evaluations after at most ttl.
type CachedSource struct {
	// source is the wrapped source.
	source Source
	// ttl is how long an entry is served.
	ttl time.Duration
	// mu protects entries.
	mu sync.Mutex
	// entries maps farm id to the cached lookup.
	entries map[string]cacheEntry
}

// NewCachedSource wraps source with a cache of the given lifetime.
func NewCachedSource(source Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source:  source,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// GetFence serves a cached fence or refreshes it from the wrapped source.
// Failed lookups are not cached.
func (c *CachedSource) GetFence(ctx context.Context, farmID string) (*geofence.Fence, error) {
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.entries[farmID]
	c.mu.Unlock()

	if ok && now.Before(entry.expires) {
		return clone(entry.fence), nil
	}

	f, err := c.source.GetFence(ctx, farmID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[farmID] = cacheEntry{fence: clone(f), expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return f, nil
}
