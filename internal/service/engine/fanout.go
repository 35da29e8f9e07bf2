package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/tracking"
	"github.com/oshokin/safezone/internal/service/notify"
)

// DefaultSubscriberBuffer is the channel size of a subscription.
const DefaultSubscriberBuffer = 64

// Update is one entity change delivered to subscribers.
type Update struct {
	// Entity is the state after the change.
	Entity *tracking.Entity
	// Fired lists the levels that fired with the change.
	Fired []alarm.FireResult
	// Trigger is the path that produced the change.
	Trigger notify.Trigger
}

// hub fans updates out to subscribers. Slow subscribers lose updates.
type hub struct {
	// mu guards subscribers.
	mu sync.RWMutex
	// subscribers maps subscription ids to their channels.
	subscribers map[uint64]chan Update
	// nextID is the id of the next subscription.
	nextID uint64
	// dropped counts updates lost to full channels.
	dropped atomic.Int64
}

// newHub creates an empty hub.
func newHub() *hub {
	return &hub{subscribers: make(map[uint64]chan Update)}
}

// subscribe registers a channel and removes it once ctx is done.
func (h *hub) subscribe(ctx context.Context, buffer int) <-chan Update {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	ch := make(chan Update, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()

		h.mu.Lock()
		delete(h.subscribers, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// publish offers u to every subscriber without blocking.
func (h *hub) publish(u Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- u:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of entity updates that closes when ctx is done.
// Updates are dropped for a subscriber whose buffer is full.
func (e *Engine) Subscribe(ctx context.Context, buffer int) <-chan Update {
	return e.hub.subscribe(ctx, buffer)
}

// DroppedUpdates returns the number of updates lost to slow subscribers.
func (e *Engine) DroppedUpdates() int64 {
	return e.hub.dropped.Load()
}
