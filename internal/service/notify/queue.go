package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/logger"
)

// DefaultQueueSize is the number of notifications buffered before new ones are dropped.
const DefaultQueueSize = 256

// geocodeTimeout bounds a reverse geocoding lookup.
const geocodeTimeout = 5 * time.Second

// Geocoder resolves coordinates to a place name.
type Geocoder interface {
	Reverse(ctx context.Context, p geofence.Point) (string, error)
}

// Queue is a bounded, asynchronous Dispatcher with a single delivery worker.
type Queue struct {
	// requests buffers notifications awaiting delivery.
	requests chan Notification
	// sinks receive every notification in order.
	sinks []Sink
	// limiter throttles outbound deliveries; nil means unlimited.
	limiter *rate.Limiter
	// geocoder enriches notifications with a location; nil disables enrichment.
	geocoder Geocoder
	// dropped counts notifications rejected because the buffer was full.
	dropped atomic.Int64
	// delivered counts notifications handed to all sinks.
	delivered atomic.Int64
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithRateLimit throttles deliveries to perSecond with the given burst.
// A non-positive rate disables throttling.
func WithRateLimit(perSecond float64, burst int) QueueOption {
	return func(q *Queue) {
		if perSecond <= 0 {
			q.limiter = nil

			return
		}

		if burst <= 0 {
			burst = 1
		}

		q.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithGeocoder enables reverse geocoding of notification positions.
func WithGeocoder(g Geocoder) QueueOption {
	return func(q *Queue) {
		q.geocoder = g
	}
}

// NewQueue creates a queue delivering to sinks. Call Run to start the worker.
func NewQueue(size int, sinks []Sink, opts ...QueueOption) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}

	q := &Queue{
		requests: make(chan Notification, size),
		sinks:    sinks,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Notify enqueues n without blocking. A missing event id is generated.
// When the buffer is full the notification is dropped and logged.
func (q *Queue) Notify(ctx context.Context, n Notification) {
	if n.EventID == "" {
		n.EventID = uuid.NewString()
	}

	select {
	case q.requests <- n:
	default:
		q.dropped.Add(1)
		logger.WarnKV(ctx, "Notification queue full, dropping notification",
			"event_id", n.EventID,
			"entity_id", n.EntityID,
			"level", n.Level.String())
	}
}

// Dropped returns the number of notifications dropped so far.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Delivered returns the number of notifications processed by the worker.
func (q *Queue) Delivered() int64 {
	return q.delivered.Load()
}

// Run delivers queued notifications until ctx is canceled.
func (q *Queue) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "notify")

	logger.InfoKV(ctx, "Notification worker started", "sinks", len(q.sinks), "buffer", cap(q.requests))

	for {
		select {
		case <-ctx.Done():
			logger.InfoKV(ctx, "Notification worker stopped", "pending", len(q.requests))

			return nil
		case n := <-q.requests:
			if err := q.deliver(ctx, n); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}

				logger.ErrorKV(ctx, "Notification delivery failed", "event_id", n.EventID, "error", err)
			}
		}
	}
}

// deliver throttles, enriches and fans out one notification.
// Sink failures are logged and do not stop other sinks.
func (q *Queue) deliver(ctx context.Context, n Notification) error {
	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	q.enrich(ctx, &n)

	for _, sink := range q.sinks {
		if err := sink.Deliver(ctx, n); err != nil {
			logger.ErrorKV(ctx, "Sink rejected notification",
				"sink", sink.Name(),
				"event_id", n.EventID,
				"error", err)
		}
	}

	q.delivered.Add(1)

	return nil
}

// enrich fills the location from the geocoder, keeping coordinates on failure.
func (q *Queue) enrich(ctx context.Context, n *Notification) {
	if q.geocoder == nil || n.Context.Location != "" || n.Context.Position == nil {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	location, err := q.geocoder.Reverse(lookupCtx, *n.Context.Position)
	if err != nil {
		logger.DebugKV(ctx, "Reverse geocoding failed, using coordinates", "event_id", n.EventID, "error", err)

		return
	}

	n.Context.Location = location
}
