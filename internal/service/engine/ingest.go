package engine

import (
	"context"
	"fmt"

	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/domain/tracking"
	"github.com/oshokin/safezone/internal/logger"
	"github.com/oshokin/safezone/internal/service/notify"
)

// IngestResult is the outcome of one accepted position.
type IngestResult struct {
	// Entity is the state after the position was applied.
	Entity *tracking.Entity
	// Zone is the classification of the position.
	Zone geofence.Zone
	// Outcome describes the accounting step.
	Outcome tracking.Outcome
	// Fired lists the levels that fired because of this position.
	Fired []alarm.FireResult
}

// Ingest applies one position report to its entity.
//
// The position is classified against the entity's farm fence, zone time is
// accounted, the automatic levels are evaluated and the result is written
// back. Fires happen here regardless of which console owns alarming.
// Replaying the same position is harmless: the accounting lands on the same
// state and fired levels report AlreadyFired.
func (e *Engine) Ingest(ctx context.Context, p tracking.Position) (*IngestResult, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	if p.Timestamp.IsZero() {
		p.Timestamp = e.now()
	}

	ctx = logger.WithKV(ctx, "entity_id", p.EntityID)

	unlock := e.locks.Lock(p.EntityID)

	current, err := e.load(ctx, p.EntityID)
	if err != nil {
		unlock()

		return nil, err
	}

	zone := e.classify(ctx, current, p.Point)

	next, outcome := tracking.Advance(current, zone, p.Timestamp)
	if outcome.Skew > 0 {
		logger.DebugKV(ctx, "Position older than last zone change",
			"skew", outcome.Skew,
			"error", tracking.ErrStaleClockSkew)
	}

	if !p.Timestamp.Before(current.LastPositionAt) {
		point := p.Point
		next.LastPosition = &point
		next.LastPositionAt = p.Timestamp
		next.Producer = p.Producer
	}

	// An unclassified position carries no zone evidence for the ladder.
	var fired []alarm.FireResult
	if zone != geofence.ZoneUnknown {
		fired = next.Escalate(p.Timestamp, e.thresholds(next.FarmID).Policy)
	}

	if err = e.save(ctx, next); err != nil {
		unlock()

		return nil, err
	}

	unlock()

	if outcome.Transition {
		logger.InfoKV(ctx, "Zone changed",
			"from", outcome.From.String(),
			"to", next.Zone.String(),
			"breach", outcome.Breach,
			"breach_count", next.BreachCount)
	}

	e.emit(ctx, next, fired, notify.TriggerIngest)

	return &IngestResult{
		Entity:  next,
		Zone:    zone,
		Outcome: outcome,
		Fired:   fired,
	}, nil
}
