package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/domain/ownership"
	"github.com/oshokin/safezone/internal/domain/tracking"
	"github.com/oshokin/safezone/internal/keymutex"
	"github.com/oshokin/safezone/internal/logger"
	entityrepo "github.com/oshokin/safezone/internal/repository/entity"
	"github.com/oshokin/safezone/internal/repository/fence"
	ownerrepo "github.com/oshokin/safezone/internal/repository/ownership"
	"github.com/oshokin/safezone/internal/service/notify"
)

// DefaultBoundaryDistance is the warning band around a fence, in meters.
const DefaultBoundaryDistance = 50.0

var (
	// ErrStoreUnavailable wraps persistence failures; callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned for entities that were never assigned.
	ErrNotFound = errors.New("entity not found")
	// ErrInvalidArgument is returned for malformed requests.
	ErrInvalidArgument = errors.New("invalid argument")

	// errEntitiesRequired is returned when no entity repository is configured.
	errEntitiesRequired = errors.New("entity repository is required")
	// errFencesRequired is returned when no fence source is configured.
	errFencesRequired = errors.New("fence source is required")
	// errDispatcherRequired is returned when no dispatcher is configured.
	errDispatcherRequired = errors.New("notification dispatcher is required")
)

// Thresholds are the per-farm classification and ladder parameters.
type Thresholds struct {
	// BoundaryDistance is the warning band around the fence, in meters.
	BoundaryDistance float64
	// Policy holds the ladder thresholds.
	Policy alarm.Policy
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BoundaryDistance: DefaultBoundaryDistance,
		Policy:           alarm.DefaultPolicy(),
	}
}

// ThresholdFunc returns the thresholds of a farm.
type ThresholdFunc func(farmID string) Thresholds

// Config wires the engine to its collaborators.
type Config struct {
	// Entities persists tracked entities.
	Entities entityrepo.Repository
	// Fences looks up farm fences.
	Fences fence.Source
	// Owners holds console sessions; a new registry is used when nil.
	Owners *ownerrepo.Registry
	// Dispatcher receives fired alarms.
	Dispatcher notify.Dispatcher
	// Thresholds returns per-farm thresholds; DefaultThresholds when nil.
	Thresholds ThresholdFunc
	// LivenessWindow is how long a console owns alarming after a heartbeat.
	LivenessWindow time.Duration
	// Clock returns the current time; time.Now when nil.
	Clock func() time.Time
}

// Engine is the position ingestion pipeline and its companions.
type Engine struct {
	// entities persists tracked entities.
	entities entityrepo.Repository
	// fences looks up farm fences.
	fences fence.Source
	// owners holds console sessions.
	owners *ownerrepo.Registry
	// dispatcher receives fired alarms.
	dispatcher notify.Dispatcher
	// thresholds returns per-farm thresholds.
	thresholds ThresholdFunc
	// liveness is the console liveness window.
	liveness time.Duration
	// now returns the current time.
	now func() time.Time
	// locks serializes mutations per entity.
	locks keymutex.KeyedMutex
	// hub fans updates out to subscribers.
	hub *hub
}

// New validates cfg and creates an engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Entities == nil:
		return nil, errEntitiesRequired
	case cfg.Fences == nil:
		return nil, errFencesRequired
	case cfg.Dispatcher == nil:
		return nil, errDispatcherRequired
	}

	e := &Engine{
		entities:   cfg.Entities,
		fences:     cfg.Fences,
		owners:     cfg.Owners,
		dispatcher: cfg.Dispatcher,
		thresholds: cfg.Thresholds,
		liveness:   cfg.LivenessWindow,
		now:        cfg.Clock,
		hub:        newHub(),
	}

	if e.owners == nil {
		e.owners = ownerrepo.NewRegistry()
	}

	if e.thresholds == nil {
		e.thresholds = func(string) Thresholds { return DefaultThresholds() }
	}

	if e.liveness <= 0 {
		e.liveness = ownership.DefaultLivenessWindow
	}

	if e.now == nil {
		e.now = time.Now
	}

	return e, nil
}

// load reads an entity and maps repository errors onto the engine taxonomy.
func (e *Engine) load(ctx context.Context, id string) (*tracking.Entity, error) {
	entity, err := e.entities.Load(ctx, id)
	if err != nil {
		if errors.Is(err, entityrepo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		return nil, fmt.Errorf("%w: load entity %s: %w", ErrStoreUnavailable, id, err)
	}

	return entity, nil
}

// save writes an entity and maps failures to ErrStoreUnavailable.
func (e *Engine) save(ctx context.Context, entity *tracking.Entity) error {
	if err := e.entities.Save(ctx, entity); err != nil {
		return fmt.Errorf("%w: save entity %s: %w", ErrStoreUnavailable, entity.ID, err)
	}

	return nil
}

// Entity returns the stored state of one entity.
func (e *Engine) Entity(ctx context.Context, id string) (*tracking.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity id is required", ErrInvalidArgument)
	}

	return e.load(ctx, id)
}

// Entities returns the stored state of every entity.
func (e *Engine) Entities(ctx context.Context) ([]*tracking.Entity, error) {
	entities, err := e.entities.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list entities: %w", ErrStoreUnavailable, err)
	}

	return entities, nil
}

// Assign binds an entity to a farm and owner, creating it on first use.
// A non-empty name replaces the display name.
func (e *Engine) Assign(ctx context.Context, id, farmID, ownerID, name string) (*tracking.Entity, error) {
	if id == "" || farmID == "" {
		return nil, fmt.Errorf("%w: entity id and farm id are required", ErrInvalidArgument)
	}

	unlock := e.locks.Lock(id)

	current, err := e.load(ctx, id)

	switch {
	case errors.Is(err, ErrNotFound):
		current = &tracking.Entity{ID: id}
	case err != nil:
		unlock()

		return nil, err
	}

	next := current.Clone()
	next.Assign(farmID, ownerID)

	if name != "" {
		next.Name = name
	}

	if err = e.save(ctx, next); err != nil {
		unlock()

		return nil, err
	}

	unlock()

	logger.InfoKV(ctx, "Entity assigned", "entity_id", id, "farm_id", farmID, "owner_id", ownerID)
	e.hub.publish(Update{Entity: next.Clone()})

	return next, nil
}

// Unassign removes an entity's farm binding; its alarm slots become not applicable.
func (e *Engine) Unassign(ctx context.Context, id string) (*tracking.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity id is required", ErrInvalidArgument)
	}

	unlock := e.locks.Lock(id)

	current, err := e.load(ctx, id)
	if err != nil {
		unlock()

		return nil, err
	}

	next := current.Clone()
	next.Unassign()

	if err = e.save(ctx, next); err != nil {
		unlock()

		return nil, err
	}

	unlock()

	logger.InfoKV(ctx, "Entity unassigned", "entity_id", id)
	e.hub.publish(Update{Entity: next.Clone()})

	return next, nil
}

// classify determines the zone of p for the entity, degrading to ZoneUnknown.
// The caller's logger already carries the entity id.
// Unassigned entities and fence problems are logged, never returned.
func (e *Engine) classify(ctx context.Context, entity *tracking.Entity, p geofence.Point) geofence.Zone {
	if !entity.Assigned() {
		return geofence.ZoneUnknown
	}

	f, err := e.fences.GetFence(ctx, entity.FarmID)
	if err != nil {
		logger.ErrorKV(ctx, "Fence lookup failed", "farm_id", entity.FarmID, "error", err)

		return geofence.ZoneUnknown
	}

	zone, err := geofence.Classify(p, f, e.thresholds(entity.FarmID).BoundaryDistance)
	if err != nil {
		if errors.Is(err, geofence.ErrInvalidGeometry) {
			logger.WarnKV(ctx, "Fence has invalid geometry", "farm_id", entity.FarmID, "error", err)
		} else {
			logger.DebugKV(ctx, "Position not classified", "error", err)
		}
	}

	return zone
}

// notification builds the dispatch request for a fired level.
func notification(entity *tracking.Entity, r alarm.FireResult, trigger notify.Trigger) notify.Notification {
	var position *geofence.Point
	if entity.LastPosition != nil {
		p := *entity.LastPosition
		position = &p
	}

	return notify.Notification{
		OwnerID:  entity.OwnerID,
		EntityID: entity.ID,
		Level:    r.Level,
		Context: notify.Context{
			EntityName:  entity.Name,
			FarmID:      entity.FarmID,
			Zone:        entity.Zone,
			Position:    position,
			Dwell:       entity.Dwell(),
			BreachCount: entity.BreachCount,
			FiredAt:     r.At,
			Trigger:     trigger,
		},
	}
}

// emit publishes an update and dispatches one notification per fired level.
// The caller's logger already carries the entity id.
func (e *Engine) emit(ctx context.Context, entity *tracking.Entity, fired []alarm.FireResult, trigger notify.Trigger) {
	for _, r := range fired {
		logger.InfoKV(ctx, "Alarm fired",
			"owner_id", entity.OwnerID,
			"level", r.Level.String(),
			"zone", entity.Zone.String(),
			"trigger", trigger.String())

		e.dispatcher.Notify(ctx, notification(entity, r, trigger))
	}

	e.hub.publish(Update{
		Entity:  entity.Clone(),
		Fired:   fired,
		Trigger: trigger,
	})
}
