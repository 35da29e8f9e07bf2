package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/geofence"
)

// Trigger identifies the path that fired an alarm.
type Trigger int

const (
	// TriggerIngest is a fire caused by a new position.
	TriggerIngest Trigger = iota
	// TriggerMonitor is a fire caused by dwell time elapsing in the background monitor.
	TriggerMonitor
	// TriggerRequest is an explicit request, such as the audible alarm button.
	TriggerRequest
)

// String returns the trigger name.
func (t Trigger) String() string {
	switch t {
	case TriggerIngest:
		return "ingest"
	case TriggerMonitor:
		return "monitor"
	case TriggerRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Context describes the entity at the time the alarm fired.
type Context struct {
	// EntityName is the display name of the entity.
	EntityName string
	// FarmID is the farm the entity belongs to.
	FarmID string
	// Zone is the zone the entity was in.
	Zone geofence.Zone
	// Position is the last known position, if any.
	Position *geofence.Point
	// Location is a human readable place name, filled by the worker.
	Location string
	// Dwell is the time spent in the zone when the alarm fired.
	Dwell time.Duration
	// BreachCount is the entity's breach count.
	BreachCount int
	// FiredAt is the fire time of the level.
	FiredAt time.Time
	// Trigger is the path that fired the alarm.
	Trigger Trigger
}

// Notification is one alarm to deliver to an owner.
type Notification struct {
	// EventID uniquely identifies the notification for deduplication.
	EventID string
	// OwnerID is the operator to notify.
	OwnerID string
	// EntityID is the entity that raised the alarm.
	EntityID string
	// Level is the alarm level that fired.
	Level alarm.Level
	// Context describes the entity at fire time.
	Context Context
}

// Dispatcher accepts notifications for asynchronous delivery.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification)
}

// Sink delivers a notification to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// displayName returns the entity name, falling back to its id.
func (n *Notification) displayName() string {
	if n.Context.EntityName != "" {
		return n.Context.EntityName
	}

	return n.EntityID
}

// Subject returns a one-line summary of the notification.
func (n *Notification) Subject() string {
	switch n.Level {
	case alarm.LevelAudio:
		return fmt.Sprintf("Audible alarm raised for %s", n.displayName())
	case alarm.LevelWarning:
		return fmt.Sprintf("%s has been outside the fence for %s", n.displayName(), n.Context.Dwell.Round(time.Second))
	case alarm.LevelDanger:
		return fmt.Sprintf("%s is far outside the fence", n.displayName())
	default:
		return fmt.Sprintf("Alarm %s for %s", n.Level, n.displayName())
	}
}

// Where returns the resolved location, or the raw coordinates.
func (n *Notification) Where() string {
	if n.Context.Location != "" {
		return n.Context.Location
	}

	if p := n.Context.Position; p != nil {
		return fmt.Sprintf("%.6f, %.6f", p.Lat, p.Lng)
	}

	return "unknown location"
}

// Fields returns the notification as flat key-value pairs for structured sinks.
func (n *Notification) Fields() map[string]any {
	fields := map[string]any{
		"event_id":     n.EventID,
		"owner_id":     n.OwnerID,
		"entity_id":    n.EntityID,
		"entity_name":  n.Context.EntityName,
		"farm_id":      n.Context.FarmID,
		"level":        n.Level.String(),
		"level_number": int(n.Level),
		"zone":         n.Context.Zone.String(),
		"subject":      n.Subject(),
		"location":     n.Where(),
		"dwell":        n.Context.Dwell.Seconds(),
		"breach_count": n.Context.BreachCount,
		"fired_at":     n.Context.FiredAt.UTC().Format(time.RFC3339Nano),
		"trigger":      n.Context.Trigger.String(),
	}

	if p := n.Context.Position; p != nil {
		fields["lat"] = p.Lat
		fields["lng"] = p.Lng
	}

	return fields
}
