package tracking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/geofence"
)

// Producer is the kind of source that reports positions for an entity.
type Producer int

const (
	// ProducerUnknown is used when the source did not identify itself.
	ProducerUnknown Producer = iota
	// ProducerCollar is a physical GPS collar.
	ProducerCollar
	// ProducerSimulator is the virtual cow simulator.
	ProducerSimulator
	// ProducerRecovery is an agent walking a recovery session.
	ProducerRecovery
)

// errUnknownProducer is returned when parsing an unrecognized producer.
var errUnknownProducer = errors.New("unknown producer")

// String returns the producer name.
func (p Producer) String() string {
	switch p {
	case ProducerCollar:
		return "collar"
	case ProducerSimulator:
		return "simulator"
	case ProducerRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// ParseProducer converts a name to a Producer. An empty string is ProducerUnknown.
func ParseProducer(s string) (Producer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return ProducerUnknown, nil
	case "collar":
		return ProducerCollar, nil
	case "simulator":
		return ProducerSimulator, nil
	case "recovery":
		return ProducerRecovery, nil
	default:
		return ProducerUnknown, fmt.Errorf("%w: %q", errUnknownProducer, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Producer) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Producer) UnmarshalText(text []byte) error {
	parsed, err := ParseProducer(string(text))
	if err != nil {
		return err
	}

	*p = parsed

	return nil
}

// Entity is one physical or virtual animal and everything the engine knows about it.
type Entity struct {
	// ID identifies the entity.
	ID string `json:"id"`
	// Name is a display name used in notifications.
	Name string `json:"name,omitempty"`
	// FarmID is the farm the entity is assigned to; empty when unassigned.
	FarmID string `json:"farm_id,omitempty"`
	// OwnerID is the operator who receives this entity's alarms.
	OwnerID string `json:"owner_id,omitempty"`
	// Producer is the kind of source that last reported a position.
	Producer Producer `json:"producer"`
	// Zone is the current zone.
	Zone geofence.Zone `json:"zone"`
	// LastZoneChange is when the entity entered the current zone.
	LastZoneChange time.Time `json:"last_zone_change"`
	// CumulativeSafe is the all-time total spent in the safe zone, excluding the current stint.
	CumulativeSafe time.Duration `json:"cumulative_safe"`
	// CumulativeUnsafe is the all-time total spent outside the fence, excluding the current stint.
	CumulativeUnsafe time.Duration `json:"cumulative_unsafe"`
	// ActualSafe is the time since the last transition while safe.
	ActualSafe time.Duration `json:"actual_safe"`
	// ActualUnsafe is the time since the last transition while outside the fence.
	ActualUnsafe time.Duration `json:"actual_unsafe"`
	// BreachCount is the number of safe to unsafe transitions.
	BreachCount int `json:"breach_count"`
	// Alarms are the three ladder slots.
	Alarms alarm.Slots `json:"alarms"`
	// LastPosition is the most recent reported position, if any.
	LastPosition *geofence.Point `json:"last_position,omitempty"`
	// LastPositionAt is the producer timestamp of LastPosition.
	LastPositionAt time.Time `json:"last_position_at"`
}

// New creates an entity assigned to a farm, with armed alarm slots.
func New(id, farmID, ownerID string) *Entity {
	e := &Entity{ID: id}
	e.Assign(farmID, ownerID)

	return e
}

// Assign binds the entity to a farm and owner. An empty farm unassigns it.
func (e *Entity) Assign(farmID, ownerID string) {
	e.FarmID = farmID
	e.OwnerID = ownerID

	if farmID == "" {
		e.Alarms.Disarm()

		return
	}

	e.Alarms.Arm()
}

// Unassign removes the farm binding and puts the alarm slots into the "not applicable" state.
func (e *Entity) Unassign() {
	e.Assign("", e.OwnerID)
}

// Assigned reports whether the entity belongs to a farm.
func (e *Entity) Assigned() bool {
	return e.FarmID != "" && e.Alarms.Armed
}

// Dwell returns the actual time spent in the current zone.
func (e *Entity) Dwell() time.Duration {
	if e.Zone == geofence.ZoneSafe {
		return e.ActualSafe
	}

	return e.ActualUnsafe
}

// Triggered is the derived alarm flag for the level.
func (e *Entity) Triggered(level alarm.Level) bool {
	return e.Alarms.Triggered(level, e.Zone)
}

// TryFire attempts to fire the level against the entity's current zone and dwell.
func (e *Entity) TryFire(level alarm.Level, now time.Time, policy alarm.Policy) alarm.FireResult {
	return e.Alarms.TryFire(level, e.Zone, e.Dwell(), now, policy)
}

// Escalate tries every automatic level and returns the ones that fired.
func (e *Entity) Escalate(now time.Time, policy alarm.Policy) []alarm.FireResult {
	var fired []alarm.FireResult

	for _, level := range alarm.AutomaticLevels() {
		if res := e.TryFire(level, now, policy); res.Fired {
			fired = append(fired, res)
		}
	}

	return fired
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}

	cloned := *e
	cloned.Alarms = e.Alarms.Clone()

	if e.LastPosition != nil {
		p := *e.LastPosition
		cloned.LastPosition = &p
	}

	return &cloned
}
