package alarm

import (
	"errors"
	"time"

	"github.com/oshokin/safezone/internal/domain/geofence"
)

// DefaultWarningDwell is how long an entity must stay in the warning zone before LevelWarning fires.
const DefaultWarningDwell = 25 * time.Second

var (
	// ErrAlreadyFired is reported when the level already fired in the current breach cycle.
	ErrAlreadyFired = errors.New("alarm already fired")
	// ErrNotArmed is reported when the entity is unassigned or its zone does not satisfy the level.
	ErrNotArmed = errors.New("alarm not armed")
	// ErrUnknownLevel is reported for levels outside the ladder.
	ErrUnknownLevel = errUnknownLevel
)

// Reason explains the outcome of a fire attempt.
type Reason int

const (
	// ReasonFired means the level fired and the caller must dispatch a notification.
	ReasonFired Reason = iota
	// ReasonAlreadyFired means the level fired earlier in this breach cycle.
	ReasonAlreadyFired
	// ReasonNotArmed means the entity is unassigned or outside the level's zone requirement.
	ReasonNotArmed
	// ReasonUnknownLevel means the level is not part of the ladder.
	ReasonUnknownLevel
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonFired:
		return "fired"
	case ReasonAlreadyFired:
		return "already_fired"
	case ReasonNotArmed:
		return "not_armed"
	case ReasonUnknownLevel:
		return "unknown_level"
	default:
		return "unknown"
	}
}

// Err maps negative reasons to their sentinel errors. ReasonFired maps to nil.
func (r Reason) Err() error {
	switch r {
	case ReasonAlreadyFired:
		return ErrAlreadyFired
	case ReasonNotArmed:
		return ErrNotArmed
	case ReasonUnknownLevel:
		return ErrUnknownLevel
	default:
		return nil
	}
}

// FireResult is the outcome of TryFire.
type FireResult struct {
	// Level is the level that was attempted.
	Level Level
	// Fired is true only when this call set the fire time.
	Fired bool
	// Reason explains the outcome.
	Reason Reason
	// At is the fire time of the level, set for fired and already fired results.
	At time.Time
}

// SlotState is the observable state of one level.
type SlotState int

const (
	// SlotNotApplicable is the sentinel for entities without a farm assignment.
	SlotNotApplicable SlotState = iota
	// SlotArmed means the level can fire in the current breach cycle.
	SlotArmed
	// SlotTriggered means the level fired and the entity is still outside the fence.
	SlotTriggered
)

// String returns the slot state name.
func (s SlotState) String() string {
	switch s {
	case SlotArmed:
		return "armed"
	case SlotTriggered:
		return "triggered"
	default:
		return "not_applicable"
	}
}

// Policy holds the thresholds the ladder evaluates against.
type Policy struct {
	// WarningDwell is the continuous time in the warning zone required for LevelWarning.
	WarningDwell time.Duration
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{WarningDwell: DefaultWarningDwell}
}

// Satisfied reports whether zone and dwell meet the level's requirement.
func (p Policy) Satisfied(level Level, zone geofence.Zone, dwell time.Duration) bool {
	switch level {
	case LevelAudio:
		return zone.IsUnsafe()
	case LevelWarning:
		return zone == geofence.ZoneWarning && dwell >= p.WarningDwell
	case LevelDanger:
		return zone == geofence.ZoneDanger
	default:
		return false
	}
}

// Slots holds the fire times of the three levels for one entity.
// The zero value is the "not applicable" sentinel.
type Slots struct {
	// Armed is false while the entity has no farm assignment.
	Armed bool `json:"armed"`
	// TriggeredAt holds the fire time per level, indexed by level-1. Nil means not fired.
	TriggeredAt [levelCount]*time.Time `json:"triggered_at"`
}

// Arm makes the slots applicable, keeping any fire times.
func (s *Slots) Arm() {
	s.Armed = true
}

// Disarm returns the slots to the "not applicable" sentinel.
func (s *Slots) Disarm() {
	*s = Slots{}
}

// Reset clears every fire time, starting a new breach cycle.
func (s *Slots) Reset() {
	s.TriggeredAt = [levelCount]*time.Time{}
}

// FiredAt returns the fire time of the level, or nil.
func (s *Slots) FiredAt(level Level) *time.Time {
	if !level.Valid() {
		return nil
	}

	return s.TriggeredAt[level.index()]
}

// Triggered is the derived flag: the level fired and the zone is still unsafe.
func (s *Slots) Triggered(level Level, zone geofence.Zone) bool {
	return zone.IsUnsafe() && s.FiredAt(level) != nil
}

// State returns the observable state of the level for the given zone.
func (s *Slots) State(level Level, zone geofence.Zone) SlotState {
	switch {
	case !s.Armed:
		return SlotNotApplicable
	case s.Triggered(level, zone):
		return SlotTriggered
	default:
		return SlotArmed
	}
}

// TryFire attempts to fire the level. On success the fire time is set to now;
// the caller is responsible for dispatching exactly one notification.
func (s *Slots) TryFire(level Level, zone geofence.Zone, dwell time.Duration, now time.Time, policy Policy) FireResult {
	result := FireResult{Level: level}

	switch {
	case !level.Valid():
		result.Reason = ReasonUnknownLevel
	case !s.Armed:
		result.Reason = ReasonNotArmed
	case s.TriggeredAt[level.index()] != nil:
		result.Reason = ReasonAlreadyFired
		result.At = *s.TriggeredAt[level.index()]
	case !policy.Satisfied(level, zone, dwell):
		result.Reason = ReasonNotArmed
	default:
		at := now
		s.TriggeredAt[level.index()] = &at
		result.Fired = true
		result.Reason = ReasonFired
		result.At = at
	}

	return result
}

// Clone returns a deep copy of the slots.
func (s Slots) Clone() Slots {
	cloned := Slots{Armed: s.Armed}

	for i, at := range s.TriggeredAt {
		if at != nil {
			t := *at
			cloned.TriggeredAt[i] = &t
		}
	}

	return cloned
}
