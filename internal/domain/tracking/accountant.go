package tracking

import (
	"errors"
	"time"

	"github.com/oshokin/safezone/internal/domain/geofence"
)

// ErrStaleClockSkew describes an event older than the entity's last zone change.
// It is never returned by Advance; callers log it when Outcome.Skew is set.
var ErrStaleClockSkew = errors.New("stale clock skew")

// Outcome describes what Advance changed.
type Outcome struct {
	// Transition is true when the zone changed.
	Transition bool
	// Initial is true when this was the entity's first classification.
	Initial bool
	// Breach is true on a safe to unsafe transition.
	Breach bool
	// Reset is true when the alarm slots were cleared by a return to safe.
	Reset bool
	// Skew is the amount of negative elapsed time that was clamped to zero.
	Skew time.Duration
	// From is the zone before the call.
	From geofence.Zone
}

// Advance returns a copy of e moved to zone at now, together with what changed.
//
// An unknown zone is a no-op. The first known zone only stamps the zone and
// time. Staying in the same zone recomputes the actual counter from
// now - LastZoneChange. A transition books the clamped elapsed time on the
// old class cumulative counter, leaves it as the final value of the old
// class actual counter, resets the new class actual counter, counts a
// breach on safe to unsafe and clears the alarm slots on unsafe to safe.
// Cumulative counters never decrease.
func Advance(e *Entity, zone geofence.Zone, now time.Time) (*Entity, Outcome) {
	next := e.Clone()
	outcome := Outcome{From: e.Zone}

	if zone == geofence.ZoneUnknown {
		return next, outcome
	}

	if e.Zone == geofence.ZoneUnknown {
		next.Zone = zone
		next.LastZoneChange = now
		next.ActualSafe, next.ActualUnsafe = 0, 0
		outcome.Transition = true
		outcome.Initial = true

		return next, outcome
	}

	elapsed := now.Sub(e.LastZoneChange)
	if elapsed < 0 {
		outcome.Skew = -elapsed
		elapsed = 0
	}

	if zone == e.Zone {
		// The previous stint's final value stays until this one has advanced.
		if elapsed > 0 {
			setActual(next, zone, elapsed)
		}

		return next, outcome
	}

	outcome.Transition = true

	if e.Zone == geofence.ZoneSafe {
		next.CumulativeSafe += elapsed
	} else {
		next.CumulativeUnsafe += elapsed
	}

	setActual(next, e.Zone, elapsed)

	if zone == geofence.ZoneSafe {
		next.ActualSafe = 0
	} else {
		next.ActualUnsafe = 0
	}

	switch {
	case e.Zone == geofence.ZoneSafe && zone.IsUnsafe():
		next.BreachCount++
		outcome.Breach = true
	case e.Zone.IsUnsafe() && zone == geofence.ZoneSafe:
		next.Alarms.Reset()
		outcome.Reset = true
	}

	next.Zone = zone
	// A late event must not move the stint start backwards.
	if now.After(e.LastZoneChange) {
		next.LastZoneChange = now
	}

	return next, outcome
}

// Refresh recomputes the actual counter of the current zone at now without a new position.
func Refresh(e *Entity, now time.Time) (*Entity, Outcome) {
	return Advance(e, e.Zone, now)
}

// setActual stores elapsed in the counter of zone's class and zeroes the other.
func setActual(e *Entity, zone geofence.Zone, elapsed time.Duration) {
	if zone == geofence.ZoneSafe {
		e.ActualSafe, e.ActualUnsafe = elapsed, 0

		return
	}

	e.ActualSafe, e.ActualUnsafe = 0, elapsed
}
