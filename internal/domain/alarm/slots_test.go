package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/safezone/internal/domain/geofence"
)

// TestTryFire_Idempotent verifies fired-then-already-fired within one breach cycle and refire after reset.
func TestTryFire_Idempotent(t *testing.T) {
	t.Parallel()

	var (
		s      Slots
		policy = DefaultPolicy()
		t0     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	)

	s.Arm()

	first := s.TryFire(LevelDanger, geofence.ZoneDanger, 0, t0, policy)
	require.True(t, first.Fired)
	require.Equal(t, ReasonFired, first.Reason)
	require.NoError(t, first.Reason.Err())

	second := s.TryFire(LevelDanger, geofence.ZoneDanger, time.Second, t0.Add(time.Second), policy)
	require.False(t, second.Fired)
	require.Equal(t, ReasonAlreadyFired, second.Reason)
	require.ErrorIs(t, second.Reason.Err(), ErrAlreadyFired)
	require.Equal(t, t0, second.At, "fire time is write-once")

	s.Reset()

	third := s.TryFire(LevelDanger, geofence.ZoneDanger, 0, t0.Add(time.Minute), policy)
	require.True(t, third.Fired)
	require.Equal(t, t0.Add(time.Minute), third.At)
}

// TestTryFire_NotArmed verifies the zone requirements and the unassigned sentinel.
func TestTryFire_NotArmed(t *testing.T) {
	t.Parallel()

	var (
		policy = Policy{WarningDwell: 25 * time.Second}
		now    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	)

	var unassigned Slots
	res := unassigned.TryFire(LevelAudio, geofence.ZoneDanger, 0, now, policy)
	require.Equal(t, ReasonNotArmed, res.Reason)
	require.Equal(t, SlotNotApplicable, unassigned.State(LevelAudio, geofence.ZoneDanger))

	tests := []struct {
		name  string
		level Level
		zone  geofence.Zone
		dwell time.Duration
		fired bool
	}{
		{"audio while safe", LevelAudio, geofence.ZoneSafe, time.Hour, false},
		{"audio in warning", LevelAudio, geofence.ZoneWarning, 0, true},
		{"warning before dwell", LevelWarning, geofence.ZoneWarning, 24 * time.Second, false},
		{"warning at dwell", LevelWarning, geofence.ZoneWarning, 25 * time.Second, true},
		{"warning while in danger", LevelWarning, geofence.ZoneDanger, time.Hour, false},
		{"danger in warning", LevelDanger, geofence.ZoneWarning, time.Hour, false},
		{"danger immediately", LevelDanger, geofence.ZoneDanger, 0, true},
		{"danger while unknown", LevelDanger, geofence.ZoneUnknown, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var s Slots
			s.Arm()

			res := s.TryFire(tt.level, tt.zone, tt.dwell, now, policy)
			require.Equal(t, tt.fired, res.Fired)

			if !tt.fired {
				require.Equal(t, ReasonNotArmed, res.Reason)
				require.Nil(t, s.FiredAt(tt.level))
			}
		})
	}

	var s Slots
	s.Arm()
	require.Equal(t, ReasonUnknownLevel, s.TryFire(Level(7), geofence.ZoneDanger, 0, now, policy).Reason)
}

// TestTriggered_Derived verifies that the flag never reads true in the safe zone.
func TestTriggered_Derived(t *testing.T) {
	t.Parallel()

	var s Slots
	s.Arm()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, s.TryFire(LevelAudio, geofence.ZoneWarning, 0, now, DefaultPolicy()).Fired)

	require.True(t, s.Triggered(LevelAudio, geofence.ZoneWarning))
	require.Equal(t, SlotTriggered, s.State(LevelAudio, geofence.ZoneWarning))

	// The fire time survives until Reset, yet the flag follows the zone.
	require.False(t, s.Triggered(LevelAudio, geofence.ZoneSafe))
	require.Equal(t, SlotArmed, s.State(LevelAudio, geofence.ZoneSafe))
	require.False(t, s.Triggered(LevelWarning, geofence.ZoneWarning))
}

// TestSlots_DisarmAndClone verifies the sentinel transition and deep copying.
func TestSlots_DisarmAndClone(t *testing.T) {
	t.Parallel()

	var s Slots
	s.Arm()
	s.TryFire(LevelDanger, geofence.ZoneDanger, 0, time.Unix(100, 0), DefaultPolicy())

	c := s.Clone()
	require.Equal(t, s, c)
	require.NotSame(t, s.FiredAt(LevelDanger), c.FiredAt(LevelDanger))

	s.Disarm()
	require.False(t, s.Armed)
	require.Nil(t, s.FiredAt(LevelDanger))
	require.NotNil(t, c.FiredAt(LevelDanger))
}

// TestParseLevel verifies names and numbers.
func TestParseLevel(t *testing.T) {
	t.Parallel()

	for _, l := range Levels() {
		parsed, err := ParseLevel(l.String())
		require.NoError(t, err)
		require.Equal(t, l, parsed)
	}

	l, err := ParseLevel(" 2 ")
	require.NoError(t, err)
	require.Equal(t, LevelWarning, l)

	_, err = ParseLevel("4")
	require.ErrorIs(t, err, ErrUnknownLevel)

	_, err = ParseLevel("siren")
	require.ErrorIs(t, err, ErrUnknownLevel)
}
