package ownership

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/safezone/internal/domain/ownership"
)

// TestRegistry_Lifecycle verifies heartbeat, arbitration and disconnect through the registry.
func TestRegistry_Lifecycle(t *testing.T) {
	t.Parallel()

	var (
		reg    = NewRegistry()
		t0     = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
		window = domain.DefaultLivenessWindow
	)

	require.Nil(t, reg.Get("owner-1"))
	require.True(t, domain.OwnsAlarming(reg.Get("owner-1"), t0, window))

	rec := reg.Heartbeat("owner-1", "cow-1", t0)
	require.Equal(t, domain.StateConnected, rec.State)
	require.False(t, domain.OwnsAlarming(reg.Get("owner-1"), t0.Add(10*time.Second), window))
	require.True(t, domain.OwnsAlarming(reg.Get("owner-1"), t0.Add(31*time.Second), window))

	reg.Disconnect("owner-1")
	require.True(t, domain.OwnsAlarming(reg.Get("owner-1"), t0, window))

	// Snapshots are isolated from later writes.
	snapshot := reg.Get("owner-1")
	reg.Heartbeat("owner-1", "cow-2", t0.Add(time.Second))
	require.Equal(t, []string{"cow-1"}, snapshot.EntityIDs)
}

// TestRegistry_Sweep verifies that only stale connected records are disconnected.
func TestRegistry_Sweep(t *testing.T) {
	t.Parallel()

	var (
		reg = NewRegistry()
		t0  = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	)

	reg.Heartbeat("stale", "cow-1", t0)
	reg.Heartbeat("fresh", "cow-2", t0.Add(50*time.Second))
	reg.Disconnect("gone")

	swept := reg.Sweep(t0.Add(60*time.Second), 30*time.Second)
	require.Equal(t, []string{"stale"}, swept)
	require.Equal(t, domain.StateDisconnected, reg.Get("stale").State)
	require.Equal(t, domain.StateConnected, reg.Get("fresh").State)
	require.Len(t, reg.List(), 3)

	require.Empty(t, reg.Sweep(t0.Add(60*time.Second), 30*time.Second))
}

// TestRegistry_ConcurrentHeartbeats verifies that concurrent writers do not lose updates.
func TestRegistry_ConcurrentHeartbeats(t *testing.T) {
	t.Parallel()

	var (
		reg = NewRegistry()
		t0  = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
		wg  sync.WaitGroup
	)

	for i := range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			reg.Heartbeat("owner-1", string(rune('a'+i)), t0.Add(time.Duration(i)*time.Second))
		}()
	}

	wg.Wait()

	rec := reg.Get("owner-1")
	require.Len(t, rec.EntityIDs, 20)
	require.Equal(t, t0.Add(19*time.Second), rec.LastHeartbeat)
}
