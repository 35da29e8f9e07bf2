//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.ErrorIs(t, err, errAddressRequired)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	_, ok := ctx.Deadline()
	require.False(t, ok)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestFilter_fields verifies that empty filters still send every key.
func TestFilter_fields(t *testing.T) {
	t.Parallel()

	fields := Filter{FarmID: "farm-1"}.fields()
	require.Equal(t, map[string]any{
		"farm_id":   "farm-1",
		"owner_id":  "",
		"entity_id": "",
	}, fields)
}

// TestOptions verifies that options ignore non-positive timeouts and accumulate dial options.
func TestOptions(t *testing.T) {
	t.Parallel()

	c := &Client{callTimeout: time.Second}

	WithCallTimeout(0)(c)
	require.Equal(t, time.Second, c.callTimeout)

	WithCallTimeout(-time.Second)(c)
	require.Equal(t, time.Second, c.callTimeout)

	WithCallTimeout(3 * time.Second)(c)
	require.Equal(t, 3*time.Second, c.callTimeout)

	WithDialOptions(grpc.WithUserAgent("a"))(c)
	WithDialOptions(grpc.WithUserAgent("b"), grpc.WithUserAgent("c"))(c)
	require.Len(t, c.dialOptions, 3)
}
