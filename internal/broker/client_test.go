package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/safezone/internal/config"
)

// TestConnect_RequiresBroker verifies configuration validation.
func TestConnect_RequiresBroker(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), config.MQTT{})
	require.ErrorIs(t, err, errBrokerRequired)
}

// TestConnect_Unreachable verifies that a refused connection is reported.
func TestConnect_Unreachable(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), config.MQTT{Broker: "tcp://127.0.0.1:1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "connect to mqtt broker")
}
