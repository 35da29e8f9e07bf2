package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields and format validations for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing socket.
	settings := new(Config)

	err := Validate(settings)
	require.Error(t, err)

	// Bad socket.
	settings = &Config{
		ServerAddress: "bad:address",
	}

	err = Validate(settings)
	require.Error(t, err)

	// Unknown store driver.
	settings = &Config{
		ServerAddress: "127.0.0.1:0",
		Store:         Store{Driver: "cassandra"},
	}

	err = Validate(settings)
	require.ErrorIs(t, err, errUnknownStoreDriver)

	// Redis without address.
	settings = &Config{
		ServerAddress: "127.0.0.1:0",
		Store:         Store{Driver: StoreRedis},
	}

	err = Validate(settings)
	require.ErrorIs(t, err, errMissingConnection)

	// Vertex out of range.
	settings = &Config{
		ServerAddress: "127.0.0.1:0",
		Fences: Fences{
			Static: map[string][]Vertex{"farm-1": {{Lat: 91, Lng: 0}}},
		},
	}

	err = Validate(settings)
	require.ErrorIs(t, err, errInvalidVertex)

	// Okay with webhook.
	settings = &Config{
		ServerAddress: "127.0.0.1:0",
		Notify:        Notify{WebhookURL: "https://example.com/hooks/alarms"},
	}

	err = Validate(settings)
	require.NoError(t, err)
}

// TestValidate_FillsDefaults ensures zero values are replaced with documented defaults.
func TestValidate_FillsDefaults(t *testing.T) {
	t.Parallel()

	settings := &Config{ServerAddress: "127.0.0.1:50051"}
	require.NoError(t, Validate(settings))

	require.Equal(t, DefaultTimeout, settings.Timeout)
	require.InDelta(t, DefaultBoundaryDistance, settings.Geofence.BoundaryDistance, 0)
	require.Equal(t, DefaultWarningDwell, settings.Geofence.WarningDwell)
	require.Equal(t, DefaultMonitorInterval, settings.Monitor.Interval)
	require.Equal(t, DefaultMonitorStartDelay, settings.Monitor.StartDelay)
	require.Equal(t, DefaultLivenessWindow, settings.Monitor.LivenessWindow)
	require.Equal(t, StoreMemory, settings.Store.Driver)
	require.Equal(t, FenceStatic, settings.Fences.Source)
	require.Equal(t, DefaultQueueSize, settings.Notify.QueueSize)
}

// TestThresholds_FarmOverride verifies per-farm overrides fall back to defaults field by field.
func TestThresholds_FarmOverride(t *testing.T) {
	t.Parallel()

	settings := &Config{
		ServerAddress: "127.0.0.1:50051",
		Farms: map[string]Geofence{
			"hill": {BoundaryDistance: 80},
		},
	}
	require.NoError(t, Validate(settings))

	hill := settings.Thresholds("hill")
	require.InDelta(t, 80.0, hill.BoundaryDistance, 0)
	require.Equal(t, DefaultWarningDwell, hill.WarningDwell)

	valley := settings.Thresholds("valley")
	require.InDelta(t, DefaultBoundaryDistance, valley.BoundaryDistance, 0)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := &Config{
		ServerAddress: "127.0.0.1:50051",
		HTTPAddress:   "127.0.0.1:8080",
		Monitor:       Monitor{Interval: 2 * time.Second},
		Fences: Fences{
			Static: map[string][]Vertex{
				"farm-1": {{Lat: 35.44, Lng: 33.43}, {Lat: 35.45, Lng: 33.43}, {Lat: 35.45, Lng: 33.44}},
			},
		},
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.ServerAddress, loaded.ServerAddress)
	require.Equal(t, settings.HTTPAddress, loaded.HTTPAddress)
	require.Equal(t, 2*time.Second, loaded.Monitor.Interval)
	require.Equal(t, settings.Fences.Static, loaded.Fences.Static)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoad_ExpandsEnvFile verifies ${VAR} references are resolved from .env.local.
func TestLoad_ExpandsEnvFile(t *testing.T) {
	dir := t.TempDir()

	env := "SAFEZONE_TEST_WEBHOOK_TOKEN=s3cr3t\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultEnvFilename), []byte(env), DefaultFilePermissions))

	yamlBody := "server_addr: 127.0.0.1:50051\nnotify:\n  webhook_token: ${SAFEZONE_TEST_WEBHOOK_TOKEN}\n"
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), DefaultFilePermissions))

	t.Cleanup(func() { _ = os.Unsetenv("SAFEZONE_TEST_WEBHOOK_TOKEN") })

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", loaded.Notify.WebhookToken)
}
