package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the safezone binaries.
type Config struct {
	// ServerAddress is the gRPC address of the geofence engine.
	ServerAddress string `yaml:"server_addr"`
	// HTTPAddress is the listen address of the console HTTP API. Empty disables it.
	HTTPAddress string `yaml:"http_addr,omitempty"`
	// Timeout is the duration for network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// LogLevel is the minimum level written by the logger.
	LogLevel string `yaml:"log_level,omitempty"`
	// LogFormat selects the log encoder: "console" or "json".
	LogFormat string `yaml:"log_format,omitempty"`
	// Geofence holds the default zone classification and alarm thresholds.
	Geofence Geofence `yaml:"geofence"`
	// Farms overrides Geofence thresholds per farm id.
	Farms map[string]Geofence `yaml:"farms,omitempty"`
	// Monitor configures the background monitor loop and console liveness.
	Monitor Monitor `yaml:"monitor"`
	// Store selects where tracked entity state is persisted.
	Store Store `yaml:"store"`
	// Fences selects where farm boundaries are read from.
	Fences Fences `yaml:"fences"`
	// Notify configures alarm notification delivery.
	Notify Notify `yaml:"notify"`
	// MQTT configures the broker used by collars and the MQTT notification sink.
	MQTT MQTT `yaml:"mqtt,omitempty"`
}

// Geofence holds thresholds that may vary per farm.
type Geofence struct {
	// BoundaryDistance is the width in meters of the warning band outside the fence.
	BoundaryDistance float64 `yaml:"boundary_distance,omitempty"`
	// WarningDwell is how long an animal must stay in the warning band before the level-2 alarm.
	WarningDwell time.Duration `yaml:"warning_dwell,omitempty"`
}

// Monitor configures the background monitor.
type Monitor struct {
	// Interval is the period between two monitor passes.
	Interval time.Duration `yaml:"interval"`
	// StartDelay postpones the first pass after startup. A negative value starts immediately.
	StartDelay time.Duration `yaml:"start_delay"`
	// LivenessWindow is how long a console heartbeat keeps ownership.
	LivenessWindow time.Duration `yaml:"liveness_window"`
	// SweepInterval is the period of the stale console sweep.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Store selects the entity repository.
type Store struct {
	// Driver is one of memory, file, redis, postgres.
	Driver string `yaml:"driver"`
	// Path is the JSON file used by the file driver.
	Path string `yaml:"path,omitempty"`
	// Redis holds connection settings for the redis driver.
	Redis Redis `yaml:"redis,omitempty"`
	// Postgres holds connection settings for the postgres driver.
	Postgres Postgres `yaml:"postgres,omitempty"`
}

// Redis holds Redis connection settings.
type Redis struct {
	// Addr is the host:port of the Redis server.
	Addr string `yaml:"addr"`
	// Password is the optional AUTH password.
	Password string `yaml:"password,omitempty"`
	// DB is the logical database number.
	DB int `yaml:"db,omitempty"`
	// KeyPrefix namespaces every key written by the engine.
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// Postgres holds SQL connection settings.
type Postgres struct {
	// DSN is the connection string.
	DSN string `yaml:"dsn"`
	// SQLDriver is the database/sql driver name: "postgres" (lib/pq) or "pgx".
	SQLDriver string `yaml:"sql_driver,omitempty"`
	// MaxConns caps the connection pool.
	MaxConns int `yaml:"max_conns,omitempty"`
}

// Fences selects the fence source.
type Fences struct {
	// Source is "static" (vertices below) or "postgres".
	Source string `yaml:"source"`
	// DSN is the connection string for the postgres source.
	DSN string `yaml:"dsn,omitempty"`
	// Static maps farm ids to fence vertices.
	Static map[string][]Vertex `yaml:"static,omitempty"`
}

// Vertex is one fence corner.
type Vertex struct {
	// Lat is the latitude in degrees.
	Lat float64 `yaml:"lat"`
	// Lng is the longitude in degrees.
	Lng float64 `yaml:"lng"`
}

// Notify configures alarm delivery.
type Notify struct {
	// QueueSize bounds the number of pending notifications.
	QueueSize int `yaml:"queue_size"`
	// RatePerSecond limits outbound deliveries. Zero disables limiting.
	RatePerSecond float64 `yaml:"rate_per_second,omitempty"`
	// Burst is the limiter burst size.
	Burst int `yaml:"burst,omitempty"`
	// WebhookURL receives JSON POSTs for every alarm. Empty disables the sink.
	WebhookURL string `yaml:"webhook_url,omitempty"`
	// WebhookToken is sent as a bearer token to the webhook.
	WebhookToken string `yaml:"webhook_token,omitempty"`
	// RedisStream is the stream alarms are appended to. Requires store.redis settings.
	RedisStream string `yaml:"redis_stream,omitempty"`
	// MQTTTopicPrefix enables publishing alarms to <prefix>/<owner>/alarms.
	MQTTTopicPrefix string `yaml:"mqtt_topic_prefix,omitempty"`
	// GeocoderURL is the Nominatim base URL used to describe alarm locations.
	GeocoderURL string `yaml:"geocoder_url,omitempty"`
}

// MQTT holds broker settings.
type MQTT struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883. Empty disables MQTT.
	Broker string `yaml:"broker"`
	// ClientID identifies this process to the broker.
	ClientID string `yaml:"client_id,omitempty"`
	// Username is the optional broker user.
	Username string `yaml:"username,omitempty"`
	// Password is the optional broker password.
	Password string `yaml:"password,omitempty"`
	// PositionTopic is the subscription filter for collar positions.
	PositionTopic string `yaml:"position_topic,omitempty"`
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Fence sources.
const (
	FenceStatic   = "static"
	FencePostgres = "postgres"
)

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "safezone-settings.yaml"

	// DefaultEnvFilename holds secrets referenced as ${VAR} from the settings file.
	DefaultEnvFilename = ".env.local"

	// DefaultStateFilename is the default JSON file of the file store.
	DefaultStateFilename = "safezone-state.json"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultBoundaryDistance is the default warning band width in meters.
	DefaultBoundaryDistance = 50.0

	// DefaultWarningDwell is the default time in the warning band before the level-2 alarm.
	DefaultWarningDwell = 25 * time.Second

	// DefaultMonitorInterval is the default period of the background monitor.
	DefaultMonitorInterval = 5 * time.Second

	// DefaultMonitorStartDelay is the default delay before the first monitor pass.
	DefaultMonitorStartDelay = 10 * time.Second

	// DefaultLivenessWindow is how long a console heartbeat is trusted.
	DefaultLivenessWindow = 30 * time.Second

	// DefaultSweepInterval is the default period of the stale console sweep.
	DefaultSweepInterval = time.Minute

	// DefaultQueueSize is the default notification queue capacity.
	DefaultQueueSize = 256

	// DefaultPositionTopic is the default collar subscription filter.
	DefaultPositionTopic = "safezone/collars/+/position"

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
	// errUnknownStoreDriver is returned for an unsupported store driver.
	errUnknownStoreDriver = errors.New("unknown store driver")
	// errUnknownFenceSource is returned for an unsupported fence source.
	errUnknownFenceSource = errors.New("unknown fence source")
	// errMissingConnection is returned when a driver lacks its connection settings.
	errMissingConnection = errors.New("missing connection settings")
	// errInvalidThreshold is returned for negative thresholds.
	errInvalidThreshold = errors.New("threshold must not be negative")
	// errInvalidVertex is returned for coordinates outside the valid range.
	errInvalidVertex = errors.New("vertex out of range")
)

// Load reads configuration from the provided path and validates essential fields.
// Values of the form ${VAR} are expanded from the environment, which is first
// populated from DefaultEnvFilename next to the settings file when present.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	path = filepath.Clean(path)

	// A missing env file is normal outside development.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), DefaultEnvFilename))

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(contents))), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills defaults.
//
//nolint:cyclop // Flat list of independent checks.
func Validate(settings *Config) error {
	if settings.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if settings.HTTPAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.HTTPAddress); err != nil {
			return fmt.Errorf("invalid http socket: %w", err)
		}
	}

	// Set default timeout if not specified
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if err := validateGeofence(&settings.Geofence, true); err != nil {
		return fmt.Errorf("geofence: %w", err)
	}

	for farmID, override := range settings.Farms {
		if err := validateGeofence(&override, false); err != nil {
			return fmt.Errorf("farm %s: %w", farmID, err)
		}
	}

	fillMonitorDefaults(&settings.Monitor)

	if err := validateStore(&settings.Store); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if err := validateFences(&settings.Fences); err != nil {
		return fmt.Errorf("fences: %w", err)
	}

	if settings.Notify.QueueSize <= 0 {
		settings.Notify.QueueSize = DefaultQueueSize
	}

	for _, raw := range []string{settings.Notify.WebhookURL, settings.Notify.GeocoderURL} {
		if raw == "" {
			continue
		}

		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid notify URI: %w", err)
		}
	}

	if settings.MQTT.Broker != "" && settings.MQTT.PositionTopic == "" {
		settings.MQTT.PositionTopic = DefaultPositionTopic
	}

	return nil
}

// Thresholds returns the effective geofence settings of a farm: the farm
// override where set, the defaults otherwise.
func (c *Config) Thresholds(farmID string) Geofence {
	result := c.Geofence

	override, ok := c.Farms[farmID]
	if !ok {
		return result
	}

	if override.BoundaryDistance > 0 {
		result.BoundaryDistance = override.BoundaryDistance
	}

	if override.WarningDwell > 0 {
		result.WarningDwell = override.WarningDwell
	}

	return result
}

// validateGeofence rejects negative thresholds and fills defaults when asked.
func validateGeofence(g *Geofence, fillDefaults bool) error {
	if g.BoundaryDistance < 0 || g.WarningDwell < 0 {
		return errInvalidThreshold
	}

	if !fillDefaults {
		return nil
	}

	if g.BoundaryDistance == 0 {
		g.BoundaryDistance = DefaultBoundaryDistance
	}

	if g.WarningDwell == 0 {
		g.WarningDwell = DefaultWarningDwell
	}

	return nil
}

// fillMonitorDefaults replaces unset monitor durations with defaults.
func fillMonitorDefaults(m *Monitor) {
	if m.Interval <= 0 {
		m.Interval = DefaultMonitorInterval
	}

	if m.StartDelay < 0 {
		m.StartDelay = 0
	} else if m.StartDelay == 0 {
		m.StartDelay = DefaultMonitorStartDelay
	}

	if m.LivenessWindow <= 0 {
		m.LivenessWindow = DefaultLivenessWindow
	}

	if m.SweepInterval <= 0 {
		m.SweepInterval = DefaultSweepInterval
	}
}

// validateStore checks the driver and its connection settings.
func validateStore(s *Store) error {
	if s.Driver == "" {
		s.Driver = StoreMemory
	}

	switch s.Driver {
	case StoreMemory:
	case StoreFile:
		if s.Path == "" {
			s.Path = DefaultStateFilename
		}
	case StoreRedis:
		if s.Redis.Addr == "" {
			return fmt.Errorf("redis addr: %w", errMissingConnection)
		}
	case StorePostgres:
		if s.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn: %w", errMissingConnection)
		}

		if s.Postgres.SQLDriver == "" {
			s.Postgres.SQLDriver = "postgres"
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownStoreDriver, s.Driver)
	}

	return nil
}

// validateFences checks the fence source and static vertices.
func validateFences(f *Fences) error {
	if f.Source == "" {
		f.Source = FenceStatic
	}

	switch f.Source {
	case FenceStatic:
		for farmID, vertices := range f.Static {
			for _, v := range vertices {
				if v.Lat < -90 || v.Lat > 90 || v.Lng < -180 || v.Lng > 180 {
					return fmt.Errorf("farm %s: %w: (%v, %v)", farmID, errInvalidVertex, v.Lat, v.Lng)
				}
			}
		}
	case FencePostgres:
		if f.DSN == "" {
			return fmt.Errorf("postgres dsn: %w", errMissingConnection)
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownFenceSource, f.Source)
	}

	return nil
}
