package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/domain/tracking"
	"github.com/oshokin/safezone/internal/logger"
	"github.com/oshokin/safezone/internal/service/common"
)

// Options configures the virtual cow.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides server address from config when specified.
	ServerAddress string
	// EntityID identifies the virtual cow.
	EntityID string
	// Name is the display name used in notifications.
	Name string
	// FarmID is the farm the cow is assigned to.
	FarmID string
	// OwnerID receives the cow's alarms; detected from the OS user when empty.
	OwnerID string
	// Origin overrides the starting point; the static fence centroid is used when nil.
	Origin *geofence.Point
	// Step is the distance in meters between two positions.
	Step float64
	// Distance is how far in meters the cow walks before turning back.
	Distance float64
	// Interval is the delay between two positions.
	Interval time.Duration
	// Loop restarts the walk after returning to the origin.
	Loop bool
}

const (
	// DefaultStep is the distance between two positions in meters.
	DefaultStep = 25.0
	// DefaultDistance takes the cow well past a typical boundary.
	DefaultDistance = 1500.0
	// DefaultInterval is the delay between two positions.
	DefaultInterval = 2 * time.Second
	// metersPerDegree is the length of one degree of latitude.
	metersPerDegree = 111_320.0
)

var (
	// errFarmRequired is returned when no farm is given.
	errFarmRequired = errors.New("farm id must be provided")
	// errNoOrigin is returned when neither an origin nor a static fence is available.
	errNoOrigin = errors.New("no origin: set --lat/--lng or define a static fence for the farm")
)

// Ingester is the part of the server API the simulator needs.
type Ingester interface {
	Assign(ctx context.Context, entityID, farmID, ownerID, name string) (*tracking.Entity, error)
	Ingest(ctx context.Context, p tracking.Position) (*tracking.Entity, []alarm.FireResult, error)
}

// Run assigns the virtual cow and walks it until the walk ends or ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	if opts.FarmID == "" {
		return errFarmRequired
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	ctx = logger.WithName(ctx, "safezone-simulator")

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	if opts.OwnerID == "" {
		if opts.OwnerID, err = common.DetectOwner(); err != nil {
			return fmt.Errorf("detect owner: %w", err)
		}
	}

	origin, err := resolveOrigin(cfg, opts)
	if err != nil {
		return err
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	logger.InfoKV(ctx, "Starting virtual cow",
		"server_address", serverAddress,
		"entity_id", opts.EntityID,
		"farm_id", opts.FarmID,
		"origin", origin)

	return Walk(ctx, client, opts, origin)
}

// resolveOrigin returns the explicit origin or the centroid of the farm's static fence.
func resolveOrigin(cfg *config.Config, opts *Options) (geofence.Point, error) {
	if opts.Origin != nil {
		if !opts.Origin.Valid() {
			return geofence.Point{}, geofence.ErrInvalidPoint
		}

		return *opts.Origin, nil
	}

	vertices, ok := cfg.Fences.Static[opts.FarmID]
	if !ok {
		return geofence.Point{}, errNoOrigin
	}

	fence := &geofence.Fence{FarmID: opts.FarmID}
	for _, v := range vertices {
		fence.Vertices = append(fence.Vertices, geofence.Point{Lat: v.Lat, Lng: v.Lng})
	}

	centroid, err := fence.Centroid()
	if err != nil {
		return geofence.Point{}, fmt.Errorf("fence of farm %s: %w", opts.FarmID, err)
	}

	return centroid, nil
}

// Walk assigns the cow and ingests one track position per interval.
// Ingestion failures are logged and the walk goes on.
func Walk(ctx context.Context, ingester Ingester, opts *Options, origin geofence.Point) error {
	step, distance, interval := opts.Step, opts.Distance, opts.Interval
	if step <= 0 {
		step = DefaultStep
	}

	if distance <= 0 {
		distance = DefaultDistance
	}

	if interval <= 0 {
		interval = DefaultInterval
	}

	if _, err := ingester.Assign(ctx, opts.EntityID, opts.FarmID, opts.OwnerID, opts.Name); err != nil {
		return fmt.Errorf("assign entity: %w", err)
	}

	track := Track(origin, step, distance)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i = (i + 1) % len(track) {
		send(ctx, ingester, opts.EntityID, track[i])

		if i == len(track)-1 && !opts.Loop {
			logger.Info(ctx, "Walk finished")

			return nil
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")

			return nil
		case <-ticker.C:
		}
	}
}

// send ingests one position and logs the outcome.
func send(ctx context.Context, ingester Ingester, entityID string, p geofence.Point) {
	entity, fired, err := ingester.Ingest(ctx, tracking.Position{
		EntityID:  entityID,
		Point:     p,
		Timestamp: time.Now(),
		Producer:  tracking.ProducerSimulator,
	})
	if err != nil {
		logger.ErrorKV(ctx, "Ingest failed", "error", err)

		return
	}

	logger.InfoKV(ctx, "Position sent",
		"lat", p.Lat,
		"lng", p.Lng,
		"zone", entity.Zone.String(),
		"breaches", entity.BreachCount)

	for _, r := range fired {
		logger.WarnKV(ctx, "Alarm fired", "level", r.Level.String())
	}
}

// Track returns a walk due north from origin to distance meters and back,
// one point every step meters. Both ends are included once.
func Track(origin geofence.Point, step, distance float64) []geofence.Point {
	if step <= 0 || distance <= 0 {
		return []geofence.Point{origin}
	}

	n := int(math.Ceil(distance / step))
	track := make([]geofence.Point, 0, 2*n+1)

	for i := 0; i <= n; i++ {
		track = append(track, north(origin, math.Min(float64(i)*step, distance)))
	}

	for i := n - 1; i >= 0; i-- {
		track = append(track, track[i])
	}

	return track
}

// north moves p by meters along the meridian.
func north(p geofence.Point, meters float64) geofence.Point {
	return geofence.Point{Lat: p.Lat + meters/metersPerDegree, Lng: p.Lng}
}
