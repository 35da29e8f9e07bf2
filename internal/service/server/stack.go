package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/oshokin/safezone/internal/broker"
	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/logger"
	entityrepo "github.com/oshokin/safezone/internal/repository/entity"
	"github.com/oshokin/safezone/internal/repository/fence"
	"github.com/oshokin/safezone/internal/service/engine"
	"github.com/oshokin/safezone/internal/service/geocode"
	"github.com/oshokin/safezone/internal/service/notify"
)

// fenceCacheTTL is how long fences read from the database are reused.
const fenceCacheTTL = time.Minute

// stack holds the wired components of the server.
type stack struct {
	// engine is the ingestion pipeline.
	engine *engine.Engine
	// queue delivers notifications.
	queue *notify.Queue
	// broker is the MQTT session, nil when MQTT is disabled.
	broker *broker.Client
	// monitor configures the background loops.
	monitor engine.MonitorOptions
	// redis is the shared Redis client, nil when unused.
	redis redis.UniversalClient
	// closers release resources in reverse order.
	closers []func() error
}

// newStack wires every component described by settings.
func newStack(ctx context.Context, settings *config.Config) (*stack, error) {
	s := new(stack)

	entities, err := s.openEntities(ctx, settings)
	if err != nil {
		s.close(ctx)

		return nil, err
	}

	fences, err := s.openFences(ctx, settings)
	if err != nil {
		s.close(ctx)

		return nil, err
	}

	if settings.MQTT.Broker != "" {
		if s.broker, err = broker.Connect(ctx, settings.MQTT); err != nil {
			s.close(ctx)

			return nil, err
		}

		s.closers = append(s.closers, func() error {
			s.broker.Close()

			return nil
		})
	}

	if s.queue, err = s.newQueue(ctx, settings); err != nil {
		s.close(ctx)

		return nil, err
	}

	s.engine, err = engine.New(engine.Config{
		Entities:       entities,
		Fences:         fences,
		Dispatcher:     s.queue,
		Thresholds:     thresholds(settings),
		LivenessWindow: settings.Monitor.LivenessWindow,
	})
	if err != nil {
		s.close(ctx)

		return nil, fmt.Errorf("create engine: %w", err)
	}

	s.monitor = engine.MonitorOptions{
		Interval:      settings.Monitor.Interval,
		StartDelay:    settings.Monitor.StartDelay,
		SweepInterval: settings.Monitor.SweepInterval,
	}

	return s, nil
}

// thresholds adapts the per-farm configuration to the engine.
func thresholds(settings *config.Config) engine.ThresholdFunc {
	return func(farmID string) engine.Thresholds {
		g := settings.Thresholds(farmID)

		return engine.Thresholds{
			BoundaryDistance: g.BoundaryDistance,
			Policy:           alarm.Policy{WarningDwell: g.WarningDwell},
		}
	}
}

// redisClient returns the shared Redis client, connecting on first use.
func (s *stack) redisClient(ctx context.Context, cfg config.Redis) (redis.UniversalClient, error) {
	if s.redis != nil {
		return s.redis, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	s.redis = client
	s.closers = append(s.closers, client.Close)

	return client, nil
}

// openEntities opens the configured entity repository.
func (s *stack) openEntities(ctx context.Context, settings *config.Config) (entityrepo.Repository, error) {
	store := settings.Store

	switch store.Driver {
	case config.StoreMemory:
		logger.Warn(ctx, "Entity state is kept in memory and lost on restart")

		return entityrepo.NewMemoryRepository(), nil
	case config.StoreFile:
		path := store.Path
		if path == "" {
			path = config.DefaultStateFilename
		}

		return entityrepo.NewFileRepository(path), nil
	case config.StoreRedis:
		client, err := s.redisClient(ctx, store.Redis)
		if err != nil {
			return nil, err
		}

		return entityrepo.NewRedisRepository(client, store.Redis.KeyPrefix), nil
	case config.StorePostgres:
		db, err := entityrepo.OpenPostgres(ctx, store.Postgres.SQLDriver, store.Postgres.DSN, store.Postgres.MaxConns)
		if err != nil {
			return nil, err
		}

		s.closers = append(s.closers, db.Close)

		repo := entityrepo.NewPostgresRepository(db)
		if err = repo.Migrate(ctx); err != nil {
			return nil, err
		}

		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", store.Driver)
	}
}

// openFences opens the configured fence source. Static fences are seeded
// into the database when the postgres source is used.
func (s *stack) openFences(ctx context.Context, settings *config.Config) (fence.Source, error) {
	static := fence.NewStaticSource(settings.Fences.Static)

	if settings.Fences.Source != config.FencePostgres {
		return static, nil
	}

	db, err := fence.OpenGorm(ctx, settings.Fences.DSN)
	if err != nil {
		return nil, err
	}

	if sqlDB, dbErr := db.DB(); dbErr == nil {
		s.closers = append(s.closers, sqlDB.Close)
	}

	source := fence.NewGormSource(db)
	if err = source.Migrate(ctx); err != nil {
		return nil, err
	}

	for farmID := range settings.Fences.Static {
		f, getErr := static.GetFence(ctx, farmID)
		if getErr != nil {
			return nil, getErr
		}

		if err = seedFence(ctx, source, f); err != nil {
			return nil, err
		}
	}

	return fence.NewCachedSource(source, fenceCacheTTL), nil
}

// seedFence stores a configured fence, skipping invalid geometry.
func seedFence(ctx context.Context, source *fence.GormSource, f *geofence.Fence) error {
	if err := f.Validate(); err != nil {
		logger.WarnKV(ctx, "Configured fence skipped", "farm_id", f.FarmID, "error", err)

		return nil
	}

	if err := source.PutFence(ctx, f); err != nil {
		return fmt.Errorf("seed fence of %s: %w", f.FarmID, err)
	}

	logger.InfoKV(ctx, "Configured fence stored", "farm_id", f.FarmID, "vertices", len(f.Vertices))

	return nil
}

// newQueue builds the notification queue and its sinks.
func (s *stack) newQueue(ctx context.Context, settings *config.Config) (*notify.Queue, error) {
	cfg := settings.Notify
	sinks := []notify.Sink{notify.LogSink{}}

	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL, cfg.WebhookToken))
	}

	if cfg.RedisStream != "" {
		client, err := s.redisClient(ctx, settings.Store.Redis)
		if err != nil {
			return nil, err
		}

		sinks = append(sinks, notify.NewRedisStreamSink(client, cfg.RedisStream))
	}

	if cfg.MQTTTopicPrefix != "" {
		if s.broker == nil {
			return nil, errMQTTSinkWithoutBroker
		}

		sinks = append(sinks, notify.NewMQTTSink(s.broker, cfg.MQTTTopicPrefix))
	}

	opts := []notify.QueueOption{notify.WithRateLimit(cfg.RatePerSecond, cfg.Burst)}
	if cfg.GeocoderURL != "" {
		opts = append(opts, notify.WithGeocoder(geocode.NewNominatim(cfg.GeocoderURL)))
	}

	names := make([]string, 0, len(sinks))
	for _, sink := range sinks {
		names = append(names, sink.Name())
	}

	logger.InfoKV(ctx, "Notification sinks configured", "sinks", names)

	return notify.NewQueue(cfg.QueueSize, sinks, opts...), nil
}

// errMQTTSinkWithoutBroker is returned when the MQTT sink is enabled without a broker.
var errMQTTSinkWithoutBroker = errors.New("notify.mqtt_topic_prefix requires mqtt.broker")

// close releases every opened resource in reverse order.
func (s *stack) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.WarnKV(ctx, "Failed to release resource", "error", err)
		}
	}

	s.closers = nil
}
