package console

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/domain/tracking"
	"github.com/oshokin/safezone/internal/logger"
	"github.com/oshokin/safezone/internal/service/common"
)

// Options controls the console session.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// OwnerID is the operator identity; detected from the OS user when empty.
	OwnerID string
	// HeartbeatInterval is the delay between passes.
	HeartbeatInterval time.Duration
}

// DefaultHeartbeatInterval keeps a session well inside the liveness window.
const DefaultHeartbeatInterval = 10 * time.Second

// disconnectTimeout bounds the final disconnect call after cancellation.
const disconnectTimeout = 3 * time.Second

// Remote is the part of the server API a console needs.
type Remote interface {
	Entities(ctx context.Context, filter common.Filter) ([]*tracking.Entity, error)
	Heartbeat(ctx context.Context, ownerID, entityID string) (*common.Session, error)
	Disconnect(ctx context.Context, ownerID string) (*common.Session, error)
	TriggerAlarm(ctx context.Context, entityID string, level alarm.Level) (alarm.FireResult, error)
	Subscribe(ctx context.Context, filter common.Filter, handle func(common.Update) error) error
}

// Run opens a console session and keeps it alive until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	ctx = logger.WithName(ctx, "safezone-console")

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	ownerID := opts.OwnerID
	if ownerID == "" {
		if ownerID, err = common.DetectOwner(); err != nil {
			return fmt.Errorf("detect owner: %w", err)
		}
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	ctx = logger.WithKV(ctx, "owner_id", ownerID)
	logger.InfoKV(ctx, "Console session started", "server_address", serverAddress)

	return New(client, ownerID, opts.HeartbeatInterval).Run(ctx)
}

// Console is one operator session against a Remote.
type Console struct {
	// remote is the server API.
	remote Remote
	// ownerID is the operator identity.
	ownerID string
	// interval is the delay between passes.
	interval time.Duration
}

// New creates a console for ownerID. A non-positive interval uses the default.
func New(remote Remote, ownerID string, interval time.Duration) *Console {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	return &Console{
		remote:   remote,
		ownerID:  ownerID,
		interval: interval,
	}
}

// Run streams updates and runs a pass on every interval until ctx is canceled.
// The session is disconnected before returning.
func (c *Console) Run(ctx context.Context) error {
	defer c.disconnect(ctx)

	streamDone := make(chan error, 1)

	go func() {
		streamDone <- c.remote.Subscribe(ctx, common.Filter{OwnerID: c.ownerID}, func(u common.Update) error {
			logUpdate(ctx, u)

			return nil
		})
	}()

	if err := c.Pass(ctx); err != nil {
		logger.ErrorKV(ctx, "Console pass failed", "error", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")

			<-streamDone

			return nil
		case err := <-streamDone:
			if err != nil {
				return fmt.Errorf("stream updates: %w", err)
			}

			return nil
		case <-ticker.C:
			if err := c.Pass(ctx); err != nil {
				logger.ErrorKV(ctx, "Console pass failed", "error", err)
			}
		}
	}
}

// Pass heartbeats for every owned entity and requests the alarms their zones call for.
func (c *Console) Pass(ctx context.Context) error {
	entities, err := c.remote.Entities(ctx, common.Filter{OwnerID: c.ownerID})
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}

	if len(entities) == 0 {
		if _, err = c.remote.Heartbeat(ctx, c.ownerID, ""); err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}

		return nil
	}

	var errs []error

	for _, entity := range entities {
		if _, err = c.remote.Heartbeat(ctx, c.ownerID, entity.ID); err != nil {
			errs = append(errs, fmt.Errorf("heartbeat %s: %w", entity.ID, err))

			continue
		}

		for _, level := range LevelsFor(entity.Zone) {
			res, err := c.remote.TriggerAlarm(ctx, entity.ID, level)
			if err != nil {
				errs = append(errs, fmt.Errorf("trigger %s alarm for %s: %w", level, entity.ID, err))

				break
			}

			if res.Fired {
				logger.WarnKV(ctx, "Alarm fired",
					"entity_id", entity.ID,
					"level", res.Level.String(),
					"zone", entity.Zone.String())
			}
		}
	}

	return errors.Join(errs...)
}

// LevelsFor returns the alarm levels a console requests for an entity in zone.
// The server refuses levels whose dwell has not elapsed yet.
func LevelsFor(zone geofence.Zone) []alarm.Level {
	switch zone {
	case geofence.ZoneWarning:
		return []alarm.Level{alarm.LevelAudio, alarm.LevelWarning}
	case geofence.ZoneDanger:
		return []alarm.Level{alarm.LevelAudio, alarm.LevelWarning, alarm.LevelDanger}
	default:
		return nil
	}
}

// disconnect releases the session even when ctx is already canceled.
func (c *Console) disconnect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cancel()

	if _, err := c.remote.Disconnect(ctx, c.ownerID); err != nil {
		logger.WarnKV(ctx, "Failed to disconnect console", "error", err)

		return
	}

	logger.Info(ctx, "Console disconnected")
}

// logUpdate writes one streamed update.
func logUpdate(ctx context.Context, u common.Update) {
	if u.Entity == nil {
		return
	}

	logger.InfoKV(ctx, "Entity updated",
		"entity_id", u.Entity.ID,
		"zone", u.Entity.Zone.String(),
		"trigger", u.Trigger)

	for _, r := range u.Fired {
		logger.WarnKV(ctx, "Alarm fired",
			"entity_id", u.Entity.ID,
			"level", r.Level.String(),
			"trigger", u.Trigger)
	}
}
