package engine

import (
	"context"
	"time"

	"github.com/oshokin/safezone/internal/domain/tracking"
	"github.com/oshokin/safezone/internal/logger"
	"github.com/oshokin/safezone/internal/service/notify"
)

// Monitor defaults.
const (
	// DefaultMonitorInterval is the period of the dwell re-evaluation.
	DefaultMonitorInterval = 5 * time.Second
	// DefaultMonitorStartDelay lets ingestion settle before the first pass.
	DefaultMonitorStartDelay = 10 * time.Second
	// DefaultSweepInterval is the period of the console liveness sweep.
	DefaultSweepInterval = time.Minute
)

// TickSummary counts what one monitor pass did.
type TickSummary struct {
	// Scanned is the number of entities listed.
	Scanned int
	// Evaluated is the number of unsafe entities re-evaluated.
	Evaluated int
	// Skipped is the number of unsafe entities left to a live console.
	Skipped int
	// Fired is the number of levels fired.
	Fired int
	// Failed is the number of entities whose evaluation failed.
	Failed int
}

// Tick runs one monitor pass over every entity.
//
// Only assigned entities in an unsafe zone whose owner has no live console
// are evaluated. Each one is re-read under its lock, its dwell is brought up
// to now and the automatic levels are tried. A failure aborts only that entity.
func (e *Engine) Tick(ctx context.Context) (TickSummary, error) {
	var summary TickSummary

	entities, err := e.Entities(ctx)
	if err != nil {
		return summary, err
	}

	summary.Scanned = len(entities)

	for _, snapshot := range entities {
		if !snapshot.Assigned() || !snapshot.Zone.IsUnsafe() {
			continue
		}

		if !e.OwnsAlarming(snapshot.OwnerID) {
			summary.Skipped++

			continue
		}

		summary.Evaluated++

		fired, evalErr := e.evaluate(ctx, snapshot.ID)
		if evalErr != nil {
			summary.Failed++

			logger.ErrorKV(ctx, "Monitor evaluation failed", "entity_id", snapshot.ID, "error", evalErr)

			continue
		}

		summary.Fired += fired
	}

	return summary, nil
}

// evaluate re-checks one entity under its lock and returns the number of fired levels.
func (e *Engine) evaluate(ctx context.Context, id string) (int, error) {
	ctx = logger.WithKV(ctx, "entity_id", id)

	unlock := e.locks.Lock(id)

	current, err := e.load(ctx, id)
	if err != nil {
		unlock()

		return 0, err
	}

	if !current.Assigned() || !current.Zone.IsUnsafe() || !e.OwnsAlarming(current.OwnerID) {
		unlock()

		return 0, nil
	}

	now := e.now()

	next, _ := tracking.Refresh(current, now)

	fired := next.Escalate(now, e.thresholds(next.FarmID).Policy)
	if len(fired) == 0 {
		unlock()

		return 0, nil
	}

	if err = e.save(ctx, next); err != nil {
		unlock()

		return 0, err
	}

	unlock()

	e.emit(ctx, next, fired, notify.TriggerMonitor)

	return len(fired), nil
}

// MonitorOptions configures the background loops.
type MonitorOptions struct {
	// Interval is the period between monitor passes.
	Interval time.Duration
	// StartDelay postpones the first pass.
	StartDelay time.Duration
	// SweepInterval is the period between liveness sweeps.
	SweepInterval time.Duration
}

// withDefaults fills unset durations.
func (o MonitorOptions) withDefaults() MonitorOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultMonitorInterval
	}

	if o.StartDelay < 0 {
		o.StartDelay = 0
	}

	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}

	return o
}

// RunMonitor runs monitor passes until ctx is done.
func (e *Engine) RunMonitor(ctx context.Context, opts MonitorOptions) error {
	opts = opts.withDefaults()
	ctx = logger.WithName(ctx, "monitor")

	logger.InfoKV(ctx, "Monitor started", "interval", opts.Interval, "start_delay", opts.StartDelay)

	if opts.StartDelay > 0 {
		timer := time.NewTimer(opts.StartDelay)

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		e.runTick(ctx)

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Monitor stopped")

			return nil
		case <-ticker.C:
		}
	}
}

// runTick runs one pass and logs its summary.
func (e *Engine) runTick(ctx context.Context) {
	summary, err := e.Tick(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Monitor pass failed", "error", err)

		return
	}

	kvs := []any{
		"scanned", summary.Scanned,
		"evaluated", summary.Evaluated,
		"skipped", summary.Skipped,
		"fired", summary.Fired,
		"failed", summary.Failed,
	}

	if summary.Fired > 0 || summary.Failed > 0 {
		logger.InfoKV(ctx, "Monitor pass finished", kvs...)

		return
	}

	logger.DebugKV(ctx, "Monitor pass finished", kvs...)
}

// RunSweeper disconnects stale consoles until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, opts MonitorOptions) error {
	opts = opts.withDefaults()
	ctx = logger.WithName(ctx, "sweeper")

	ticker := time.NewTicker(opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}
