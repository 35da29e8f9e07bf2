package engine

import (
	"context"
	"fmt"

	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/tracking"
	"github.com/oshokin/safezone/internal/logger"
	"github.com/oshokin/safezone/internal/service/notify"
)

// TriggerAlarm asks for one alarm level to fire on an entity.
//
// Refusals such as AlreadyFired or NotArmed come back as a FireResult with
// Fired set to false, not as an error. Errors are reserved for unknown
// entities and store failures.
func (e *Engine) TriggerAlarm(ctx context.Context, entityID string, level alarm.Level) (alarm.FireResult, error) {
	if entityID == "" {
		return alarm.FireResult{}, fmt.Errorf("%w: entity id is required", ErrInvalidArgument)
	}

	ctx = logger.WithKV(ctx, "entity_id", entityID)

	unlock := e.locks.Lock(entityID)

	current, err := e.load(ctx, entityID)
	if err != nil {
		unlock()

		return alarm.FireResult{Level: level}, err
	}

	now := e.now()
	next, _ := tracking.Refresh(current, now)

	result := next.TryFire(level, now, e.thresholds(next.FarmID).Policy)
	if !result.Fired {
		unlock()

		logger.DebugKV(ctx, "Alarm request refused", "level", level.String(), "reason", result.Reason.String())

		return result, nil
	}

	if err = e.save(ctx, next); err != nil {
		unlock()

		return alarm.FireResult{Level: level}, err
	}

	unlock()

	e.emit(ctx, next, []alarm.FireResult{result}, notify.TriggerRequest)

	return result, nil
}
