package engine

import (
	"context"

	"github.com/oshokin/safezone/internal/domain/ownership"
	"github.com/oshokin/safezone/internal/logger"
)

// Heartbeat records a console heartbeat for an owner.
func (e *Engine) Heartbeat(ctx context.Context, ownerID, entityID string) *ownership.Record {
	record := e.owners.Heartbeat(ownerID, entityID, e.now())

	logger.DebugKV(ctx, "Console heartbeat", "owner_id", ownerID, "entity_id", entityID)

	return record
}

// Disconnect marks an owner's console as gone; the server takes over its alarms.
func (e *Engine) Disconnect(ctx context.Context, ownerID string) *ownership.Record {
	record := e.owners.Disconnect(ownerID)

	logger.InfoKV(ctx, "Console disconnected", "owner_id", ownerID)

	return record
}

// Session returns a snapshot of an owner's console session, or nil.
func (e *Engine) Session(ownerID string) *ownership.Record {
	return e.owners.Get(ownerID)
}

// OwnsAlarming reports whether the server is responsible for dwell-driven
// fires of an owner's entities. It is true when no live console exists.
func (e *Engine) OwnsAlarming(ownerID string) bool {
	return ownership.OwnsAlarming(e.owners.Get(ownerID), e.now(), e.liveness)
}

// Sweep disconnects consoles whose heartbeat is older than the liveness window.
func (e *Engine) Sweep(ctx context.Context) []string {
	expired := e.owners.Sweep(e.now(), e.liveness)
	for _, ownerID := range expired {
		logger.InfoKV(ctx, "Console heartbeat expired", "owner_id", ownerID)
	}

	return expired
}
