package ownership

import (
	"slices"
	"time"
)

// DefaultLivenessWindow is how long a console stays live after its last heartbeat.
const DefaultLivenessWindow = 30 * time.Second

// State is the explicit connection state of a console session.
type State int

const (
	// StateDisconnected means the console closed or was swept as inactive.
	StateDisconnected State = iota
	// StateConnected means the console announced itself and is heartbeating.
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}

	return "disconnected"
}

// Record is one operator's console session.
type Record struct {
	// OwnerID identifies the operator.
	OwnerID string `json:"owner_id"`
	// EntityIDs are the entities the console reported watching.
	EntityIDs []string `json:"entity_ids,omitempty"`
	// LastHeartbeat is the time of the most recent heartbeat.
	LastHeartbeat time.Time `json:"last_heartbeat"`
	// State is the explicit connection state.
	State State `json:"state"`
}

// Heartbeat marks the console connected at now and records the watched entity.
// Heartbeats older than the stored one do not move LastHeartbeat backwards.
func (r *Record) Heartbeat(entityID string, now time.Time) {
	r.State = StateConnected

	if now.After(r.LastHeartbeat) {
		r.LastHeartbeat = now
	}

	if entityID != "" && !slices.Contains(r.EntityIDs, entityID) {
		r.EntityIDs = append(r.EntityIDs, entityID)
	}
}

// Disconnect explicitly releases ownership.
func (r *Record) Disconnect() {
	r.State = StateDisconnected
}

// Live reports whether the console holds ownership at now.
func (r *Record) Live(now time.Time, window time.Duration) bool {
	return r != nil &&
		r.State == StateConnected &&
		now.Sub(r.LastHeartbeat) <= window
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	cloned := *r
	cloned.EntityIDs = slices.Clone(r.EntityIDs)

	return &cloned
}

// OwnsAlarming reports whether the background monitor owns alarm emission for
// the record's owner at now. An absent, disconnected or stale record gives
// ownership to the monitor.
func OwnsAlarming(r *Record, now time.Time, window time.Duration) bool {
	return !r.Live(now, window)
}
