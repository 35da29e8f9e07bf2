// Package engine runs the zone-classification and alarm-escalation pipeline.
//
// Every mutation of a tracked entity happens under that entity's lock:
// positions through Ingest, explicit alarm requests through TriggerAlarm,
// farm assignment through Assign and Unassign, and dwell-driven fires
// through the background monitor. The store is the source of truth; a
// failed write leaves the entity as it was. Fired alarms are handed to a
// notify.Dispatcher and every change is fanned out to subscribers without
// blocking.
package engine
