// Package alarm contains the alarm ladder: three independent, idempotent
// alarm levels per tracked entity.
//
// A level fires at most once per breach cycle. The fire time is the only
// stored fact; whether a level is "triggered" is always derived from that
// time and the entity's current zone, so it can never read true while the
// entity is safe. Reset clears every level and is driven by a return to the
// safe zone.
package alarm
