// Package tracking holds the tracked entity model and the zone-time
// accountant.
//
// Advance is the only function that moves an entity between zones. It keeps
// cumulative time per safety class, the "actual" time in the current zone
// and the breach count, and it tolerates duplicate and out-of-order events by
// clamping negative elapsed time to zero.
package tracking
