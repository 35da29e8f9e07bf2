// Package notify delivers alarm notifications without blocking the engine.
//
// Queue accepts notifications fire-and-forget, buffers them up to a fixed
// size and hands them to a single worker that enriches them with a reverse
// geocoded location and fans them out to the configured sinks. Delivery is
// at-least-once: every notification carries an event id sinks can use to
// deduplicate.
package notify
