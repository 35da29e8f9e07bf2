// Package console implements the operator console session.
//
// A running console heartbeats for its owner's entities, which makes the
// server's background monitor skip them, and requests the alarm levels the
// current zones call for on every pass. Stream updates are logged as they
// arrive. On exit the console disconnects so the monitor takes over at once.
package console
