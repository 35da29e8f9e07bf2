// Package console implements the HTTP API used by operator consoles.
//
// Consoles post positions, raise the audible alarm, read alarm state and
// keep their session alive with heartbeats. Bodies and responses are JSON
// in the same shape as the gRPC messages.
package console
