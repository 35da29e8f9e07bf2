// Package common holds helpers shared by the console and the simulator.
//
// It provides a gRPC client wrapper for the geofence service with call
// timeouts, and detection of the default console owner id.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
