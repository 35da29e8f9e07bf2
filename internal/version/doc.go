// Package version exposes build metadata for the safezone binaries.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags and default to sensible values for local builds.
// Short and Full render the version for CLI output and logs; UserAgent
// identifies the server to third-party HTTP services such as the geocoder.
package version
