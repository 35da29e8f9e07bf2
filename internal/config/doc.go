// Package config defines the settings shared by the safezone binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Secrets may be referenced as ${VAR}; Load expands them from the process
// environment after reading an optional .env.local next to the settings file.
package config
