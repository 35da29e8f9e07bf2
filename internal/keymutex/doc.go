// Package keymutex provides mutual exclusion per string key, so unrelated
// keys never wait on each other.
package keymutex
