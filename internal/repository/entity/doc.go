// Package entity implements persistence for tracked entities.
//
// Every backend satisfies Repository, the synchronous key-value contract the
// engine depends on: Load and Save by entity id, plus List for the
// background monitor. Backends store the JSON form produced by the pb
// package so the formats stay interchangeable.
package entity
