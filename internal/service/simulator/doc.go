// Package simulator drives a virtual cow through the server.
//
// The cow is assigned to a farm, then walks north from the fence centroid
// in fixed steps until it is well past the boundary, turns, and walks back.
// Each step is ingested as a simulator position, so the full
// safe, warning, danger cycle can be exercised without collar hardware.
package simulator
