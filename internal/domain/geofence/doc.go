// Package geofence classifies positions against farm fences.
//
// A Fence is a simple polygon in WGS84 degrees. Classify maps a Point to a
// Zone: Safe inside the polygon, Warning within the boundary distance of the
// nearest edge, Danger beyond it, and Unknown when no usable fence exists.
// Distances are computed on a local plane, which is accurate enough for
// farm-sized areas away from the poles and the antimeridian.
package geofence
