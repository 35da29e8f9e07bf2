package geofence

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// metersPerDegree is the length of one degree of latitude, and of longitude at the equator.
const metersPerDegree = 111_320.0

// minVertices is the smallest number of distinct vertices forming a polygon.
const minVertices = 3

var (
	// ErrInvalidGeometry is returned when a fence has fewer than three distinct vertices.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrNoFence is returned when no fence is bound to the entity's farm.
	ErrNoFence = errors.New("no fence")
	// ErrInvalidPoint is returned for coordinates outside the valid range.
	ErrInvalidPoint = errors.New("invalid point")
)

// Point is a WGS84 position in degrees.
type Point struct {
	// Lat is the latitude in degrees.
	Lat float64 `json:"lat"`
	// Lng is the longitude in degrees.
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within the coordinate ranges.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 &&
		p.Lng >= -180 && p.Lng <= 180
}

// orb converts the point to orb's (x=lng, y=lat) order.
func (p Point) orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Fence is a farm boundary: an ordered list of vertices forming a simple polygon.
// A trailing vertex equal to the first one is allowed and ignored.
type Fence struct {
	// FarmID is the farm the fence belongs to.
	FarmID string `json:"farm_id"`
	// Vertices are the polygon corners in drawing order.
	Vertices []Point `json:"vertices"`
}

// ring returns the fence as a closed orb ring, or ErrInvalidGeometry.
func (f *Fence) ring() (orb.Ring, error) {
	if f == nil {
		return nil, ErrNoFence
	}

	ring := make(orb.Ring, 0, len(f.Vertices)+1)

	for _, v := range f.Vertices {
		if !v.Valid() {
			return nil, ErrInvalidGeometry
		}

		p := v.orb()
		if len(ring) > 0 && ring[len(ring)-1].Equal(p) {
			continue
		}

		ring = append(ring, p)
	}

	if len(ring) > 1 && ring[0].Equal(ring[len(ring)-1]) {
		ring = ring[:len(ring)-1]
	}

	if len(ring) < minVertices {
		return nil, ErrInvalidGeometry
	}

	return append(ring, ring[0]), nil
}

// Validate reports whether the fence can be used for classification.
func (f *Fence) Validate() error {
	_, err := f.ring()

	return err
}

// Centroid returns the average of the distinct fence vertices.
func (f *Fence) Centroid() (Point, error) {
	ring, err := f.ring()
	if err != nil {
		return Point{}, err
	}

	var sumLat, sumLng float64

	corners := ring[:len(ring)-1]
	for _, p := range corners {
		sumLng += p.Lon()
		sumLat += p.Lat()
	}

	n := float64(len(corners))

	return Point{Lat: sumLat / n, Lng: sumLng / n}, nil
}

// Contains reports whether the point is inside the fence or on its boundary.
func (f *Fence) Contains(p Point) (bool, error) {
	ring, err := f.ring()
	if err != nil {
		return false, err
	}

	return planar.RingContains(ring, p.orb()), nil
}

// DistanceToBoundary returns the distance in meters from p to the nearest fence edge.
//
// Farms are small, so coordinates are projected onto a local plane centered
// on p with a latitude-adjusted meters-per-degree scale.
func (f *Fence) DistanceToBoundary(p Point) (float64, error) {
	ring, err := f.ring()
	if err != nil {
		return 0, err
	}

	var (
		scaleY = metersPerDegree
		scaleX = metersPerDegree * math.Cos(p.Lat*math.Pi/180)
		origin = orb.Point{0, 0}
		best   = math.Inf(1)
	)

	project := func(q orb.Point) orb.Point {
		return orb.Point{(q.Lon() - p.Lng) * scaleX, (q.Lat() - p.Lat) * scaleY}
	}

	for i := 0; i < len(ring)-1; i++ {
		d := planar.DistanceFromSegment(project(ring[i]), project(ring[i+1]), origin)
		if d < best {
			best = d
		}
	}

	return best, nil
}

// Classify maps a point to a zone for the given fence and boundary distance in meters.
//
// It never fails open: any error comes with ZoneUnknown, so callers can log
// the error and skip accounting for that evaluation.
func Classify(p Point, fence *Fence, boundaryDistance float64) (Zone, error) {
	if !p.Valid() {
		return ZoneUnknown, ErrInvalidPoint
	}

	inside, err := fence.Contains(p)
	if err != nil {
		return ZoneUnknown, err
	}

	if inside {
		return ZoneSafe, nil
	}

	distance, err := fence.DistanceToBoundary(p)
	if err != nil {
		return ZoneUnknown, err
	}

	if distance <= boundaryDistance {
		return ZoneWarning, nil
	}

	return ZoneDanger, nil
}
