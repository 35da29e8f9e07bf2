package geofence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// metersToLat converts a northward distance to degrees of latitude.
func metersToLat(m float64) float64 {
	return m / metersPerDegree
}

// metersToLng converts an eastward distance to degrees of longitude at lat.
func metersToLng(m, lat float64) float64 {
	return m / (metersPerDegree * math.Cos(lat*math.Pi/180))
}

// squareFence is a roughly 1 km by 700 m pasture in Flanders.
func squareFence() *Fence {
	return &Fence{
		FarmID: "farm-1",
		Vertices: []Point{
			{Lat: 51.00, Lng: 4.00},
			{Lat: 51.00, Lng: 4.01},
			{Lat: 51.01, Lng: 4.01},
			{Lat: 51.01, Lng: 4.00},
		},
	}
}

// TestClassify covers every zone for a valid fence.
func TestClassify(t *testing.T) {
	t.Parallel()

	fence := squareFence()

	tests := []struct {
		name  string
		point Point
		want  Zone
	}{
		{"center", Point{Lat: 51.005, Lng: 4.005}, ZoneSafe},
		{"on vertex", Point{Lat: 51.00, Lng: 4.00}, ZoneSafe},
		{"30m north", Point{Lat: 51.01 + metersToLat(30), Lng: 4.005}, ZoneWarning},
		{"30m east", Point{Lat: 51.005, Lng: 4.01 + metersToLng(30, 51.005)}, ZoneWarning},
		{"49m south", Point{Lat: 51.00 - metersToLat(49), Lng: 4.005}, ZoneWarning},
		{"51m south", Point{Lat: 51.00 - metersToLat(51), Lng: 4.005}, ZoneDanger},
		{"far away", Point{Lat: 52.0, Lng: 5.0}, ZoneDanger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			zone, err := Classify(tt.point, fence, 50)
			require.NoError(t, err)
			require.Equal(t, tt.want, zone)
		})
	}
}

// TestClassify_Degenerate verifies that unusable inputs always yield ZoneUnknown.
func TestClassify_Degenerate(t *testing.T) {
	t.Parallel()

	inside := Point{Lat: 51.005, Lng: 4.005}

	zone, err := Classify(inside, nil, 50)
	require.ErrorIs(t, err, ErrNoFence)
	require.Equal(t, ZoneUnknown, zone)

	line := &Fence{Vertices: []Point{{Lat: 51, Lng: 4}, {Lat: 51.01, Lng: 4.01}}}
	zone, err = Classify(inside, line, 50)
	require.ErrorIs(t, err, ErrInvalidGeometry)
	require.Equal(t, ZoneUnknown, zone)

	// Three vertices where the last one only closes the ring.
	closed := &Fence{Vertices: []Point{{Lat: 51, Lng: 4}, {Lat: 51.01, Lng: 4.01}, {Lat: 51, Lng: 4}}}
	zone, err = Classify(inside, closed, 50)
	require.ErrorIs(t, err, ErrInvalidGeometry)
	require.Equal(t, ZoneUnknown, zone)

	zone, err = Classify(Point{Lat: math.NaN(), Lng: 4}, squareFence(), 50)
	require.ErrorIs(t, err, ErrInvalidPoint)
	require.Equal(t, ZoneUnknown, zone)
}

// TestFence_ClosingVertexIgnored verifies that an explicitly closed ring behaves like an open one.
func TestFence_ClosingVertexIgnored(t *testing.T) {
	t.Parallel()

	open := squareFence()
	closed := squareFence()
	closed.Vertices = append(closed.Vertices, closed.Vertices[0])

	p := Point{Lat: 51.01 + metersToLat(20), Lng: 4.005}

	a, err := open.DistanceToBoundary(p)
	require.NoError(t, err)

	b, err := closed.DistanceToBoundary(p)
	require.NoError(t, err)

	require.InDelta(t, a, b, 1e-9)
	require.InDelta(t, 20, a, 0.01)
}

// TestFence_DistanceUsesEdges verifies that the distance is measured to segments, not vertices.
func TestFence_DistanceUsesEdges(t *testing.T) {
	t.Parallel()

	// Midway along the north edge, 10 m out; the nearest vertex is hundreds of meters away.
	d, err := squareFence().DistanceToBoundary(Point{Lat: 51.01 + metersToLat(10), Lng: 4.005})
	require.NoError(t, err)
	require.InDelta(t, 10, d, 0.01)
}

// TestFence_Centroid verifies the vertex average.
func TestFence_Centroid(t *testing.T) {
	t.Parallel()

	c, err := squareFence().Centroid()
	require.NoError(t, err)
	require.InDelta(t, 51.005, c.Lat, 1e-9)
	require.InDelta(t, 4.005, c.Lng, 1e-9)
}

// TestZone_Text verifies zone names and parsing.
func TestZone_Text(t *testing.T) {
	t.Parallel()

	for _, z := range []Zone{ZoneUnknown, ZoneSafe, ZoneWarning, ZoneDanger} {
		text, err := z.MarshalText()
		require.NoError(t, err)

		var parsed Zone
		require.NoError(t, parsed.UnmarshalText(text))
		require.Equal(t, z, parsed)
	}

	_, err := ParseZone("purple")
	require.Error(t, err)

	require.True(t, ZoneWarning.IsUnsafe())
	require.True(t, ZoneDanger.IsUnsafe())
	require.False(t, ZoneSafe.IsUnsafe())
	require.False(t, ZoneUnknown.IsUnsafe())
	require.Equal(t, "zone(9)", Zone(9).String())
}
