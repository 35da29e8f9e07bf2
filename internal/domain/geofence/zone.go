package geofence

import (
	"errors"
	"fmt"
	"strings"
)

// Zone classifies a position relative to a farm fence.
// Values are ordered by severity; ZoneUnknown sorts first.
type Zone int

const (
	// ZoneUnknown means no usable fence was available for the evaluation.
	ZoneUnknown Zone = iota
	// ZoneSafe is inside the fence polygon.
	ZoneSafe
	// ZoneWarning is outside the polygon but within the boundary distance of an edge.
	ZoneWarning
	// ZoneDanger is outside the polygon and beyond the boundary distance.
	ZoneDanger
)

// errUnknownZone is returned when parsing an unrecognized zone name.
var errUnknownZone = errors.New("unknown zone")

// zoneNames maps zones to their wire names.
//
//nolint:gochecknoglobals // Immutable lookup table.
var zoneNames = map[Zone]string{
	ZoneUnknown: "unknown",
	ZoneSafe:    "safe",
	ZoneWarning: "warning",
	ZoneDanger:  "danger",
}

// String returns the lowercase wire name of the zone.
func (z Zone) String() string {
	if name, ok := zoneNames[z]; ok {
		return name
	}

	return fmt.Sprintf("zone(%d)", int(z))
}

// IsUnsafe reports whether the zone is Warning or Danger.
func (z Zone) IsUnsafe() bool {
	return z == ZoneWarning || z == ZoneDanger
}

// ParseZone converts a wire name back into a Zone. It is case-insensitive.
func ParseZone(s string) (Zone, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for zone, name := range zoneNames {
		if name == s {
			return zone, nil
		}
	}

	return ZoneUnknown, fmt.Errorf("%w: %q", errUnknownZone, s)
}

// MarshalText implements encoding.TextMarshaler.
func (z Zone) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (z *Zone) UnmarshalText(text []byte) error {
	parsed, err := ParseZone(string(text))
	if err != nil {
		return err
	}

	*z = parsed

	return nil
}
