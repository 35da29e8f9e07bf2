package tracking

import (
	"errors"
	"time"

	"github.com/oshokin/safezone/internal/domain/geofence"
)

// errEntityIDRequired is returned for position events without an entity.
var errEntityIDRequired = errors.New("entity id is required")

// Position is one position event emitted by a producer.
type Position struct {
	// EntityID is the entity the position belongs to.
	EntityID string
	// Point is the reported location.
	Point geofence.Point
	// Timestamp is the producer's clock at the time of the fix.
	Timestamp time.Time
	// Producer is the kind of source that emitted the event.
	Producer Producer
}

// Validate checks the event before it enters the pipeline.
func (p Position) Validate() error {
	if p.EntityID == "" {
		return errEntityIDRequired
	}

	if !p.Point.Valid() {
		return geofence.ErrInvalidPoint
	}

	return nil
}
