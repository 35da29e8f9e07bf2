package pb

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/safezone/internal/domain/alarm"
	"github.com/oshokin/safezone/internal/domain/geofence"
	"github.com/oshokin/safezone/internal/domain/ownership"
	"github.com/oshokin/safezone/internal/domain/tracking"
)

// Message keys shared by requests and responses.
const (
	KeyEntityID  = "entity_id"
	KeyFarmID    = "farm_id"
	KeyOwnerID   = "owner_id"
	KeyName      = "name"
	KeyLevel     = "level"
	KeyLat       = "lat"
	KeyLng       = "lng"
	KeyTimestamp = "timestamp"
	KeyProducer  = "producer"
	KeyEntity    = "entity"
	KeyEntities  = "entities"
	KeyFired     = "fired"
)

// reasons maps reason names back to values.
//
//nolint:gochecknoglobals // Immutable lookup table.
var reasons = map[string]alarm.Reason{
	alarm.ReasonFired.String():        alarm.ReasonFired,
	alarm.ReasonAlreadyFired.String(): alarm.ReasonAlreadyFired,
	alarm.ReasonNotArmed.String():     alarm.ReasonNotArmed,
	alarm.ReasonUnknownLevel.String(): alarm.ReasonUnknownLevel,
}

// entityFields returns the stored fields of an entity.
// Derived alarm flags are not part of the stored form.
func entityFields(e *tracking.Entity) map[string]any {
	alarms := map[string]any{"armed": e.Alarms.Armed}
	for _, level := range alarm.Levels() {
		alarms[level.String()] = formatTimePtr(e.Alarms.FiredAt(level))
	}

	var lastPosition any
	if e.LastPosition != nil {
		lastPosition = map[string]any{
			KeyLat: e.LastPosition.Lat,
			KeyLng: e.LastPosition.Lng,
		}
	}

	return map[string]any{
		"id":                        e.ID,
		KeyName:                     e.Name,
		KeyFarmID:                   e.FarmID,
		KeyOwnerID:                  e.OwnerID,
		KeyProducer:                 e.Producer.String(),
		"zone":                      e.Zone.String(),
		"last_zone_change":          formatTime(e.LastZoneChange),
		"cumulative_safe_seconds":   seconds(e.CumulativeSafe),
		"cumulative_unsafe_seconds": seconds(e.CumulativeUnsafe),
		"actual_safe_seconds":       seconds(e.ActualSafe),
		"actual_unsafe_seconds":     seconds(e.ActualUnsafe),
		"breach_count":              e.BreachCount,
		"alarms":                    alarms,
		"last_position":             lastPosition,
		"last_position_at":          formatTime(e.LastPositionAt),
	}
}

// EncodeEntity renders the persisted form of an entity.
func EncodeEntity(e *tracking.Entity) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(entityFields(e))
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}

	return s, nil
}

// EncodeEntityView renders an entity for observers, adding the derived alarm state.
func EncodeEntityView(e *tracking.Entity) (*structpb.Struct, error) {
	fields := entityFields(e)
	fields["dwell_seconds"] = seconds(e.Dwell())

	state := make(map[string]any, len(alarm.Levels()))
	for _, level := range alarm.Levels() {
		state[level.String()] = map[string]any{
			"state":        e.Alarms.State(level, e.Zone).String(),
			"triggered":    e.Triggered(level),
			"triggered_at": formatTimePtr(e.Alarms.FiredAt(level)),
		}
	}

	fields["alarm_state"] = state

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode entity view: %w", err)
	}

	return s, nil
}

// DecodeEntity parses either the persisted form or the view of an entity.
func DecodeEntity(s *structpb.Struct) (*tracking.Entity, error) {
	id, err := RequireString(s, "id")
	if err != nil {
		return nil, err
	}

	e := &tracking.Entity{
		ID:               id,
		Name:             GetString(s, KeyName),
		FarmID:           GetString(s, KeyFarmID),
		OwnerID:          GetString(s, KeyOwnerID),
		CumulativeSafe:   duration(s, "cumulative_safe_seconds"),
		CumulativeUnsafe: duration(s, "cumulative_unsafe_seconds"),
		ActualSafe:       duration(s, "actual_safe_seconds"),
		ActualUnsafe:     duration(s, "actual_unsafe_seconds"),
	}

	if n, ok := GetNumber(s, "breach_count"); ok {
		e.BreachCount = int(n)
	}

	if e.Producer, err = tracking.ParseProducer(GetString(s, KeyProducer)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidField, err)
	}

	if raw := GetString(s, "zone"); raw != "" {
		if e.Zone, err = geofence.ParseZone(raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidField, err)
		}
	}

	if e.LastZoneChange, err = GetTime(s, "last_zone_change"); err != nil {
		return nil, err
	}

	if e.LastPositionAt, err = GetTime(s, "last_position_at"); err != nil {
		return nil, err
	}

	if p := GetStruct(s, "last_position"); p != nil {
		lat, _ := GetNumber(p, KeyLat)
		lng, _ := GetNumber(p, KeyLng)
		e.LastPosition = &geofence.Point{Lat: lat, Lng: lng}
	}

	alarms := GetStruct(s, "alarms")
	e.Alarms.Armed = GetBool(alarms, "armed")

	for _, level := range alarm.Levels() {
		at, err := GetTime(alarms, level.String())
		if err != nil {
			return nil, err
		}

		if !at.IsZero() {
			e.Alarms.TriggeredAt[level-1] = &at
		}
	}

	return e, nil
}

// MarshalEntity renders the persisted form of an entity as JSON.
func MarshalEntity(e *tracking.Entity) ([]byte, error) {
	s, err := EncodeEntity(e)
	if err != nil {
		return nil, err
	}

	return MarshalJSON(s)
}

// UnmarshalEntity parses JSON produced by MarshalEntity.
func UnmarshalEntity(data []byte) (*tracking.Entity, error) {
	s, err := UnmarshalJSON(data)
	if err != nil {
		return nil, err
	}

	return DecodeEntity(s)
}

// fireResultFields returns the fields of a fire result.
func fireResultFields(r alarm.FireResult) map[string]any {
	return map[string]any{
		KeyLevel:       r.Level.String(),
		"level_number": int(r.Level),
		"fired":        r.Fired,
		"reason":       r.Reason.String(),
		"at":           formatTime(r.At),
	}
}

// EncodeFireResult renders the outcome of a fire attempt.
func EncodeFireResult(r alarm.FireResult) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fireResultFields(r))
	if err != nil {
		return nil, fmt.Errorf("encode fire result: %w", err)
	}

	return s, nil
}

// DecodeFireResult parses the outcome of a fire attempt.
func DecodeFireResult(s *structpb.Struct) (alarm.FireResult, error) {
	level, err := alarm.ParseLevel(GetString(s, KeyLevel))
	if err != nil {
		return alarm.FireResult{}, fmt.Errorf("%w: %w", ErrInvalidField, err)
	}

	reason, ok := reasons[GetString(s, "reason")]
	if !ok {
		return alarm.FireResult{}, fmt.Errorf("%w: reason", ErrInvalidField)
	}

	at, err := GetTime(s, "at")
	if err != nil {
		return alarm.FireResult{}, err
	}

	return alarm.FireResult{
		Level:  level,
		Fired:  GetBool(s, "fired"),
		Reason: reason,
		At:     at,
	}, nil
}

// EncodeUpdate renders an entity view together with the alarms it just fired.
func EncodeUpdate(e *tracking.Entity, fired []alarm.FireResult) (*structpb.Struct, error) {
	view, err := EncodeEntityView(e)
	if err != nil {
		return nil, err
	}

	list := make([]*structpb.Value, 0, len(fired))
	for _, r := range fired {
		item, err := EncodeFireResult(r)
		if err != nil {
			return nil, err
		}

		list = append(list, structpb.NewStructValue(item))
	}

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			KeyEntity: structpb.NewStructValue(view),
			KeyFired:  structpb.NewListValue(&structpb.ListValue{Values: list}),
		},
	}, nil
}

// DecodeUpdate parses a message produced by EncodeUpdate.
func DecodeUpdate(s *structpb.Struct) (*tracking.Entity, []alarm.FireResult, error) {
	e, err := DecodeEntity(GetStruct(s, KeyEntity))
	if err != nil {
		return nil, nil, err
	}

	values := GetList(s, KeyFired)
	fired := make([]alarm.FireResult, 0, len(values))

	for _, v := range values {
		r, err := DecodeFireResult(v.GetStructValue())
		if err != nil {
			return nil, nil, err
		}

		fired = append(fired, r)
	}

	return e, fired, nil
}

// EncodeEntityList renders a list of entity views.
func EncodeEntityList(entities []*tracking.Entity) (*structpb.Struct, error) {
	list := make([]*structpb.Value, 0, len(entities))
	for _, e := range entities {
		view, err := EncodeEntityView(e)
		if err != nil {
			return nil, err
		}

		list = append(list, structpb.NewStructValue(view))
	}

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			KeyEntities: structpb.NewListValue(&structpb.ListValue{Values: list}),
		},
	}, nil
}

// DecodeEntityList parses a message produced by EncodeEntityList.
func DecodeEntityList(s *structpb.Struct) ([]*tracking.Entity, error) {
	values := GetList(s, KeyEntities)
	entities := make([]*tracking.Entity, 0, len(values))

	for _, v := range values {
		e, err := DecodeEntity(v.GetStructValue())
		if err != nil {
			return nil, err
		}

		entities = append(entities, e)
	}

	return entities, nil
}

// EncodeRecord renders a console session.
func EncodeRecord(r *ownership.Record) (*structpb.Struct, error) {
	ids := make([]any, 0, len(r.EntityIDs))
	for _, id := range r.EntityIDs {
		ids = append(ids, id)
	}

	s, err := structpb.NewStruct(map[string]any{
		KeyOwnerID:       r.OwnerID,
		"state":          r.State.String(),
		"last_heartbeat": formatTime(r.LastHeartbeat),
		"entity_ids":     ids,
	})
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	return s, nil
}

// DecodeRecord parses a console session.
func DecodeRecord(s *structpb.Struct) (*ownership.Record, error) {
	owner, err := RequireString(s, KeyOwnerID)
	if err != nil {
		return nil, err
	}

	last, err := GetTime(s, "last_heartbeat")
	if err != nil {
		return nil, err
	}

	r := &ownership.Record{
		OwnerID:       owner,
		LastHeartbeat: last,
		State:         ownership.StateDisconnected,
	}

	if GetString(s, "state") == ownership.StateConnected.String() {
		r.State = ownership.StateConnected
	}

	for _, v := range GetList(s, "entity_ids") {
		r.EntityIDs = append(r.EntityIDs, v.GetStringValue())
	}

	return r, nil
}

// EncodePosition renders a position event.
func EncodePosition(p tracking.Position) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		KeyEntityID:  p.EntityID,
		KeyLat:       p.Point.Lat,
		KeyLng:       p.Point.Lng,
		KeyTimestamp: formatTime(p.Timestamp),
		KeyProducer:  p.Producer.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode position: %w", err)
	}

	return s, nil
}

// DecodePosition parses a position event. A missing timestamp is left zero
// for the receiver to stamp.
func DecodePosition(s *structpb.Struct) (tracking.Position, error) {
	var (
		p   tracking.Position
		err error
	)

	if p.EntityID, err = RequireString(s, KeyEntityID); err != nil {
		return p, err
	}

	lat, okLat := GetNumber(s, KeyLat)
	lng, okLng := GetNumber(s, KeyLng)

	if !okLat || !okLng {
		return p, fmt.Errorf("%w: %s/%s", ErrMissingField, KeyLat, KeyLng)
	}

	p.Point = geofence.Point{Lat: lat, Lng: lng}

	if p.Timestamp, err = GetTime(s, KeyTimestamp); err != nil {
		return p, err
	}

	if p.Producer, err = tracking.ParseProducer(GetString(s, KeyProducer)); err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalidField, err)
	}

	return p, nil
}

// NewRequest builds a request message from plain values.
func NewRequest(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	return s, nil
}

// StampPosition fills a missing timestamp with now.
func StampPosition(p tracking.Position, now time.Time) tracking.Position {
	if p.Timestamp.IsZero() {
		p.Timestamp = now
	}

	return p
}
