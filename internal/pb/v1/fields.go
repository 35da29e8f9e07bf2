package pb

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	// ErrMissingField is returned when a required key is absent or empty.
	ErrMissingField = errors.New("missing field")
	// ErrInvalidField is returned when a key holds a value of the wrong shape.
	ErrInvalidField = errors.New("invalid field")
)

// GetString returns the string value at key, or "".
func GetString(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// GetNumber returns the number value at key and whether it was present.
func GetNumber(s *structpb.Struct, key string) (float64, bool) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, false
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}

	return n.NumberValue, true
}

// GetBool returns the bool value at key, or false.
func GetBool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

// GetStruct returns the nested struct at key, or nil.
func GetStruct(s *structpb.Struct, key string) *structpb.Struct {
	return s.GetFields()[key].GetStructValue()
}

// GetList returns the list at key, or nil.
func GetList(s *structpb.Struct, key string) []*structpb.Value {
	return s.GetFields()[key].GetListValue().GetValues()
}

// RequireString returns the non-empty string at key or ErrMissingField.
func RequireString(s *structpb.Struct, key string) (string, error) {
	v := GetString(s, key)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}

	return v, nil
}

// GetTime parses an RFC 3339 timestamp at key. Absent or null yields the zero time.
func GetTime(s *structpb.Struct, key string) (time.Time, error) {
	raw := GetString(s, key)
	if raw == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %w", ErrInvalidField, key, err)
	}

	return t, nil
}

// formatTime renders a timestamp for a Struct field; the zero time becomes null.
func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.UTC().Format(time.RFC3339Nano)
}

// formatTimePtr is formatTime for optional timestamps.
func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}

	return formatTime(*t)
}

// seconds renders a duration as fractional seconds.
func seconds(d time.Duration) float64 {
	return d.Seconds()
}

// duration parses fractional seconds at key.
func duration(s *structpb.Struct, key string) time.Duration {
	n, _ := GetNumber(s, key)

	return time.Duration(math.Round(n * float64(time.Second)))
}

// MarshalJSON renders a Struct as compact JSON.
func MarshalJSON(s *structpb.Struct) ([]byte, error) {
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}

	return data, nil
}

// UnmarshalJSON parses a JSON object into a Struct.
func UnmarshalJSON(data []byte) (*structpb.Struct, error) {
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}

	return s, nil
}
