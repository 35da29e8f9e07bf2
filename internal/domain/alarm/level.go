package alarm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Level is one rung of the alarm ladder.
type Level int

const (
	// LevelAudio is the local audible alarm, fired on request while the entity is outside the fence.
	LevelAudio Level = iota + 1
	// LevelWarning fires after the entity dwells in the warning zone long enough.
	LevelWarning
	// LevelDanger fires as soon as the entity is in the danger zone.
	LevelDanger
)

// levelCount is the number of ladder levels.
const levelCount = 3

// errUnknownLevel is returned when parsing an unrecognized level.
var errUnknownLevel = errors.New("unknown alarm level")

// Levels returns every ladder level in ascending severity.
func Levels() []Level {
	return []Level{LevelAudio, LevelWarning, LevelDanger}
}

// AutomaticLevels returns the levels driven by zone and dwell rather than by an explicit request.
func AutomaticLevels() []Level {
	return []Level{LevelWarning, LevelDanger}
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l >= LevelAudio && l <= LevelDanger
}

// index returns the slot position of the level.
func (l Level) index() int {
	return int(l) - 1
}

// String returns the lowercase name of the level.
func (l Level) String() string {
	switch l {
	case LevelAudio:
		return "audio"
	case LevelWarning:
		return "warning"
	case LevelDanger:
		return "danger"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel accepts either the level name or its number ("2", "warning").
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if n, err := strconv.Atoi(s); err == nil {
		if l := Level(n); l.Valid() {
			return l, nil
		}

		return 0, fmt.Errorf("%w: %d", errUnknownLevel, n)
	}

	for _, l := range Levels() {
		if l.String() == s {
			return l, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", errUnknownLevel, s)
}
