package types

import "fmt"

// Level is the human-readable similarity band
type Level int

const (
	VeryLow Level = iota
	Low
	Moderate
	High
	VeryHigh
)

var levelNames = map[Level]string{
	VeryLow:  "Very Low",
	Low:      "Low",
	Moderate: "Moderate",
	High:     "High",
	VeryHigh: "Very High",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// MarshalText renders the level by name in JSON output.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name.
func (l *Level) UnmarshalText(text []byte) error {
	for level, name := range levelNames {
		if name == string(text) {
			*l = level
			return nil
		}
	}
	return fmt.Errorf("unknown similarity level %q", string(text))
}

// Status tells whether a comparison succeeded
type Status int

const (
	StatusSuccess Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusError {
		return "error"
	}
	return "success"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "success":
		*s = StatusSuccess
	case "error":
		*s = StatusError
	default:
		return fmt.Errorf("unknown status %q", string(text))
	}
	return nil
}
