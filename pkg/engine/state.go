package engine

import "github.com/zachfi/onair/pkg/catalog"

// State is the playback state. Exactly one holds at any instant.
type State int

const (
	Idle State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	State State          `json:"state"`
	Track *catalog.Track `json:"track,omitempty"`
}
