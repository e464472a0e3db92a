// Package playback provides the transport controller that owns the single playback resource.
package playback

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // No current track
	StateLoaded               // Current track loaded, not playing
	StatePlaying              // Resource confirmed playback
	StatePaused               // Loaded, paused by the user
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// RepeatMode selects what happens at the end of a track or the queue.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota // Stop at queue end
	RepeatOne                    // Loop the current track
	RepeatAll                    // Wrap to the start of the queue
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseRepeatMode parses "none", "one" or "all".
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "":
		return RepeatNone, nil
	case "one":
		return RepeatOne, nil
	case "all":
		return RepeatAll, nil
	default:
		return RepeatNone, errors.Newf("unknown repeat mode: %q", s)
	}
}
