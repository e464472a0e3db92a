package playback

import (
	"time"

	"github.com/osa030/cuedeck/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted  EventType = iota // Resource confirmed playback of a newly loaded track
	EventTrackEnded                     // Track reached its natural end
	EventStateChanged                   // Playback state changed (play/pause/stop)
	EventQueueChanged                   // Queue membership, order or metadata changed
	EventFadeProgress                   // Fade countdown changed
	EventError                          // Asynchronous failure to surface to the user
	EventIndexChanged                   // Current or selected index changed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventStateChanged:
		return "state_changed"
	case EventQueueChanged:
		return "queue_changed"
	case EventFadeProgress:
		return "fade_progress"
	case EventError:
		return "error"
	case EventIndexChanged:
		return "index_changed"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type      EventType
	Track     *track.Track  // Current track (nil for some events)
	State     State         // Current playback state
	Index     int           // Current index, -1 when none
	Err       error         // Set for EventError
	Remaining time.Duration // Fade countdown for EventFadeProgress
	Fading    bool          // Whether a fade is in flight for EventFadeProgress
}
