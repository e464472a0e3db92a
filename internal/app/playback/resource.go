package playback

import (
	"context"
	"time"

	"github.com/osa030/cuedeck/internal/domain/apperr"
	"github.com/osa030/cuedeck/internal/domain/track"
)

// ResourceEventKind distinguishes resource notifications.
type ResourceEventKind int

const (
	ResourceEnded ResourceEventKind = iota // Track reached its natural end
	ResourceError                          // Media error while loaded or playing
)

// ResourceEvent is reported by the playback resource. TrackID names the
// track that was loaded when the event occurred.
type ResourceEvent struct {
	Kind    ResourceEventKind
	TrackID string
	Code    apperr.MediaCode
	Err     error
}

// Resource is the one audible stream owned by the controller.
type Resource interface {
	// Load replaces the loaded stream with t, paused at position 0.
	Load(t track.Track) error
	// Unload releases the loaded stream.
	Unload()
	// Play starts or resumes playback. The returned channel yields once:
	// nil when the host confirmed playback, or the rejection.
	Play() <-chan error
	// Pause halts playback, keeping the position.
	Pause()
	// Position returns the playback position.
	Position() time.Duration
	// Seek moves the playback position.
	Seek(d time.Duration) error
	// Duration returns the loaded stream's length, or 0 when unknown.
	Duration() time.Duration
	// Volume returns the output gain (0..1).
	Volume() float64
	// SetVolume sets the output gain (0..1).
	SetVolume(v float64)
	// Events delivers end and error notifications.
	Events() <-chan ResourceEvent
	// Close releases the resource.
	Close() error
}

// Prober reads a track's duration from its metadata.
type Prober interface {
	Probe(ctx context.Context, t track.Track) (time.Duration, error)
}
