// Package queue provides the ordered track list and its shuffled projection.
package queue

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/lo/mutable"

	"github.com/osa030/cuedeck/internal/app/filter"
	"github.com/osa030/cuedeck/internal/domain/apperr"
	"github.com/osa030/cuedeck/internal/domain/track"
)

// ShuffleFunc permutes tracks in place.
type ShuffleFunc func(tracks []track.Track)

// Skipped is an import candidate rejected by admission.
type Skipped struct {
	File track.File
	Code string
}

// AddResult reports the outcome of Add.
type AddResult struct {
	Added   []track.Track
	Skipped []Skipped
}

// Option configures a Store.
type Option func(*Store)

// WithFilters adds admission filters run before the duplicate check.
func WithFilters(filters ...filter.Filter) Option {
	return func(s *Store) {
		for _, f := range filters {
			s.chain.Add(f)
		}
	}
}

// WithShuffle replaces the uniform random shuffle.
func WithShuffle(fn ShuffleFunc) Option {
	return func(s *Store) {
		s.shuffle = fn
	}
}

// Store holds the canonical queue and, while shuffle is on, a permutation of it.
//
// Store is not safe for concurrent use; the transport controller serialises
// access with its own lock.
type Store struct {
	tracks   []track.Track
	shuffled []track.Track
	isOn     bool
	chain    *filter.Chain
	shuffle  ShuffleFunc
}

// New creates an empty queue.
func New(opts ...Option) *Store {
	s := &Store{
		tracks:  make([]track.Track, 0),
		chain:   filter.NewChain(),
		shuffle: func(tracks []track.Track) { mutable.Shuffle(tracks) },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.chain.Add(filter.NewDuplicateTrackFilter(s))
	return s
}

// Add admits the candidates in order. Rejected candidates are reported in
// Skipped with the rejecting filter's code. Accepted tracks are appended to
// the canonical queue.
func (s *Store) Add(ctx context.Context, files []track.File) AddResult {
	result := AddResult{
		Added:   make([]track.Track, 0, len(files)),
		Skipped: make([]Skipped, 0),
	}

	for _, f := range files {
		t := track.FromFile(f)
		r := s.chain.Execute(ctx, filter.Candidate{File: f, Track: t})
		if !r.Accepted {
			zlog.Info().Msgf("queue: skipped: name=%s reason=%s", t.Name, r.Code)
			result.Skipped = append(result.Skipped, Skipped{File: f, Code: r.Code})
			continue
		}
		s.tracks = append(s.tracks, t)
		result.Added = append(result.Added, t)
	}

	if len(result.Added) > 0 {
		s.reshuffle()
		zlog.Info().Msgf("queue: added: count=%d total=%d", len(result.Added), len(s.tracks))
	}
	return result
}

// Remove drops the track with id from the queue.
func (s *Store) Remove(id string) (track.Track, bool) {
	_, idx, ok := lo.FindIndexOf(s.tracks, func(t track.Track) bool { return t.ID == id })
	if !ok {
		return track.Track{}, false
	}
	removed := s.tracks[idx]
	s.tracks = slices.Delete(s.tracks, idx, idx+1)
	s.reshuffle()
	zlog.Info().Msgf("queue: removed: name=%s total=%d", removed.Name, len(s.tracks))
	return removed, true
}

// Clear empties both the canonical queue and the projection and returns the
// released tracks.
func (s *Store) Clear() []track.Track {
	released := s.tracks
	s.tracks = make([]track.Track, 0)
	if s.isOn {
		s.shuffled = make([]track.Track, 0)
	}
	zlog.Info().Msgf("queue: cleared: count=%d", len(released))
	return released
}

// Reorder moves the canonical track at from to position to, shifting the
// tracks in between. Not allowed while shuffled.
func (s *Store) Reorder(from, to int) error {
	if s.isOn {
		return apperr.Mark(errors.New("cannot reorder the queue while shuffle is on"), apperr.ErrOperationNotAllowed)
	}
	n := len(s.tracks)
	if from < 0 || from >= n || to < 0 || to >= n {
		return apperr.Mark(errors.Newf("reorder %d -> %d outside queue of %d", from, to, n), apperr.ErrIndexOutOfRange)
	}
	if from == to {
		return nil
	}

	moved := s.tracks[from]
	s.tracks = slices.Delete(s.tracks, from, from+1)
	s.tracks = slices.Insert(s.tracks, to, moved)
	zlog.Debug().Msgf("queue: reordered: name=%s from=%d to=%d", moved.Name, from, to)
	return nil
}

// SetShuffled turns the shuffled projection on or off.
func (s *Store) SetShuffled(on bool) {
	s.isOn = on
	if !on {
		s.shuffled = nil
		return
	}
	s.reshuffle()
}

// IsShuffled reports whether the projection is active.
func (s *Store) IsShuffled() bool {
	return s.isOn
}

// Effective returns a copy of the effective queue.
func (s *Store) Effective() []track.Track {
	return slices.Clone(s.effective())
}

// Canonical returns a copy of the canonical queue.
func (s *Store) Canonical() []track.Track {
	return slices.Clone(s.tracks)
}

// Len returns the number of queued tracks.
func (s *Store) Len() int {
	return len(s.tracks)
}

// At returns the track at index i of the effective queue.
func (s *Store) At(i int) (track.Track, bool) {
	eff := s.effective()
	if i < 0 || i >= len(eff) {
		return track.Track{}, false
	}
	return eff[i], true
}

// IndexOf returns the effective index of the track with id, or -1.
func (s *Store) IndexOf(id string) int {
	_, idx, ok := lo.FindIndexOf(s.effective(), func(t track.Track) bool { return t.ID == id })
	if !ok {
		return -1
	}
	return idx
}

// Contains reports whether a track with id is queued.
func (s *Store) Contains(id string) bool {
	return lo.ContainsBy(s.tracks, func(t track.Track) bool { return t.ID == id })
}

// SetDuration back-fills the duration of the track with id. A known
// duration is never overwritten.
func (s *Store) SetDuration(id string, d time.Duration) bool {
	if d <= 0 {
		return false
	}
	updated := false
	for _, list := range [][]track.Track{s.tracks, s.shuffled} {
		for i := range list {
			if list[i].ID == id && !list[i].HasDuration() {
				list[i].Duration = d
				updated = true
			}
		}
	}
	return updated
}

// Filters returns the admission filters in order.
func (s *Store) Filters() []filter.Filter {
	return s.chain.Filters()
}

func (s *Store) effective() []track.Track {
	if s.isOn {
		return s.shuffled
	}
	return s.tracks
}

// reshuffle recomputes the projection from the current membership.
func (s *Store) reshuffle() {
	if !s.isOn {
		return
	}
	s.shuffled = slices.Clone(s.tracks)
	s.shuffle(s.shuffled)
}
