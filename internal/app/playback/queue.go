package playback

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/app/queue"
	"github.com/osa030/cuedeck/internal/domain/apperr"
	"github.com/osa030/cuedeck/internal/domain/track"
)

// AddTracks admits files into the queue. Durations of accepted tracks are
// read in the background. When the queue gains its first tracks, the first
// one becomes current without playing.
func (c *Controller) AddTracks(ctx context.Context, files []track.File) (queue.AddResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return queue.AddResult{}, apperr.Mark(ErrClosed, apperr.ErrOperationNotAllowed)
	}
	wasEmpty := c.queue.Len() == 0
	result := c.queue.Add(ctx, files)
	if len(result.Added) == 0 {
		return result, nil
	}

	if c.prober != nil {
		for _, t := range result.Added {
			if t.HasDuration() {
				continue
			}
			c.goLocked(func() { c.probe(t) })
		}
	}

	c.relocateLocked()
	c.sendEventLocked(Event{Type: EventQueueChanged, Track: c.currentTrackLocked(), State: c.state, Index: c.current})

	if wasEmpty && c.current < 0 {
		return result, c.playTrackLocked(0, false)
	}
	return result, nil
}

// RemoveTrack removes the effective-queue track at index. Removing the
// current track stops and releases it.
func (c *Controller) RemoveTrack(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.queue.At(index)
	if !ok {
		return apperr.Mark(errors.Newf("index %d outside queue of %d", index, c.queue.Len()), apperr.ErrIndexOutOfRange)
	}

	if t.ID == c.currentID {
		c.fader.Cancel()
		c.haltLocked(false)
		c.resource.Unload()
		c.currentID = ""
		c.state = StateIdle
	}
	c.queue.Remove(t.ID)
	c.relocateLocked()
	c.sendEventLocked(Event{Type: EventQueueChanged, Track: c.currentTrackLocked(), State: c.state, Index: c.current})
	c.sendStateLocked()
	return nil
}

// ReorderQueue moves the canonical track at from to position to. Not
// allowed while shuffled. Indices follow the tracks they point at.
func (c *Controller) ReorderQueue(from, to int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.queue.Reorder(from, to); err != nil {
		return err
	}
	c.relocateLocked()
	c.sendEventLocked(Event{Type: EventQueueChanged, Track: c.currentTrackLocked(), State: c.state, Index: c.current})
	return nil
}

// ToggleShuffle turns the shuffled projection on or off, keeping the
// current track current.
func (c *Controller) ToggleShuffle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.SetShuffled(!c.queue.IsShuffled())
	c.relocateLocked()
	zlog.Info().Msgf("playback: shuffle: on=%v current=%d", c.queue.IsShuffled(), c.current)
	c.sendEventLocked(Event{Type: EventQueueChanged, Track: c.currentTrackLocked(), State: c.state, Index: c.current})
}

// ClearQueue stops playback without a fade, releases the loaded media and
// empties the queue.
func (c *Controller) ClearQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fader.Cancel()
	c.haltLocked(false)
	c.resource.Unload()

	released := c.queue.Clear()
	c.current, c.currentID = -1, ""
	c.selected, c.selectedID = -1, ""
	c.state = StateIdle

	zlog.Info().Msgf("playback: queue cleared: released=%d", len(released))
	c.sendEventLocked(Event{Type: EventQueueChanged, State: c.state, Index: c.current})
	c.sendEventLocked(Event{Type: EventIndexChanged, State: c.state, Index: c.current})
	c.sendStateLocked()
}

// SetSelected highlights the effective-queue track at index without
// changing what plays.
func (c *Controller) SetSelected(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.queue.At(index)
	if !ok {
		return apperr.Mark(errors.Newf("index %d outside queue of %d", index, c.queue.Len()), apperr.ErrIndexOutOfRange)
	}
	c.selected = index
	c.selectedID = t.ID
	c.sendEventLocked(Event{Type: EventIndexChanged, Track: c.currentTrackLocked(), State: c.state, Index: c.current})
	return nil
}
