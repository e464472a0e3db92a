package playback

import (
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/app/settings"
	"github.com/osa030/cuedeck/internal/domain/apperr"
)

// PlayTrack makes the effective-queue track at index current and, when
// andPlay is set, starts it. isPlaying turns true only once the resource
// confirms playback.
func (c *Controller) PlayTrack(index int, andPlay bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.playTrackLocked(index, andPlay)
}

// TogglePlayPause pauses a playing track or resumes a paused one. It is a
// no-op while a fade is in flight. Without a current track it starts the
// selected track, or the first one.
func (c *Controller) TogglePlayPause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fader.IsFading() {
		zlog.Debug().Msg("playback: toggle ignored while fading")
		return nil
	}

	if c.current < 0 {
		if c.queue.Len() == 0 {
			return nil
		}
		index := c.selected
		if index < 0 {
			index = 0
		}
		return c.playTrackLocked(index, true)
	}

	if c.pendingStart {
		c.haltLocked(false)
		c.state = StatePaused
		c.sendStateLocked()
		return nil
	}

	if c.state == StatePlaying {
		c.pauseLocked()
		return nil
	}
	return c.startLocked(c.state == StateLoaded)
}

// PlayNext advances to the next track of the effective queue. Past the end
// it wraps with RepeatAll, otherwise it stops and rewinds to the first
// track without playing it.
func (c *Controller) PlayNext(fromError bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fader.Cancel()
	return c.advanceLocked(fromError, true)
}

// PlayPrev rewinds the current track when it is further in than the restart
// threshold, otherwise moves to the previous track. It is a no-op while a
// fade is in flight.
func (c *Controller) PlayPrev() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fader.IsFading() {
		zlog.Debug().Msg("playback: prev ignored while fading")
		return nil
	}
	if c.current < 0 {
		return nil
	}

	if c.resource.Position() > c.config.PrevRestartThreshold {
		if err := c.resource.Seek(0); err != nil {
			return apperr.Mark(errors.Wrap(err, "failed to rewind"), apperr.ErrPlayback)
		}
		zlog.Debug().Msgf("playback: prev rewound current track: index=%d", c.current)
		return nil
	}

	prev := c.current - 1
	if prev < 0 {
		if c.repeat != RepeatAll {
			return nil
		}
		prev = c.queue.Len() - 1
	}
	t, _ := c.queue.At(prev)
	return c.transitionLocked(t.ID, false, true)
}

// StopPlayback pauses and rewinds the current track. With fade set and a
// track playing, the stop is bracketed by a fade-out.
func (c *Controller) StopPlayback(withFade bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fader.Cancel()

	d := c.settings.Current().Audio.FadeOut.Effective()
	if withFade && c.state == StatePlaying && d > 0 {
		c.fader.FadeOut(d, c.effectiveVolumeLocked(), func() {
			c.haltLocked(true)
		})
		return nil
	}

	c.haltLocked(true)
	return nil
}

// Seek moves the current track to pct (0..100) of its duration. It is a
// no-op while the duration is unknown.
func (c *Controller) Seek(pct float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current < 0 {
		return nil
	}
	d := c.durationLocked()
	if d <= 0 {
		return nil
	}

	pct = clamp(pct/100) * 100
	c.cancelFadeLocked()
	target := time.Duration(pct / 100 * float64(d))
	if err := c.resource.Seek(target); err != nil {
		return apperr.Mark(errors.Wrapf(err, "failed to seek to %.1f%%", pct), apperr.ErrPlayback)
	}
	return nil
}

// SkipForward moves the position forward by the skip step.
func (c *Controller) SkipForward() error {
	return c.skip(c.config.SkipStep)
}

// SkipBackward moves the position back by the skip step.
func (c *Controller) SkipBackward() error {
	return c.skip(-c.config.SkipStep)
}

func (c *Controller) skip(delta time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current < 0 {
		return nil
	}

	pos := c.resource.Position() + delta
	if pos < 0 {
		pos = 0
	}
	if d := c.durationLocked(); d > 0 && pos > d {
		pos = d
	}

	c.cancelFadeLocked()
	if err := c.resource.Seek(pos); err != nil {
		return apperr.Mark(errors.Wrap(err, "failed to skip"), apperr.ErrPlayback)
	}
	return nil
}

// SetVolume sets the user volume (0..1, before the ceiling) and persists it.
func (c *Controller) SetVolume(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelFadeLocked()
	c.volume = clamp(v)
	c.resource.SetVolume(c.effectiveVolumeLocked())
	c.sendStateLocked()

	vol := c.volume
	if err := c.settings.Update(func(s *settings.Settings) { s.Volume = vol }); err != nil {
		return errors.Wrap(err, "failed to persist volume")
	}
	return nil
}

// ToggleMute flips the mute flag and persists it.
func (c *Controller) ToggleMute() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelFadeLocked()
	c.muted = !c.muted
	c.resource.SetVolume(c.effectiveVolumeLocked())
	c.sendStateLocked()
	zlog.Info().Msgf("playback: mute toggled: muted=%v", c.muted)

	muted := c.muted
	if err := c.settings.Update(func(s *settings.Settings) { s.IsMuted = muted }); err != nil {
		return errors.Wrap(err, "failed to persist mute")
	}
	return nil
}

// SetRepeatMode sets the repeat mode.
func (c *Controller) SetRepeatMode(m RepeatMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.repeat = m
	zlog.Info().Msgf("playback: repeat mode: %s", m)
	c.sendStateLocked()
}

func (c *Controller) playTrackLocked(index int, andPlay bool) error {
	if c.closing {
		return apperr.Mark(ErrClosed, apperr.ErrOperationNotAllowed)
	}
	t, ok := c.queue.At(index)
	if !ok {
		return apperr.Mark(errors.Newf("index %d outside queue of %d", index, c.queue.Len()), apperr.ErrIndexOutOfRange)
	}

	c.fader.Cancel()
	c.playSeq++
	c.pendingStart = false
	c.setCurrentLocked(index, t)
	c.state = StateLoaded

	if err := c.resource.Load(t); err != nil {
		c.resource.SetVolume(c.effectiveVolumeLocked())
		c.sendEventLocked(Event{Type: EventIndexChanged, Track: &t, State: c.state, Index: c.current})
		c.sendStateLocked()
		return apperr.Mark(errors.Wrapf(err, "failed to load %s", t.Name), apperr.ErrPlayback)
	}
	if d := c.resource.Duration(); d > 0 && c.queue.SetDuration(t.ID, d) {
		t.Duration = d
		c.sendEventLocked(Event{Type: EventQueueChanged, Track: &t, State: c.state, Index: c.current})
	}
	c.resource.SetVolume(c.effectiveVolumeLocked())
	zlog.Info().Msgf("playback: loaded: track=%s index=%d", t.Name, index)
	c.sendEventLocked(Event{Type: EventIndexChanged, Track: &t, State: c.state, Index: c.current})

	if !andPlay {
		c.sendStateLocked()
		return nil
	}
	return c.startLocked(true)
}

func (c *Controller) playTrackByIDLocked(id string, andPlay bool) error {
	index := c.queue.IndexOf(id)
	if index < 0 {
		return apperr.Mark(errors.New("track is no longer queued"), apperr.ErrIndexOutOfRange)
	}
	return c.playTrackLocked(index, andPlay)
}

// advanceLocked moves to the next track. allowFade is false for natural
// ends and error recovery, where the outgoing track is already silent.
func (c *Controller) advanceLocked(fromError, allowFade bool) error {
	n := c.queue.Len()
	if n == 0 {
		c.haltLocked(false)
		return nil
	}

	next := c.current + 1
	if next >= n {
		if c.repeat != RepeatAll {
			zlog.Info().Msg("playback: end of queue")
			c.haltLocked(true)
			return c.playTrackLocked(0, false)
		}
		next = 0
	}
	if fromError && next == c.current {
		// The only track failed; replaying it would loop on the error.
		c.haltLocked(false)
		return nil
	}

	t, _ := c.queue.At(next)
	return c.transitionLocked(t.ID, fromError, allowFade)
}

// transitionLocked plays the track with id, fading out the playing track
// first when fades are enabled. The target is resolved by id when the fade
// completes, so queue changes during the fade do not redirect it.
func (c *Controller) transitionLocked(id string, fromError, allowFade bool) error {
	d := c.settings.Current().Audio.FadeOut.Effective()
	skipFade := fromError && c.config.SkipFadeOnError
	if allowFade && !skipFade && c.state == StatePlaying && d > 0 {
		c.fader.FadeOut(d, c.effectiveVolumeLocked(), func() {
			c.reportLocked(c.playTrackByIDLocked(id, true))
		})
		return nil
	}
	return c.playTrackByIDLocked(id, true)
}

func (c *Controller) pauseLocked() {
	pause := func() {
		c.resource.Pause()
		c.state = StatePaused
		zlog.Info().Msgf("playback: paused: index=%d", c.current)
		c.sendStateLocked()
	}

	d := c.settings.Current().Audio.FadeOut.Effective()
	if d > 0 {
		c.fader.FadeOut(d, c.effectiveVolumeLocked(), pause)
		return
	}
	pause()
}
