package playback

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/app/fade"
	"github.com/osa030/cuedeck/internal/app/queue"
	"github.com/osa030/cuedeck/internal/app/settings"
	"github.com/osa030/cuedeck/internal/domain/apperr"
	"github.com/osa030/cuedeck/internal/domain/playlist"
	"github.com/osa030/cuedeck/internal/domain/track"
)

// ErrClosed is returned by commands issued once the controller is closing.
var ErrClosed = errors.New("transport controller is closed")

// Config holds controller configuration.
type Config struct {
	AutoAdvanceOnError   bool          // Play the next track after a playback or media error
	SkipFadeOnError      bool          // Skip the fade-out when advancing because of an error
	PrevRestartThreshold time.Duration // playPrev rewinds instead when further in than this
	SkipStep             time.Duration // skipForward/skipBackward step
	FadeStep             time.Duration // Fade ramp tick interval
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		AutoAdvanceOnError:   false,
		SkipFadeOnError:      true,
		PrevRestartThreshold: 3 * time.Second,
		SkipStep:             10 * time.Second,
		FadeStep:             fade.DefaultStep,
	}
}

// SettingsSource provides the user settings the controller reads and writes.
type SettingsSource interface {
	Current() settings.Settings
	Update(fn func(*settings.Settings)) error
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	prober     Prober
	fadeTicker fade.TickerFunc
}

// WithProber enables background duration enrichment of added tracks.
func WithProber(p Prober) Option {
	return func(o *options) {
		o.prober = p
	}
}

// WithFadeTicker replaces the wall-clock fade ticker.
func WithFadeTicker(fn fade.TickerFunc) Option {
	return func(o *options) {
		o.fadeTicker = fn
	}
}

// Status is a consistent snapshot of the transport state.
type Status struct {
	State         State
	IsPlaying     bool
	CurrentIndex  int // -1 when none
	SelectedIndex int // -1 when none
	CurrentTrack  *track.Track
	IsFading      bool
	FadeCountdown time.Duration
	Progress      float64 // 0..100
	Position      time.Duration
	Duration      time.Duration
	Volume        float64
	IsMuted       bool
	RepeatMode    RepeatMode
	IsShuffled    bool
	Queue         []track.Track // Effective queue
}

// Controller is the transport state machine. Every command and every
// asynchronous callback (fade ticks, play confirmations, resource events)
// runs under mu, so transitions never interleave.
type Controller struct {
	mu sync.Mutex

	resource Resource
	queue    *queue.Store
	settings SettingsSource
	fader    *fade.Scheduler
	prober   Prober
	config   Config

	state      State
	current    int
	currentID  string
	selected   int
	selectedID string
	volume     float64
	muted      bool
	repeat     RepeatMode

	playSeq      uint64
	pendingStart bool
	errorStreak  int

	// Events
	eventCh chan Event
	closing bool // set first thing in Close; no goroutine starts after it
	closed  bool

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a transport controller owning resource.
func NewController(resource Resource, q *queue.Store, st SettingsSource, config Config, opts ...Option) *Controller {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	current := st.Current()
	c := &Controller{
		resource: resource,
		queue:    q,
		settings: st,
		prober:   o.prober,
		config:   config,
		state:    StateIdle,
		current:  -1,
		selected: -1,
		volume:   current.Volume,
		muted:    current.IsMuted,
		repeat:   RepeatNone,
		eventCh:  make(chan Event, 64),
		ctx:      ctx,
		cancel:   cancel,
	}

	fadeOpts := []fade.Option{
		fade.WithStep(config.FadeStep),
		fade.WithProgress(c.onFadeProgress),
	}
	if o.fadeTicker != nil {
		fadeOpts = append(fadeOpts, fade.WithTicker(o.fadeTicker))
	}
	c.fader = fade.New(&c.mu, resource, fadeOpts...)

	resource.SetVolume(c.effectiveVolumeLocked())

	c.wg.Add(1)
	go c.watchResource()

	return c
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Snapshot returns the current transport state.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	countdown, fading := c.fader.Countdown()
	s := Status{
		State:         c.state,
		IsPlaying:     c.state == StatePlaying,
		CurrentIndex:  c.current,
		SelectedIndex: c.selected,
		IsFading:      fading,
		FadeCountdown: countdown,
		Volume:        c.volume,
		IsMuted:       c.muted,
		RepeatMode:    c.repeat,
		IsShuffled:    c.queue.IsShuffled(),
		Queue:         c.queue.Effective(),
	}
	if t := c.currentTrackLocked(); t != nil {
		s.CurrentTrack = t
		s.Position = c.resource.Position()
		s.Duration = c.durationLocked()
		if s.Duration > 0 {
			s.Progress = math.Min(100, 100*float64(s.Position)/float64(s.Duration))
		}
	}
	return s
}

// ExportPlaylist returns the canonical queue as a playlist.
func (c *Controller) ExportPlaylist(name string) playlist.Playlist {
	c.mu.Lock()
	defer c.mu.Unlock()

	return playlist.Playlist{
		Name:   name,
		Tracks: c.queue.Canonical(),
	}
}

// ApplySettings re-reads volume and mute from s and re-applies the
// effective output volume. Used after an import or an external edit.
func (c *Controller) ApplySettings(s settings.Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.volume = clamp(s.Volume)
	c.muted = s.IsMuted
	if !c.fader.IsFading() {
		c.resource.SetVolume(c.effectiveVolumeLocked())
	}
	c.sendStateLocked()
}

// Close stops the controller and releases the resource.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.fader.Cancel()
	c.playSeq++
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.resource.Close(); err != nil {
		zlog.Warn().Msgf("playback: failed to close resource: %v", err)
	}
	c.closed = true
	close(c.eventCh)
}

// watchResource consumes resource notifications until the controller closes.
func (c *Controller) watchResource() {
	defer c.wg.Done()

	events := c.resource.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.mu.Lock()
			c.handleResourceEventLocked(ev)
			c.mu.Unlock()
		}
	}
}

func (c *Controller) handleResourceEventLocked(ev ResourceEvent) {
	if ev.TrackID == "" || ev.TrackID != c.currentID {
		zlog.Debug().Msgf("playback: ignoring stale resource event: kind=%d track_id=%s", ev.Kind, ev.TrackID)
		return
	}
	t := c.currentTrackLocked()
	if t == nil {
		return
	}

	switch ev.Kind {
	case ResourceEnded:
		zlog.Info().Msgf("playback: track ended: track=%s", t.Name)
		c.state = StateLoaded
		c.sendEventLocked(Event{Type: EventTrackEnded, Track: t, State: c.state, Index: c.current})

		if c.repeat == RepeatOne {
			c.fader.Cancel()
			if err := c.resource.Seek(0); err != nil {
				zlog.Warn().Msgf("playback: failed to rewind for repeat: %v", err)
			}
			c.reportLocked(c.startLocked(true))
			return
		}
		c.reportLocked(c.advanceLocked(false, false))

	case ResourceError:
		err := apperr.Media(ev.Code, t.Name, ev.Err)
		if apperr.Silent(err) {
			zlog.Debug().Msgf("playback: suppressed media error: %v", err)
			return
		}
		c.fader.Cancel()
		c.haltLocked(false)
		c.errorStreak++
		zlog.Error().Msgf("playback: media error: track=%s code=%s err=%v", t.Name, ev.Code, err)
		c.sendEventLocked(Event{Type: EventError, Track: t, State: c.state, Index: c.current, Err: err})
		c.autoAdvanceLocked()
	}
}

// startLocked asks the resource to start or resume. The result is applied
// immediately when the host already answered, otherwise when it does, as
// long as no later transition superseded this request.
func (c *Controller) startLocked(newTrack bool) error {
	if c.closing {
		return apperr.Mark(ErrClosed, apperr.ErrOperationNotAllowed)
	}
	c.playSeq++
	seq := c.playSeq

	fadeIn := c.settings.Current().Audio.FadeIn.Effective()
	if fadeIn > 0 {
		c.resource.SetVolume(0)
	} else {
		c.resource.SetVolume(c.effectiveVolumeLocked())
	}

	result := c.resource.Play()
	c.pendingStart = true

	select {
	case err := <-result:
		return c.onPlayResultLocked(seq, err, newTrack, fadeIn)
	default:
	}

	c.goLocked(func() {
		var err error
		select {
		case err = <-result:
		case <-c.ctx.Done():
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.reportLocked(c.onPlayResultLocked(seq, err, newTrack, fadeIn))
	})
	return nil
}

// goLocked runs fn on a goroutine Close waits for. Once Close has begun it
// does nothing and reports false.
// Must be called with lock held.
func (c *Controller) goLocked(fn func()) bool {
	if c.closing {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

func (c *Controller) onPlayResultLocked(seq uint64, err error, newTrack bool, fadeIn time.Duration) error {
	if seq != c.playSeq {
		zlog.Debug().Msgf("playback: ignoring stale play result: seq=%d current=%d", seq, c.playSeq)
		return nil
	}
	c.pendingStart = false
	t := c.currentTrackLocked()
	if t == nil {
		return nil
	}

	if err != nil {
		c.state = StateLoaded
		c.resource.SetVolume(c.effectiveVolumeLocked())
		c.sendStateLocked()
		zlog.Error().Msgf("playback: resource refused to play: track=%s err=%v", t.Name, err)
		c.errorStreak++
		perr := apperr.Mark(errors.Wrapf(err, "%s", t.Name), apperr.ErrPlayback)
		if c.config.AutoAdvanceOnError {
			c.reportLocked(perr)
			c.autoAdvanceLocked()
			return nil
		}
		return perr
	}

	c.errorStreak = 0
	c.state = StatePlaying
	zlog.Info().Msgf("playback: playing: track=%s index=%d", t.Name, c.current)
	if newTrack {
		c.sendEventLocked(Event{Type: EventTrackStarted, Track: t, State: c.state, Index: c.current})
	}
	c.sendStateLocked()

	if fadeIn > 0 {
		c.fader.FadeIn(c.effectiveVolumeLocked(), fadeIn, nil)
	}
	return nil
}

// autoAdvanceLocked moves past a failed track when the policy allows it.
// A streak of failures as long as the queue stops the advance.
func (c *Controller) autoAdvanceLocked() {
	if !c.config.AutoAdvanceOnError {
		return
	}
	if c.errorStreak >= c.queue.Len() {
		zlog.Warn().Msgf("playback: not advancing, every track failed: streak=%d", c.errorStreak)
		return
	}
	c.reportLocked(c.advanceLocked(true, false))
}

// haltLocked stops the resource and invalidates any pending start. With
// rewind set the position goes back to 0.
func (c *Controller) haltLocked(rewind bool) {
	c.playSeq++
	c.pendingStart = false
	c.resource.Pause()
	if rewind && c.current >= 0 {
		if err := c.resource.Seek(0); err != nil {
			zlog.Debug().Msgf("playback: failed to rewind: %v", err)
		}
	}
	c.resource.SetVolume(c.effectiveVolumeLocked())
	if c.current >= 0 {
		c.state = StateLoaded
	} else {
		c.state = StateIdle
	}
	c.sendStateLocked()
}

// reportLocked publishes an error produced outside a caller's command.
func (c *Controller) reportLocked(err error) {
	if err == nil {
		return
	}
	c.sendEventLocked(Event{Type: EventError, Track: c.currentTrackLocked(), State: c.state, Index: c.current, Err: err})
}

func (c *Controller) onFadeProgress(remaining time.Duration, fading bool) {
	c.sendEventLocked(Event{Type: EventFadeProgress, State: c.state, Index: c.current, Remaining: remaining, Fading: fading})
}

// cancelFadeLocked stops an in-flight fade and puts the output back at the
// effective volume so a partially faded ramp is not left audible.
func (c *Controller) cancelFadeLocked() {
	if !c.fader.IsFading() {
		return
	}
	c.fader.Cancel()
	c.resource.SetVolume(c.effectiveVolumeLocked())
}

func (c *Controller) effectiveVolumeLocked() float64 {
	if c.muted {
		return 0
	}
	return clamp(c.volume * c.settings.Current().Audio.MaxVolume.Ceiling())
}

func (c *Controller) durationLocked() time.Duration {
	if d := c.resource.Duration(); d > 0 {
		return d
	}
	if t := c.currentTrackLocked(); t != nil {
		return t.Duration
	}
	return 0
}

func (c *Controller) currentTrackLocked() *track.Track {
	if c.current < 0 {
		return nil
	}
	t, ok := c.queue.At(c.current)
	if !ok {
		return nil
	}
	return &t
}

// relocateLocked re-derives both indices from the tracks they point at
// after the effective queue changed shape.
func (c *Controller) relocateLocked() {
	prevCurrent, prevSelected := c.current, c.selected

	c.current = -1
	if c.currentID != "" {
		c.current = c.queue.IndexOf(c.currentID)
		if c.current < 0 {
			c.currentID = ""
		}
	}
	c.selected = -1
	if c.selectedID != "" {
		c.selected = c.queue.IndexOf(c.selectedID)
		if c.selected < 0 {
			c.selectedID = ""
		}
	}

	if c.current != prevCurrent || c.selected != prevSelected {
		c.sendEventLocked(Event{Type: EventIndexChanged, Track: c.currentTrackLocked(), State: c.state, Index: c.current})
	}
}

func (c *Controller) setCurrentLocked(index int, t track.Track) {
	c.current = index
	c.currentID = t.ID
	c.selected = index
	c.selectedID = t.ID
}

func (c *Controller) sendStateLocked() {
	c.sendEventLocked(Event{Type: EventStateChanged, Track: c.currentTrackLocked(), State: c.state, Index: c.current})
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
		// Successfully sent
	default:
		// Channel full, drop event
		zlog.Debug().Msgf("playback: event dropped: type=%s", e.Type)
	}
}

// probe back-fills the duration of t in the background.
func (c *Controller) probe(t track.Track) {
	d, err := c.prober.Probe(c.ctx, t)
	if err != nil {
		zlog.Warn().Msgf("playback: failed to read duration: track=%s err=%v", t.Name, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return
	}
	if c.queue.SetDuration(t.ID, d) {
		zlog.Debug().Msgf("playback: duration loaded: track=%s duration=%v", t.Name, d)
		c.sendEventLocked(Event{Type: EventQueueChanged, Track: c.currentTrackLocked(), State: c.state, Index: c.current})
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
