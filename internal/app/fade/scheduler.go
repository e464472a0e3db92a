// Package fade provides a timed linear volume ramp with a single timer slot.
package fade

import (
	"math"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// DefaultStep is the ramp tick interval.
const DefaultStep = 50 * time.Millisecond

// Target is the volume-bearing resource a fade acts on.
type Target interface {
	Volume() float64
	SetVolume(v float64)
}

// Ticker delivers ramp ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

// ProgressFunc receives the remaining fade time. fading is false once the
// fade completed or was cancelled.
type ProgressFunc func(remaining time.Duration, fading bool)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithStep sets the ramp tick interval.
func WithStep(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.step = d
		}
	}
}

// WithTicker replaces the wall-clock ticker.
func WithTicker(fn TickerFunc) Option {
	return func(s *Scheduler) {
		s.newTicker = fn
	}
}

// WithProgress registers the countdown publisher.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Scheduler) {
		s.onProgress = fn
	}
}

// ramp is the state of the one live fade.
type ramp struct {
	start   float64
	to      float64
	delta   float64
	steps   int
	n       int
	total   time.Duration
	restore *float64
	onDone  func()
	ticker  Ticker
	stop    chan struct{}
}

// Scheduler runs at most one volume ramp at a time.
//
// Every method must be called with the Locker passed to New held. Ticks
// acquire the same Locker, so a ramp never interleaves with the owner's
// own mutations of the target.
type Scheduler struct {
	lock       sync.Locker
	target     Target
	step       time.Duration
	newTicker  TickerFunc
	onProgress ProgressFunc

	gen       uint64
	active    *ramp
	remaining time.Duration
}

// New creates a scheduler acting on target, serialised by lock.
func New(lock sync.Locker, target Target, opts ...Option) *Scheduler {
	s := &Scheduler{
		lock:      lock,
		target:    target,
		step:      DefaultStep,
		newTicker: newWallTicker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FadeIn ramps from the current volume up to `to` over d, then calls onDone.
func (s *Scheduler) FadeIn(to float64, d time.Duration, onDone func()) {
	s.fadeTo(to, d, nil, onDone)
}

// FadeOut ramps from the current volume down to silence over d, calls
// onDone, then restores the volume to restoreTo so that a later play is
// audible.
func (s *Scheduler) FadeOut(d time.Duration, restoreTo float64, onDone func()) {
	s.fadeTo(0, d, &restoreTo, onDone)
}

// IsFading reports whether a ramp is in flight.
func (s *Scheduler) IsFading() bool {
	return s.active != nil
}

// Countdown returns the remaining time of the live ramp.
func (s *Scheduler) Countdown() (time.Duration, bool) {
	if s.active == nil {
		return 0, false
	}
	return s.remaining, true
}

// Cancel stops the live ramp without calling its completion callback.
func (s *Scheduler) Cancel() {
	if s.active == nil {
		return
	}
	zlog.Debug().Msgf("fade: cancelled: remaining=%v", s.remaining)
	s.clear()
	s.publish()
}

func (s *Scheduler) fadeTo(to float64, d time.Duration, restore *float64, onDone func()) {
	s.Cancel()
	to = clamp(to)

	if d <= 0 {
		s.target.SetVolume(to)
		s.finish(s.gen, restore, onDone)
		return
	}

	steps := int(math.Ceil(float64(d) / float64(s.step)))
	if steps < 1 {
		steps = 1
	}
	start := s.target.Volume()

	s.gen++
	r := &ramp{
		start:   start,
		to:      to,
		delta:   (to - start) / float64(steps),
		steps:   steps,
		total:   d,
		restore: restore,
		onDone:  onDone,
		ticker:  s.newTicker(s.step),
		stop:    make(chan struct{}),
	}
	s.active = r
	s.remaining = d
	s.publish()

	zlog.Debug().Msgf("fade: started: from=%.3f to=%.3f duration=%v steps=%d", start, to, d, steps)

	go s.run(r)
}

// run drives ticks for one ramp until it completes or is superseded.
func (s *Scheduler) run(r *ramp) {
	for {
		select {
		case <-r.stop:
			return
		case <-r.ticker.C():
			s.lock.Lock()
			if s.active != r {
				s.lock.Unlock()
				return
			}
			done := s.tickLocked()
			s.lock.Unlock()
			if done {
				return
			}
		}
	}
}

// tickLocked advances the live ramp by one step. Returns true when the ramp
// is over.
func (s *Scheduler) tickLocked() bool {
	r := s.active
	if r == nil {
		return true
	}

	r.n++
	v := clamp(r.start + r.delta*float64(r.n))
	reached := r.n >= r.steps || math.Abs(r.to-v) < 1e-6
	if reached {
		v = r.to
	}
	s.target.SetVolume(v)

	remaining := r.total - time.Duration(r.n)*s.step
	if remaining < 0 || reached {
		remaining = 0
	}
	s.remaining = remaining

	if !reached {
		s.publish()
		return false
	}

	s.clear()
	gen := s.gen
	s.publish()
	zlog.Debug().Msgf("fade: completed: volume=%.3f", v)
	s.finish(gen, r.restore, r.onDone)
	return true
}

// finish fires the completion callback, then applies the fade-out restore
// unless the callback started a new ramp that now owns the volume.
func (s *Scheduler) finish(gen uint64, restore *float64, onDone func()) {
	if onDone != nil {
		onDone()
	}
	if restore != nil && s.gen == gen && s.active == nil {
		s.target.SetVolume(clamp(*restore))
	}
}

// clear releases the timer slot.
func (s *Scheduler) clear() {
	r := s.active
	if r == nil {
		return
	}
	r.ticker.Stop()
	close(r.stop)
	s.active = nil
	s.remaining = 0
	s.gen++
}

func (s *Scheduler) publish() {
	if s.onProgress != nil {
		s.onProgress(s.remaining, s.active != nil)
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// wallTicker adapts time.Ticker.
type wallTicker struct {
	t *time.Ticker
}

func newWallTicker(d time.Duration) Ticker {
	return &wallTicker{t: time.NewTicker(d)}
}

func (w *wallTicker) C() <-chan time.Time { return w.t.C }
func (w *wallTicker) Stop()               { w.t.Stop() }
