package audio

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/app/playback"
	"github.com/osa030/cuedeck/internal/domain/apperr"
	"github.com/osa030/cuedeck/internal/domain/track"
	"github.com/osa030/cuedeck/internal/infra/config"
)

// sink is the output the player streams into.
type sink interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Clear()
	Lock()
	Unlock()
	Close()
}

// Player is the single playback resource. One track is loaded at a time;
// it is decoded from disk, resampled to the output rate and streamed through
// a pause control and a gain stage.
type Player struct {
	mu     sync.Mutex
	out    sink
	rate   beep.SampleRate
	events chan playback.ResourceEvent

	stream  beep.StreamSeekCloser
	format  beep.Format
	ctrl    *beep.Ctrl
	volume  *effects.Volume
	drained *atomic.Bool // set once the output has consumed the queued pipeline
	trackID string
	gen     uint64
	gain    float64
}

// NewPlayer initialises the system output and returns an empty player.
func NewPlayer(cfg config.AudioConfig) (*Player, error) {
	return newPlayer(newSink(), beep.SampleRate(cfg.SampleRate), cfg.BufferSize())
}

func newPlayer(out sink, rate beep.SampleRate, buffer time.Duration) (*Player, error) {
	if err := out.Init(rate, rate.N(buffer)); err != nil {
		return nil, apperr.Mark(errors.Wrap(err, "failed to open audio output"), apperr.ErrDevice)
	}
	zlog.Info().Msgf("audio: output ready: rate=%d buffer=%s audible=%t", rate, buffer, Audible)
	return &Player{
		out:    out,
		rate:   rate,
		events: make(chan playback.ResourceEvent, 8),
		gain:   1,
	}, nil
}

// Load replaces the loaded stream with t, paused at position 0.
func (p *Player) Load(t track.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unloadLocked()

	stream, format, code, err := openStream(t.Path)
	if err != nil {
		return apperr.Media(code, t.Name, err)
	}

	p.stream, p.format = stream, format
	p.trackID = t.ID
	p.queueLocked(true)

	zlog.Debug().Msgf("audio: loaded: track=%s rate=%d channels=%d", t.Name, format.SampleRate, format.NumChannels)
	return nil
}

// queueLocked builds the pipeline over the loaded stream and hands it to the
// output. The output drops a pipeline once it drains, so replaying a finished
// stream needs a fresh one.
func (p *Player) queueLocked(paused bool) {
	var src beep.Streamer = p.stream
	if p.format.SampleRate != p.rate {
		src = beep.Resample(4, p.format.SampleRate, p.rate, p.stream)
	}
	ctrl := &beep.Ctrl{Streamer: src, Paused: paused}
	volume := &effects.Volume{Streamer: ctrl, Base: 2}
	applyGain(volume, p.gain)

	drained := &atomic.Bool{}
	p.ctrl, p.volume, p.drained = ctrl, volume, drained
	gen := p.gen

	// The callback runs on the output goroutine with the sink locked.
	p.out.Play(beep.Seq(volume, beep.Callback(func() {
		drained.Store(true)
		go p.finished(gen)
	})))
}

// requeueLocked replaces a drained pipeline. A pending end report of the
// drained one is dropped.
func (p *Player) requeueLocked(paused bool) {
	if p.drained == nil || !p.drained.Load() {
		return
	}
	p.gen++
	p.queueLocked(paused)
	zlog.Debug().Msgf("audio: requeued: track_id=%s paused=%t", p.trackID, paused)
}

// Unload releases the loaded stream.
func (p *Player) Unload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unloadLocked()
}

func (p *Player) unloadLocked() {
	p.gen++
	if p.stream == nil {
		return
	}
	p.out.Clear()
	if err := p.stream.Close(); err != nil {
		zlog.Debug().Msgf("audio: failed to close stream: %v", err)
	}
	p.stream, p.ctrl, p.volume, p.drained = nil, nil, nil, nil
	p.trackID = ""
}

// finished reports the end of the stream loaded at generation gen.
func (p *Player) finished(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen || p.stream == nil {
		return
	}
	ev := playback.ResourceEvent{Kind: playback.ResourceEnded, TrackID: p.trackID}
	if err := p.stream.Err(); err != nil {
		ev = playback.ResourceEvent{Kind: playback.ResourceError, TrackID: p.trackID, Code: apperr.MediaDecode, Err: err}
	}
	p.emit(ev)
}

func (p *Player) emit(ev playback.ResourceEvent) {
	select {
	case p.events <- ev:
	default:
		zlog.Warn().Msgf("audio: event dropped: kind=%d track_id=%s", ev.Kind, ev.TrackID)
	}
}

// Play resumes the loaded stream. The output accepts immediately, so the
// result is already resolved.
func (p *Player) Play() <-chan error {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make(chan error, 1)
	if p.ctrl == nil {
		result <- apperr.Mark(errors.New("no track loaded"), apperr.ErrPlayback)
		return result
	}
	p.requeueLocked(false)
	p.out.Lock()
	p.ctrl.Paused = false
	p.out.Unlock()
	result <- nil
	return result
}

// Pause halts the stream, keeping the position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil {
		return
	}
	p.out.Lock()
	p.ctrl.Paused = true
	p.out.Unlock()
}

// Position returns the playback position.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return 0
	}
	p.out.Lock()
	pos := p.stream.Position()
	p.out.Unlock()
	return p.format.SampleRate.D(pos)
}

// Seek moves the playback position, clamped to the stream.
func (p *Player) Seek(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return nil
	}
	n := p.format.SampleRate.N(d)
	if last := p.stream.Len() - 1; n > last {
		n = last
	}
	if n < 0 {
		n = 0
	}

	p.out.Lock()
	err := p.stream.Seek(n)
	paused := p.ctrl.Paused
	p.out.Unlock()
	if err != nil {
		return errors.Wrapf(err, "failed to seek to %s", d)
	}
	p.requeueLocked(paused)
	return nil
}

// Duration returns the loaded stream's length, or 0 when unknown.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return 0
	}
	return p.format.SampleRate.D(p.stream.Len())
}

// Volume returns the linear gain.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gain
}

// SetVolume sets the linear gain (0..1).
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gain = math.Max(0, math.Min(1, v))
	if p.volume == nil {
		return
	}
	p.out.Lock()
	applyGain(p.volume, p.gain)
	p.out.Unlock()
}

// applyGain maps a linear gain onto the base-2 exponent effects.Volume uses.
func applyGain(v *effects.Volume, gain float64) {
	if gain <= 0 {
		v.Silent = true
		v.Volume = 0
		return
	}
	v.Silent = false
	v.Volume = math.Log2(gain)
}

// Events delivers end and media error notifications.
func (p *Player) Events() <-chan playback.ResourceEvent {
	return p.events
}

// Close unloads the stream and closes the output.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unloadLocked()
	p.out.Close()
	return nil
}

var _ playback.Resource = (*Player)(nil)
