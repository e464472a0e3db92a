//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// Audible reports whether this build plays through the sound card. Without
// cgo there is no native output; streams are consumed at real time so
// positions advance and tracks still end.
const Audible = false

type clockSink struct {
	mu     sync.Mutex
	mixer  beep.Mixer
	rate   beep.SampleRate
	buf    [][2]float64
	stop   chan struct{}
	closed sync.Once
}

func newSink() sink {
	return &clockSink{stop: make(chan struct{})}
}

func (s *clockSink) Init(rate beep.SampleRate, bufferSize int) error {
	s.rate = rate
	s.buf = make([][2]float64, bufferSize)
	go s.run()
	return nil
}

func (s *clockSink) run() {
	ticker := time.NewTicker(s.rate.D(len(s.buf)))
	defer ticker.Stop()

	last := toWallTime(time.Now())
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := toWallTime(time.Now())
			n := s.rate.N(now.Sub(last))
			last = now
			for n > 0 {
				k := min(n, len(s.buf))
				s.mu.Lock()
				s.mixer.Stream(s.buf[:k])
				s.mu.Unlock()
				n -= k
			}
		}
	}
}

// toWallTime strips the monotonic reading so elapsed time follows the wall
// clock.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}

func (s *clockSink) Play(st beep.Streamer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.Add(st)
}

func (s *clockSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.Clear()
}

func (s *clockSink) Lock()   { s.mu.Lock() }
func (s *clockSink) Unlock() { s.mu.Unlock() }

func (s *clockSink) Close() {
	s.closed.Do(func() { close(s.stop) })
}
