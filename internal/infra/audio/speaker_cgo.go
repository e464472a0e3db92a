//go:build (linux && cgo) || windows || darwin

package audio

import (
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Audible reports whether this build plays through the sound card.
const Audible = true

type speakerSink struct{}

func newSink() sink {
	return speakerSink{}
}

func (speakerSink) Init(rate beep.SampleRate, bufferSize int) error {
	return speaker.Init(rate, bufferSize)
}

func (speakerSink) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerSink) Clear()               { speaker.Clear() }
func (speakerSink) Lock()                { speaker.Lock() }
func (speakerSink) Unlock()              { speaker.Unlock() }
func (speakerSink) Close()               { speaker.Close() }
