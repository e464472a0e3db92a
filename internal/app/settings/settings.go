// Package settings holds the user-configurable knobs and persists them as a JSON blob.
package settings

import (
	"time"
)

// Mappable commands. The mapping table always carries every key.
const (
	CmdTogglePlayPause = "togglePlayPause"
	CmdPlayNext        = "playNext"
	CmdPlayPrev        = "playPrev"
	CmdStopPlayback    = "stopPlayback"
	CmdSkipForward     = "skipForward"
	CmdSkipBackward    = "skipBackward"
)

// Commands lists the mappable commands in display order.
var Commands = []string{
	CmdTogglePlayPause,
	CmdPlayNext,
	CmdPlayPrev,
	CmdStopPlayback,
	CmdSkipForward,
	CmdSkipBackward,
}

// Settings is the persisted user configuration.
type Settings struct {
	MIDI    MIDI    `json:"midi"`
	OSC     OSC     `json:"osc"`
	Audio   Audio   `json:"audio"`
	Volume  float64 `json:"volume" validate:"gte=0,lte=1"`
	IsMuted bool    `json:"isMuted"`
}

// MIDI holds the external control input and its command mapping.
type MIDI struct {
	InputID  string          `json:"inputId"`
	Mappings map[string]*int `json:"mappings" validate:"dive,omitempty,gte=0,lte=127"`
}

// OSC holds the OSC bridge endpoint. The bridge itself is not implemented.
type OSC struct {
	IP   string `json:"ip" validate:"omitempty,ip"`
	Port int    `json:"port" validate:"gte=0,lte=65535"`
}

// Audio holds output and fade settings.
type Audio struct {
	OutputID  string    `json:"outputId"`
	FadeIn    Fade      `json:"fadeIn"`
	FadeOut   Fade      `json:"fadeOut"`
	MaxVolume MaxVolume `json:"maxVolume"`
}

// Fade configures one fade direction. Duration is in seconds.
type Fade struct {
	Enabled  bool    `json:"enabled"`
	Duration float64 `json:"duration" validate:"gte=0,lte=60"`
}

// MaxVolume caps the effective output volume at Level percent.
type MaxVolume struct {
	Enabled bool `json:"enabled"`
	Level   int  `json:"level" validate:"gte=0,lte=100"`
}

// Defaults returns the hardcoded default settings.
func Defaults() Settings {
	mappings := make(map[string]*int, len(Commands))
	for _, c := range Commands {
		mappings[c] = nil
	}
	return Settings{
		MIDI: MIDI{
			InputID:  "",
			Mappings: mappings,
		},
		OSC: OSC{
			IP:   "127.0.0.1",
			Port: 8000,
		},
		Audio: Audio{
			OutputID:  "default",
			FadeIn:    Fade{Enabled: false, Duration: 2},
			FadeOut:   Fade{Enabled: false, Duration: 2},
			MaxVolume: MaxVolume{Enabled: false, Level: 100},
		},
		Volume:  1,
		IsMuted: false,
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	c.MIDI.Mappings = make(map[string]*int, len(s.MIDI.Mappings))
	for k, v := range s.MIDI.Mappings {
		if v == nil {
			c.MIDI.Mappings[k] = nil
			continue
		}
		n := *v
		c.MIDI.Mappings[k] = &n
	}
	return c
}

// Effective returns the fade duration, or zero when the fade is disabled.
func (f Fade) Effective() time.Duration {
	if !f.Enabled || f.Duration <= 0 {
		return 0
	}
	return time.Duration(f.Duration * float64(time.Second))
}

// Ceiling returns the volume multiplier applied on top of the user volume.
func (m MaxVolume) Ceiling() float64 {
	if !m.Enabled {
		return 1
	}
	return float64(m.Level) / 100
}

// Mapping returns the trigger mapped to cmd.
func (m MIDI) Mapping(cmd string) (int, bool) {
	v, ok := m.Mappings[cmd]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}
