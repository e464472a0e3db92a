// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Settings SettingsConfig          `yaml:"settings"`
	Audio    AudioConfig             `yaml:"audio"`
	Playback PlaybackConfig          `yaml:"playback"`
	MIDI     MIDIConfig              `yaml:"midi"`
	Filters  map[string]FilterConfig `yaml:"filters"`
}

// ServerConfig represents the remote control server configuration.
type ServerConfig struct {
	Addr  string `yaml:"addr" default:"127.0.0.1:7480" validate:"required,hostname_port"`
	Token string `yaml:"token"`
}

// SettingsConfig locates the persisted user settings.
type SettingsConfig struct {
	Path  string `yaml:"path" default:"cuedeck-settings.json" validate:"required"`
	Watch *bool  `yaml:"watch" default:"true"`
}

// AudioConfig represents the host audio output configuration.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate" default:"44100" validate:"oneof=22050 44100 48000 96000"`
	BufferMs   int `yaml:"buffer_ms" default:"100" validate:"gte=10,lte=1000"`
}

// PlaybackConfig represents transport policy configuration.
type PlaybackConfig struct {
	FadeStepMs              int   `yaml:"fade_step_ms" default:"50" validate:"gte=10,lte=1000"`
	PrevRestartThresholdSec int   `yaml:"prev_restart_threshold_sec" default:"3" validate:"gte=0,lte=60"`
	SkipSeconds             int   `yaml:"skip_seconds" default:"10" validate:"gte=1,lte=600"`
	AutoAdvanceOnError      bool  `yaml:"auto_advance_on_error"`
	SkipFadeOnError         *bool `yaml:"skip_fade_on_error" default:"true"`
}

// MIDIConfig represents control input configuration.
type MIDIConfig struct {
	PollTimeoutMs int `yaml:"poll_timeout_ms" default:"3000" validate:"gte=100,lte=30000"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	var cfg Config
	cfg.overrideFromEnv()
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	return &cfg, nil
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return parse(data)
}

// LoadOptional is Load, except that a missing file yields the defaults.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		zlog.Info().Msgf("config: %s not found, using defaults", path)
		return parse(nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("CUEDECK_RPC_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("CUEDECK_SETTINGS_PATH"); v != "" {
		c.Settings.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}

// WatchSettings reports whether the settings file is watched for edits.
func (c *Config) WatchSettings() bool {
	return c.Settings.Watch == nil || *c.Settings.Watch
}

// SkipFadeOnErrorEnabled reports whether error recovery skips the fade-out.
func (p PlaybackConfig) SkipFadeOnErrorEnabled() bool {
	return p.SkipFadeOnError == nil || *p.SkipFadeOnError
}

// FadeStep returns the fade tick interval.
func (p PlaybackConfig) FadeStep() time.Duration {
	return time.Duration(p.FadeStepMs) * time.Millisecond
}

// PrevRestartThreshold returns how far in playPrev rewinds instead of moving back.
func (p PlaybackConfig) PrevRestartThreshold() time.Duration {
	return time.Duration(p.PrevRestartThresholdSec) * time.Second
}

// SkipStep returns the skip forward/backward step.
func (p PlaybackConfig) SkipStep() time.Duration {
	return time.Duration(p.SkipSeconds) * time.Second
}

// PollTimeout returns the bound on MIDI port enumeration.
func (m MIDIConfig) PollTimeout() time.Duration {
	return time.Duration(m.PollTimeoutMs) * time.Millisecond
}

// BufferSize returns the audio buffer length.
func (a AudioConfig) BufferSize() time.Duration {
	return time.Duration(a.BufferMs) * time.Millisecond
}
