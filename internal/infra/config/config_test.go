package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Server:   ServerConfig{Addr: "127.0.0.1:7480"},
		Settings: SettingsConfig{Path: "settings.json"},
		Audio:    AudioConfig{SampleRate: 44100, BufferMs: 100},
		Playback: PlaybackConfig{FadeStepMs: 50, PrevRestartThresholdSec: 3, SkipSeconds: 10},
		MIDI:     MIDIConfig{PollTimeoutMs: 3000},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing server addr",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
			errMsg:  "Addr",
		},
		{
			name:    "addr without port",
			mutate:  func(c *Config) { c.Server.Addr = "localhost" },
			wantErr: true,
			errMsg:  "Addr",
		},
		{
			name:    "unsupported sample rate",
			mutate:  func(c *Config) { c.Audio.SampleRate = 12345 },
			wantErr: true,
			errMsg:  "SampleRate",
		},
		{
			name:    "fade step too small",
			mutate:  func(c *Config) { c.Playback.FadeStepMs = 1 },
			wantErr: true,
			errMsg:  "FadeStepMs",
		},
		{
			name:    "zero skip",
			mutate:  func(c *Config) { c.Playback.SkipSeconds = 0 },
			wantErr: true,
			errMsg:  "SkipSeconds",
		},
		{
			name:    "missing settings path",
			mutate:  func(c *Config) { c.Settings.Path = "" },
			wantErr: true,
			errMsg:  "Path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("playback:\n  auto_advance_on_error: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7480", cfg.Server.Addr)
	assert.Equal(t, "cuedeck-settings.json", cfg.Settings.Path)
	assert.True(t, cfg.WatchSettings())
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 50*time.Millisecond, cfg.Playback.FadeStep())
	assert.Equal(t, 3*time.Second, cfg.Playback.PrevRestartThreshold())
	assert.Equal(t, 10*time.Second, cfg.Playback.SkipStep())
	assert.True(t, cfg.Playback.AutoAdvanceOnError)
	assert.True(t, cfg.Playback.SkipFadeOnErrorEnabled())
	assert.Equal(t, 3*time.Second, cfg.MIDI.PollTimeout())
}

func TestLoad_ExplicitFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "settings:\n  watch: false\nplayback:\n  skip_fade_on_error: false\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.WatchSettings())
	assert.False(t, cfg.Playback.SkipFadeOnErrorEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CUEDECK_RPC_TOKEN", "secret")
	t.Setenv("CUEDECK_SETTINGS_PATH", "/tmp/other.json")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  token: from-file\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Server.Token)
	assert.Equal(t, "/tmp/other.json", cfg.Settings.Path)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("audio:\n  buffer_ms: 5\n"), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BufferMs")
}

func TestConfig_Filters(t *testing.T) {
	cfg := validConfig()
	cfg.Filters = map[string]FilterConfig{
		"file_size_limit_filter": {Enabled: true, Settings: map[string]any{"max_megabytes": 10}},
		"other":                  {Enabled: false},
	}

	assert.True(t, cfg.IsFilterEnabled("file_size_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("other"))
	assert.False(t, cfg.IsFilterEnabled("missing"))
	assert.Equal(t, 10, cfg.FilterSettings("file_size_limit_filter")["max_megabytes"])
	assert.Nil(t, cfg.FilterSettings("missing"))
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadOptional(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7480", cfg.Server.Addr)
	assert.True(t, cfg.WatchSettings())

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: ["), 0o644))
	_, err = LoadOptional(bad)
	assert.Error(t, err)
}
