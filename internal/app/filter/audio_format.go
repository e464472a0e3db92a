package filter

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"
	zlog "github.com/rs/zerolog/log"
)

// AudioFormatConfig represents the configuration for AudioFormatFilter.
type AudioFormatConfig struct {
	Extensions []string `yaml:"extensions" mapstructure:"extensions" default:"[\".mp3\",\".wav\",\".flac\",\".ogg\",\".oga\"]" validate:"min=1,dive,startswith=."`
	Sniff      *bool    `yaml:"sniff" mapstructure:"sniff" default:"true"`
}

// AudioFormatFilter rejects candidates that are not playable audio files.
// The extension must be on the allow-list and, when sniffing is enabled,
// the content must be detected as audio.
type AudioFormatFilter struct {
	config *AudioFormatConfig
}

// NewAudioFormatFilter creates a new audio format filter with default settings.
func NewAudioFormatFilter() *AudioFormatFilter {
	f := &AudioFormatFilter{}
	if err := f.ValidateConfig(nil); err != nil {
		zlog.Error().Msgf("audio format filter: failed to apply defaults: %v", err)
	}
	return f
}

func (f *AudioFormatFilter) Name() string {
	return "audio_format_filter"
}

func (f *AudioFormatFilter) Description() string {
	return "Rejects files that are not supported audio (extension allow-list and content sniffing)"
}

func (f *AudioFormatFilter) ReturnCodes() []string {
	return []string{"unsupported_format", "unreadable_file"}
}

func (f *AudioFormatFilter) ValidateConfig(settings map[string]any) error {
	var config AudioFormatConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	for i, ext := range config.Extensions {
		config.Extensions[i] = strings.ToLower(ext)
	}
	f.config = &config
	zlog.Debug().Msgf("audio format filter config: extensions=%v sniff=%v", config.Extensions, *config.Sniff)
	return nil
}

func (f *AudioFormatFilter) Check(ctx context.Context, c Candidate) Result {
	if f.config == nil {
		return Accept()
	}

	ext := strings.ToLower(filepath.Ext(c.File.Path))
	if !f.allowed(ext) {
		return Reject("unsupported_format")
	}

	if !*f.config.Sniff {
		return Accept()
	}

	mime, err := mimetype.DetectFile(c.File.Path)
	if err != nil {
		zlog.Debug().Msgf("audio format filter: failed to sniff: path=%s err=%v", c.File.Path, err)
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return Reject("unreadable_file")
		}
		return Reject("unsupported_format")
	}

	if !isAudio(mime) {
		zlog.Debug().Msgf("audio format filter: not audio: path=%s mime=%s", c.File.Path, mime.String())
		return Reject("unsupported_format")
	}
	return Accept()
}

func (f *AudioFormatFilter) allowed(ext string) bool {
	for _, e := range f.config.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// isAudio walks the detected type and its parents looking for an audio type.
func isAudio(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") || m.Is("application/ogg") {
			return true
		}
	}
	return false
}

func init() {
	Register("audio_format_filter", func() Filter {
		return NewAudioFormatFilter()
	})
}
