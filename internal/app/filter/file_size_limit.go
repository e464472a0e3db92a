package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

// FileSizeLimitConfig represents the configuration for FileSizeLimitFilter.
type FileSizeLimitConfig struct {
	MaxMegabytes float64 `yaml:"max_megabytes" mapstructure:"max_megabytes" default:"512" validate:"gt=0"`
}

// FileSizeLimitFilter rejects files larger than the configured limit.
type FileSizeLimitFilter struct {
	config *FileSizeLimitConfig
}

// NewFileSizeLimitFilter creates a new file size limit filter.
func NewFileSizeLimitFilter() *FileSizeLimitFilter {
	return &FileSizeLimitFilter{}
}

func (f *FileSizeLimitFilter) Name() string {
	return "file_size_limit_filter"
}

func (f *FileSizeLimitFilter) Description() string {
	return "Rejects files larger than max_megabytes"
}

func (f *FileSizeLimitFilter) ReturnCodes() []string {
	return []string{"file_too_large"}
}

func (f *FileSizeLimitFilter) ValidateConfig(settings map[string]any) error {
	var config FileSizeLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = &config
	zlog.Info().Msgf("file size limit filter config: %+v", config)
	return nil
}

func (f *FileSizeLimitFilter) Check(ctx context.Context, c Candidate) Result {
	// If config is not set, accept all files
	if f.config == nil {
		return Accept()
	}

	limit := int64(f.config.MaxMegabytes * 1024 * 1024)
	if c.File.Size > limit {
		return Reject("file_too_large")
	}
	return Accept()
}

func init() {
	Register("file_size_limit_filter", func() Filter {
		return &FileSizeLimitFilter{}
	})
}
