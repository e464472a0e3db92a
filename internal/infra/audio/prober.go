package audio

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/cuedeck/internal/domain/apperr"
	"github.com/osa030/cuedeck/internal/domain/track"
)

// Prober reads track durations by opening the decoder without playing.
type Prober struct{}

// NewProber creates a duration prober.
func NewProber() *Prober {
	return &Prober{}
}

// Probe returns the length of t.
func (Prober) Probe(ctx context.Context, t track.Track) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stream, format, code, err := openStream(t.Path)
	if err != nil {
		return 0, apperr.Media(code, t.Name, err)
	}
	defer stream.Close()

	n := stream.Len()
	if n <= 0 {
		return 0, errors.Newf("%s has no known length", t.Name)
	}
	return format.SampleRate.D(n), nil
}
