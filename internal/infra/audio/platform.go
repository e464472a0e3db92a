package audio

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/cuedeck/internal/app/output"
	"github.com/osa030/cuedeck/internal/domain/apperr"
)

// Outputs is the output platform of the speaker. The speaker always plays
// through the system default device, so no other endpoint can be bound.
type Outputs struct{}

// NewOutputs creates the output platform.
func NewOutputs() *Outputs {
	return &Outputs{}
}

func (*Outputs) Supported() bool { return false }

func (*Outputs) Outputs(ctx context.Context) ([]output.Device, error) {
	return []output.Device{{ID: output.DefaultDeviceID, Name: "System default"}}, nil
}

func (*Outputs) Bind(ctx context.Context, deviceID string) error {
	if deviceID == output.DefaultDeviceID {
		return nil
	}
	return apperr.Mark(errors.Newf("cannot bind %s: only the system default output is available", deviceID), apperr.ErrUnsupportedFeature)
}

func (*Outputs) Changes() <-chan struct{} { return nil }
