// Package midi reads trigger-on messages from host MIDI inputs.
package midi

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/osa030/cuedeck/internal/app/control"
	"github.com/osa030/cuedeck/internal/domain/apperr"
	"github.com/osa030/cuedeck/internal/infra/config"
)

// Source enumerates MIDI inputs and subscribes to their note-on messages.
// Inputs are identified by their port name, which is stable across
// restarts while port numbers are not.
type Source struct {
	timeout time.Duration
	inPorts func() []drivers.In
}

// NewSource creates a MIDI control source.
func NewSource(cfg config.MIDIConfig) *Source {
	return &Source{
		timeout: cfg.PollTimeout(),
		inPorts: func() []drivers.In { return gomidi.GetInPorts() },
	}
}

// Inputs enumerates the MIDI inputs.
func (s *Source) Inputs(ctx context.Context) ([]control.Input, error) {
	ports, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(ports, func(p drivers.In, _ int) control.Input {
		return control.Input{ID: p.String(), Name: p.String()}
	}), nil
}

// scan lists the input ports. Some host MIDI services hang on enumeration,
// so the call is bounded by the configured timeout.
func (s *Source) scan(ctx context.Context) ([]drivers.In, error) {
	ch := make(chan []drivers.In, 1)
	go func() {
		ch <- s.inPorts()
	}()

	select {
	case ports := <-ch:
		return ports, nil
	case <-time.After(s.timeout):
		return nil, apperr.Mark(errors.Newf("midi enumeration timed out after %s", s.timeout), apperr.ErrDevice)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Listen subscribes fn to note-on messages of the input named id.
func (s *Source) Listen(id string, fn func(control.Trigger)) (func(), error) {
	ports, err := s.scan(context.Background())
	if err != nil {
		return nil, err
	}
	in, ok := lo.Find(ports, func(p drivers.In) bool { return p.String() == id })
	if !ok {
		return nil, apperr.Mark(errors.Newf("midi input %q not found", id), apperr.ErrDevice)
	}

	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		if t, ok := decodeTrigger(msg); ok {
			fn(t)
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen to %s", id)
	}
	zlog.Debug().Msgf("midi: listening: input=%s", id)
	return stop, nil
}

// decodeTrigger extracts a trigger from a note-on message. Note-on with
// zero velocity is a note-off and is dropped.
func decodeTrigger(msg gomidi.Message) (control.Trigger, bool) {
	var channel, note, velocity uint8
	if !msg.GetNoteOn(&channel, &note, &velocity) || velocity == 0 {
		return control.Trigger{}, false
	}
	return control.Trigger{Channel: channel, Value: note, Velocity: velocity}, true
}

var _ control.Source = (*Source)(nil)
