package midi

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/osa030/cuedeck/internal/app/control"
	"github.com/osa030/cuedeck/internal/domain/apperr"
)

func TestDecodeTrigger(t *testing.T) {
	tests := []struct {
		name string
		msg  gomidi.Message
		want control.Trigger
		ok   bool
	}{
		{name: "note on", msg: gomidi.NoteOn(2, 62, 100), want: control.Trigger{Channel: 2, Value: 62, Velocity: 100}, ok: true},
		{name: "zero velocity", msg: gomidi.NoteOn(0, 62, 0)},
		{name: "note off", msg: gomidi.NoteOff(0, 62)},
		{name: "control change", msg: gomidi.ControlChange(0, 7, 127)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeTrigger(tt.msg)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSource_EnumerationTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := &Source{
		timeout: 20 * time.Millisecond,
		inPorts: func() []drivers.In {
			<-release
			return nil
		},
	}

	_, err := s.Inputs(context.Background())

	assert.True(t, errors.Is(err, apperr.ErrDevice))
}

func TestSource_NoPorts(t *testing.T) {
	s := &Source{timeout: time.Second, inPorts: func() []drivers.In { return nil }}

	inputs, err := s.Inputs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, inputs)

	_, err = s.Listen("Launchpad", func(control.Trigger) {})
	assert.True(t, errors.Is(err, apperr.ErrDevice))
}
