package output

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/cuedeck/internal/domain/apperr"
)

type fakePlatform struct {
	supported bool
	devices   []Device
	listErr   error
	bindErr   map[string]error
	bound     []string
	changes   chan struct{}
}

func (f *fakePlatform) Supported() bool { return f.supported }

func (f *fakePlatform) Outputs(ctx context.Context) ([]Device, error) {
	return f.devices, f.listErr
}

func (f *fakePlatform) Bind(ctx context.Context, id string) error {
	if err := f.bindErr[id]; err != nil {
		return err
	}
	f.bound = append(f.bound, id)
	return nil
}

func (f *fakePlatform) Changes() <-chan struct{} {
	if f.changes == nil {
		return nil
	}
	return f.changes
}

type memPersister struct {
	id string
}

func (m *memPersister) SetOutputID(id string) error {
	m.id = id
	return nil
}

func (m *memPersister) OutputID() string { return m.id }

func TestRouter_ListOutputs(t *testing.T) {
	tests := []struct {
		name     string
		platform *fakePlatform
		expected int
	}{
		{
			name: "lists devices",
			platform: &fakePlatform{devices: []Device{
				{ID: DefaultDeviceID, Name: "System default"},
				{ID: "usb-1", Name: "USB Interface"},
			}},
			expected: 2,
		},
		{
			name:     "platform failure yields empty list",
			platform: &fakePlatform{listErr: errors.New("no api")},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(tt.platform, &memPersister{})
			devices := r.ListOutputs(context.Background())
			assert.Len(t, devices, tt.expected)
			assert.NotNil(t, devices)
		})
	}
}

func TestRouter_SelectOutput(t *testing.T) {
	tests := []struct {
		name      string
		platform  *fakePlatform
		deviceID  string
		wantErr   error
		persisted string
	}{
		{
			name:      "binds and persists",
			platform:  &fakePlatform{supported: true},
			deviceID:  "usb-1",
			persisted: "usb-1",
		},
		{
			name:     "unsupported platform",
			platform: &fakePlatform{supported: false},
			deviceID: "usb-1",
			wantErr:  apperr.ErrUnsupportedFeature,
		},
		{
			name:      "default is always selectable",
			platform:  &fakePlatform{supported: false},
			deviceID:  DefaultDeviceID,
			persisted: DefaultDeviceID,
		},
		{
			name:     "bind failure is a device error",
			platform: &fakePlatform{supported: true, bindErr: map[string]error{"usb-1": errors.New("device removed")}},
			deviceID: "usb-1",
			wantErr:  apperr.ErrDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			persist := &memPersister{}
			r := NewRouter(tt.platform, persist)

			err := r.SelectOutput(context.Background(), tt.deviceID)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Equal(t, "", persist.id, "failed selection is not persisted")
				assert.Equal(t, DefaultDeviceID, r.ActiveID())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.persisted, persist.id)
			assert.Equal(t, tt.deviceID, r.ActiveID())
		})
	}
}

func TestRouter_RestoreFallsBackToDefault(t *testing.T) {
	platform := &fakePlatform{supported: true, bindErr: map[string]error{"gone": errors.New("not found")}}
	persist := &memPersister{id: "gone"}
	r := NewRouter(platform, persist)

	err := r.Restore(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrDevice))
	assert.Equal(t, DefaultDeviceID, r.ActiveID())
	assert.Equal(t, "gone", persist.id, "a failed restore keeps the saved device")

	// Once the device is back, the next restore binds it.
	delete(platform.bindErr, "gone")
	require.NoError(t, r.Restore(context.Background()))
	assert.Equal(t, "gone", r.ActiveID())
	assert.Equal(t, "gone", persist.id)
}

func TestRouter_RunRefreshesOnChange(t *testing.T) {
	platform := &fakePlatform{supported: true, changes: make(chan struct{})}
	r := NewRouter(platform, &memPersister{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	platform.devices = []Device{{ID: DefaultDeviceID}, {ID: "hdmi"}}
	platform.changes <- struct{}{}

	assert.Eventually(t, func() bool {
		return len(r.Devices()) == 2
	}, time.Second, 10*time.Millisecond)
}
