// Package output tracks audio output endpoints and binds the playback resource to one.
package output

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/domain/apperr"
)

// DefaultDeviceID is the sentinel id of the system default output.
const DefaultDeviceID = "default"

// Device represents an audio output endpoint.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Platform is the host's output device API.
type Platform interface {
	// Supported reports whether the host can rebind the playback resource.
	Supported() bool
	// Outputs enumerates the available endpoints.
	Outputs(ctx context.Context) ([]Device, error)
	// Bind moves the playback resource to the endpoint.
	Bind(ctx context.Context, deviceID string) error
	// Changes delivers a value whenever the endpoint set changes. May be nil.
	Changes() <-chan struct{}
}

// Persister stores the selected output id.
type Persister interface {
	SetOutputID(id string) error
	OutputID() string
}

// Router owns the output selection.
type Router struct {
	mu       sync.RWMutex
	platform Platform
	persist  Persister
	devices  []Device
	activeID string
}

// NewRouter creates a new output router.
func NewRouter(platform Platform, persist Persister) *Router {
	return &Router{
		platform: platform,
		persist:  persist,
		activeID: DefaultDeviceID,
	}
}

// ListOutputs refreshes and returns the available endpoints. It never fails:
// an unavailable platform API yields an empty list.
func (r *Router) ListOutputs(ctx context.Context) []Device {
	devices, err := r.platform.Outputs(ctx)
	if err != nil {
		zlog.Warn().Msgf("output: failed to enumerate outputs: %v", err)
		devices = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make([]Device, len(devices))
	for i, d := range devices {
		d.IsActive = d.ID == r.activeID
		r.devices[i] = d
	}
	result := make([]Device, len(r.devices))
	copy(result, r.devices)
	return result
}

// Devices returns the last enumerated endpoints without refreshing.
func (r *Router) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Device, len(r.devices))
	copy(result, r.devices)
	return result
}

// ActiveID returns the id of the bound endpoint.
func (r *Router) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// SelectOutput rebinds the playback resource to deviceID and persists the
// choice on success.
func (r *Router) SelectOutput(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		deviceID = DefaultDeviceID
	}
	if err := r.bind(ctx, deviceID); err != nil {
		return err
	}
	if err := r.persist.SetOutputID(deviceID); err != nil {
		return errors.Wrap(err, "failed to persist output selection")
	}
	return nil
}

// bind rebinds the playback resource without touching the persisted id.
func (r *Router) bind(ctx context.Context, deviceID string) error {
	if !r.platform.Supported() && deviceID != DefaultDeviceID {
		return apperr.Mark(errors.Newf("output selection is not available: device=%s", deviceID), apperr.ErrUnsupportedFeature)
	}

	if err := r.platform.Bind(ctx, deviceID); err != nil {
		if errors.Is(err, apperr.ErrUnsupportedFeature) {
			return err
		}
		return apperr.Mark(errors.Wrapf(err, "failed to bind output: device=%s", deviceID), apperr.ErrDevice)
	}

	r.mu.Lock()
	r.activeID = deviceID
	for i := range r.devices {
		r.devices[i].IsActive = r.devices[i].ID == deviceID
	}
	r.mu.Unlock()

	zlog.Info().Msgf("output: bound: device=%s", deviceID)
	return nil
}

// Restore rebinds the persisted output. When the persisted endpoint cannot be
// bound, the router falls back to the default output and returns the bind
// error. The persisted id is kept so the device is tried again next time.
func (r *Router) Restore(ctx context.Context) error {
	id := r.persist.OutputID()
	if id == "" || id == DefaultDeviceID {
		r.mu.Lock()
		r.activeID = DefaultDeviceID
		r.mu.Unlock()
		return nil
	}

	err := r.bind(ctx, id)
	if err == nil {
		return nil
	}

	zlog.Warn().Msgf("output: failed to restore output, falling back to default: device=%s err=%v", id, err)
	if fallbackErr := r.bind(ctx, DefaultDeviceID); fallbackErr != nil {
		zlog.Error().Msgf("output: failed to bind default output: %v", fallbackErr)
	}
	return err
}

// Run refreshes the endpoint list on every platform change notification
// until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	changes := r.platform.Changes()
	if changes == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			devices := r.ListOutputs(ctx)
			zlog.Debug().Msgf("output: device change: count=%d", len(devices))
		}
	}
}
