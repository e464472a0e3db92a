// Package control maps hardware triggers from an external control input to
// transport commands, with a learn mode for binding new triggers.
package control

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/cuedeck/internal/app/settings"
	"github.com/osa030/cuedeck/internal/domain/apperr"
)

// Input is a control input endpoint.
type Input struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Trigger is a trigger-on event from the active input. Value is the
// physical trigger (the MIDI note number).
type Trigger struct {
	Channel  uint8
	Value    uint8
	Velocity uint8
}

// Source is the host's control-hardware API.
type Source interface {
	// Inputs enumerates the available inputs. A policy block is reported as
	// an error marked apperr.ErrPermissionDenied.
	Inputs(ctx context.Context) ([]Input, error)
	// Listen subscribes fn to the trigger-on events of the input.
	Listen(id string, fn func(Trigger)) (stop func(), err error)
}

// SettingsSource reads and persists the mapping and the selected input.
type SettingsSource interface {
	Current() settings.Settings
	Update(fn func(*settings.Settings)) error
}

// DispatchFunc invokes a transport command by name.
type DispatchFunc func(cmd string) error

// Option configures a Router.
type Option func(*Router)

// WithLearned registers the learn confirmation callback.
func WithLearned(fn func(cmd string, value int)) Option {
	return func(r *Router) {
		r.onLearned = fn
	}
}

// WithErrorHandler receives errors raised while handling triggers, which
// arrive outside any caller's command.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Router) {
		r.onError = fn
	}
}

// Router owns the active input, the learn capture and the trigger dispatch.
type Router struct {
	mu       sync.Mutex
	source   Source
	settings SettingsSource
	dispatch DispatchFunc

	activeID string
	stop     func()
	pending  string

	onLearned func(cmd string, value int)
	onError   func(error)
}

// NewRouter creates a new control router.
func NewRouter(source Source, st SettingsSource, dispatch DispatchFunc, opts ...Option) *Router {
	r := &Router{
		source:   source,
		settings: st,
		dispatch: dispatch,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListInputs enumerates the available inputs. Permission failures keep
// their apperr.ErrPermissionDenied mark; anything else is a device error.
func (r *Router) ListInputs(ctx context.Context) ([]Input, error) {
	inputs, err := r.source.Inputs(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrPermissionDenied) {
			return nil, err
		}
		return nil, apperr.Mark(errors.Wrap(err, "failed to enumerate control inputs"), apperr.ErrDevice)
	}

	active := r.ActiveInput()
	return lo.Map(inputs, func(in Input, _ int) Input {
		in.Active = in.ID == active
		return in
	}), nil
}

// ActiveInput returns the id of the subscribed input, or "".
func (r *Router) ActiveInput() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// SelectInput subscribes to the input with id, unsubscribing the previous
// one, and persists the choice. An empty id detaches.
func (r *Router) SelectInput(ctx context.Context, id string) error {
	if err := r.attach(id); err != nil {
		return err
	}
	if err := r.settings.Update(func(s *settings.Settings) { s.MIDI.InputID = id }); err != nil {
		return errors.Wrap(err, "failed to persist control input")
	}
	return nil
}

// Restore subscribes to the persisted input, or detaches when none is
// persisted. The persisted id is kept when the input is missing, so it
// reconnects on the next start.
func (r *Router) Restore(ctx context.Context) error {
	id := r.settings.Current().MIDI.InputID
	if id == "" {
		r.detach()
		return nil
	}
	if err := r.attach(id); err != nil {
		zlog.Warn().Msgf("control: failed to restore input: input=%s err=%v", id, err)
		return err
	}
	return nil
}

// attach swaps the subscription. Stop functions run outside mu since a
// driver may wait for an in-flight callback, which takes mu itself.
func (r *Router) attach(id string) error {
	r.detach()
	if id == "" {
		return nil
	}

	stop, err := r.source.Listen(id, r.onTrigger)
	if err != nil {
		if errors.Is(err, apperr.ErrPermissionDenied) {
			return err
		}
		return apperr.Mark(errors.Wrapf(err, "failed to open control input %s", id), apperr.ErrDevice)
	}

	r.mu.Lock()
	r.stop = stop
	r.activeID = id
	r.mu.Unlock()

	zlog.Info().Msgf("control: attached: input=%s", id)
	return nil
}

func (r *Router) detach() {
	r.mu.Lock()
	stop, id := r.stop, r.activeID
	r.stop = nil
	r.activeID = ""
	r.mu.Unlock()

	if stop != nil {
		stop()
		zlog.Info().Msgf("control: detached: input=%s", id)
	}
}

// StartLearn makes cmd capture the next trigger. A previously pending
// capture is replaced.
func (r *Router) StartLearn(cmd string) error {
	if !slices.Contains(settings.Commands, cmd) {
		return apperr.Mark(errors.Newf("command %q cannot be mapped", cmd), apperr.ErrOperationNotAllowed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != "" && r.pending != cmd {
		zlog.Debug().Msgf("control: learn replaced: previous=%s", r.pending)
	}
	r.pending = cmd
	zlog.Info().Msgf("control: learning: command=%s", cmd)
	return nil
}

// CancelLearn clears the pending capture.
func (r *Router) CancelLearn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = ""
}

// Pending returns the command waiting for a trigger.
func (r *Router) Pending() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending, r.pending != ""
}

// Unmap clears the trigger mapped to cmd.
func (r *Router) Unmap(cmd string) error {
	if !slices.Contains(settings.Commands, cmd) {
		return apperr.Mark(errors.Newf("command %q cannot be mapped", cmd), apperr.ErrOperationNotAllowed)
	}
	return r.settings.Update(func(s *settings.Settings) {
		s.MIDI.Mappings[cmd] = nil
	})
}

// Lookup returns the command mapped to value.
func (r *Router) Lookup(value int) (string, bool) {
	m := r.settings.Current().MIDI
	return lo.Find(settings.Commands, func(cmd string) bool {
		v, ok := m.Mapping(cmd)
		return ok && v == value
	})
}

// HandleTrigger completes a pending learn with t, or dispatches the command
// mapped to t. Triggers with zero velocity are note-offs and are ignored.
func (r *Router) HandleTrigger(t Trigger) error {
	if t.Velocity == 0 {
		return nil
	}
	value := int(t.Value)

	r.mu.Lock()
	cmd := r.pending
	r.pending = ""
	r.mu.Unlock()

	if cmd != "" {
		return r.learn(cmd, value)
	}

	cmd, ok := r.Lookup(value)
	if !ok {
		zlog.Debug().Msgf("control: unmapped trigger: value=%d", value)
		return nil
	}
	zlog.Debug().Msgf("control: trigger: value=%d command=%s", value, cmd)
	return r.dispatch(cmd)
}

// learn binds value to cmd. A value already bound to another command moves.
func (r *Router) learn(cmd string, value int) error {
	err := r.settings.Update(func(s *settings.Settings) {
		for other, v := range s.MIDI.Mappings {
			if other != cmd && v != nil && *v == value {
				s.MIDI.Mappings[other] = nil
			}
		}
		s.MIDI.Mappings[cmd] = lo.ToPtr(value)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to persist mapping for %s", cmd)
	}

	zlog.Info().Msgf("control: learned: command=%s value=%d", cmd, value)
	if r.onLearned != nil {
		r.onLearned(cmd, value)
	}
	return nil
}

func (r *Router) onTrigger(t Trigger) {
	if err := r.HandleTrigger(t); err != nil {
		zlog.Warn().Msgf("control: trigger failed: value=%d err=%v", t.Value, err)
		if r.onError != nil {
			r.onError(err)
		}
	}
}

// Close unsubscribes from the active input.
func (r *Router) Close() {
	r.detach()
}
