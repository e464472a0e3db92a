// Package session provides the session manager: the composition root that
// owns every component and the single command surface shared by the
// keyboard, the control input and the remote API.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/app/control"
	"github.com/osa030/cuedeck/internal/app/filter"
	"github.com/osa030/cuedeck/internal/app/notification"
	"github.com/osa030/cuedeck/internal/app/output"
	"github.com/osa030/cuedeck/internal/app/playback"
	"github.com/osa030/cuedeck/internal/app/queue"
	"github.com/osa030/cuedeck/internal/app/settings"
	"github.com/osa030/cuedeck/internal/domain/apperr"
	"github.com/osa030/cuedeck/internal/domain/playlist"
	"github.com/osa030/cuedeck/internal/domain/track"
	"github.com/osa030/cuedeck/internal/infra/config"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrSessionClosed  = errors.New("session is closed")
)

// Deps are the host-side collaborators of a session.
type Deps struct {
	Settings *settings.Store
	Resource playback.Resource
	Prober   playback.Prober // Optional
	Outputs  output.Platform
	Inputs   control.Source
}

// Status is a snapshot of the whole session.
type Status struct {
	playback.Status
	QueueDurationSec int64           // Sum of the known track durations
	Outputs          []output.Device // Last enumerated endpoints
	OutputID         string
	InputID          string
	Learning         string
}

// Manager manages the session.
type Manager struct {
	// Configuration
	config *config.Config

	// Components
	settings     *settings.Store
	queue        *queue.Store
	playback     *playback.Controller
	output       *output.Router
	control      *control.Router
	notification *notification.Manager

	// Lifecycle
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a new session manager.
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	if deps.Settings == nil || deps.Resource == nil || deps.Outputs == nil || deps.Inputs == nil {
		return nil, errors.New("session: settings, resource, outputs and inputs are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:       cfg,
		settings:     deps.Settings,
		notification: notification.NewManager(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	m.queue = queue.New(queue.WithFilters(m.setupFilters()...))

	var opts []playback.Option
	if deps.Prober != nil {
		opts = append(opts, playback.WithProber(deps.Prober))
	}
	m.playback = playback.NewController(deps.Resource, m.queue, m.settings, playback.Config{
		AutoAdvanceOnError:   cfg.Playback.AutoAdvanceOnError,
		SkipFadeOnError:      cfg.Playback.SkipFadeOnErrorEnabled(),
		PrevRestartThreshold: cfg.Playback.PrevRestartThreshold(),
		SkipStep:             cfg.Playback.SkipStep(),
		FadeStep:             cfg.Playback.FadeStep(),
	}, opts...)

	m.output = output.NewRouter(deps.Outputs, m.settings)
	m.control = control.NewRouter(deps.Inputs, m.settings, m.dispatchControl,
		control.WithLearned(m.onLearned),
		control.WithErrorHandler(m.publishError),
	)

	m.settings.OnChange(m.onSettingsChanged)
	return m, nil
}

// setupFilters builds the admission filters. The audio format filter always
// runs; the others run when enabled in the configuration.
func (m *Manager) setupFilters() []filter.Filter {
	cfg := m.config

	audio := filter.NewAudioFormatFilter()
	if s := cfg.FilterSettings("audio_format_filter"); s != nil {
		if err := audio.ValidateConfig(s); err != nil {
			zlog.Error().Msgf("failed to validate audio format filter config, using defaults: %v", err)
			audio = filter.NewAudioFormatFilter()
		}
	}
	filters := []filter.Filter{audio}

	// FileSizeLimitFilter
	if cfg.IsFilterEnabled("file_size_limit_filter") {
		f := filter.NewFileSizeLimitFilter()
		if err := f.ValidateConfig(cfg.FilterSettings("file_size_limit_filter")); err != nil {
			zlog.Error().Msgf("failed to validate file size limit filter config: %v", err)
		} else {
			filters = append(filters, f)
		}
	}
	return filters
}

// Start restores the persisted output and control input and starts the
// background loops. Restore failures are published as notices.
func (m *Manager) Start(ctx context.Context) error {
	select {
	case <-m.done:
		return ErrSessionClosed
	default:
	}

	if err := m.output.Restore(ctx); err != nil {
		m.publishError(err)
	}
	m.output.ListOutputs(ctx)

	if err := m.control.Restore(ctx); err != nil {
		m.publishError(err)
	}

	m.wg.Add(2)
	go m.playbackLoop()
	go func() {
		defer m.wg.Done()
		m.output.Run(m.ctx)
	}()

	zlog.Info().Msg("session started")
	return nil
}

// Close stops the background loops and releases the playback resource.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.control.Close()
		m.cancel()
		m.playback.Close()
		m.wg.Wait()
		m.notification.Close()
		close(m.done)
		zlog.Info().Msg("session closed")
	})
}

// Done is closed once the session is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Execute runs cmd. A failure is published as a notice and returned.
func (m *Manager) Execute(ctx context.Context, cmd Command) error {
	err := m.execute(ctx, cmd)
	if err != nil {
		m.publishError(err)
	}
	return err
}

func (m *Manager) execute(ctx context.Context, cmd Command) error {
	zlog.Debug().Msgf("session: command: %+v", cmd)

	switch cmd.Name {
	case settings.CmdTogglePlayPause:
		return m.playback.TogglePlayPause()
	case settings.CmdPlayNext:
		return m.playback.PlayNext(false)
	case settings.CmdPlayPrev:
		return m.playback.PlayPrev()
	case settings.CmdStopPlayback:
		return m.playback.StopPlayback(true)
	case settings.CmdSkipForward:
		return m.playback.SkipForward()
	case settings.CmdSkipBackward:
		return m.playback.SkipBackward()
	case CmdPlayTrack:
		return m.playback.PlayTrack(cmd.Index, !cmd.Paused)
	case CmdSeek:
		return m.playback.Seek(cmd.Value)
	case CmdSetVolume:
		return m.playback.SetVolume(cmd.Value)
	case CmdToggleMute:
		return m.playback.ToggleMute()
	case CmdSetRepeatMode:
		mode, err := playback.ParseRepeatMode(cmd.Mode)
		if err != nil {
			return apperr.Mark(err, apperr.ErrOperationNotAllowed)
		}
		m.playback.SetRepeatMode(mode)
		return nil
	case CmdToggleShuffle:
		m.playback.ToggleShuffle()
		return nil
	case CmdReorderQueue:
		return m.playback.ReorderQueue(cmd.From, cmd.To)
	case CmdClearQueue:
		m.playback.ClearQueue()
		return nil
	case CmdRemoveTrack:
		return m.playback.RemoveTrack(cmd.Index)
	case CmdSelectTrack:
		return m.playback.SetSelected(cmd.Index)
	case CmdAddTracks:
		_, err := m.AddPaths(ctx, cmd.Paths)
		return err
	case CmdSelectOutput:
		return m.output.SelectOutput(ctx, cmd.Target)
	case CmdSelectInput:
		return m.control.SelectInput(ctx, cmd.Target)
	case CmdStartLearn:
		if err := m.control.StartLearn(cmd.Target); err != nil {
			return err
		}
		m.notification.Publish(notification.Info("learn_pending", fmt.Sprintf("Press a control to map %s", cmd.Target)))
		return nil
	case CmdCancelLearn:
		m.control.CancelLearn()
		return nil
	case CmdUnmap:
		return m.control.Unmap(cmd.Target)
	default:
		return apperr.Mark(errors.Wrapf(ErrUnknownCommand, "%q", cmd.Name), apperr.ErrOperationNotAllowed)
	}
}

// dispatchControl runs a command from the control input. Failures reach
// the notices through the router's error handler.
func (m *Manager) dispatchControl(name string) error {
	return m.execute(m.ctx, Command{Name: name})
}

// AddPaths stats the paths and admits them into the queue. Unreadable paths
// and rejected files are published as warnings.
func (m *Manager) AddPaths(ctx context.Context, paths []string) (queue.AddResult, error) {
	files := make([]track.File, 0, len(paths))
	for _, p := range paths {
		f, err := fileFromPath(p)
		if err != nil {
			zlog.Warn().Msgf("session: cannot read %s: %v", p, err)
			m.notification.Publish(notification.Notice{
				Level:   notification.LevelWarning,
				Kind:    "unreadable_file",
				Message: fmt.Sprintf("Skipped %s: %v", p, err),
			})
			continue
		}
		files = append(files, f)
	}
	return m.AddFiles(ctx, files)
}

// AddFiles admits files into the queue. Rejected files are published as
// warnings carrying the rejecting filter's code.
func (m *Manager) AddFiles(ctx context.Context, files []track.File) (queue.AddResult, error) {
	result, err := m.playback.AddTracks(ctx, files)
	for _, s := range result.Skipped {
		zlog.Info().Msgf("session: skipped file: name=%s code=%s", s.File.Name, s.Code)
		m.notification.Publish(notification.Notice{
			Level:   notification.LevelWarning,
			Kind:    s.Code,
			Message: fmt.Sprintf("Skipped %s (%s)", s.File.Name, s.Code),
		})
	}
	if len(result.Added) > 0 {
		zlog.Info().Msgf("session: added tracks: count=%d", len(result.Added))
	}
	return result, err
}

// fileFromPath describes a file on disk as an import candidate. The
// modification time stands in for the load time, so re-adding an unchanged
// file yields the same track id.
func fileFromPath(path string) (track.File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return track.File{}, errors.Wrap(err, "failed to resolve path")
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return track.File{}, errors.Wrap(err, "failed to stat file")
	}
	if fi.IsDir() {
		return track.File{}, errors.Newf("%s is a directory", path)
	}
	return track.File{
		Name:     fi.Name(),
		Path:     abs,
		Size:     fi.Size(),
		LoadedAt: fi.ModTime(),
	}, nil
}

// GetStatus returns the session snapshot.
func (m *Manager) GetStatus() Status {
	learning, _ := m.control.Pending()
	snapshot := m.playback.Snapshot()
	queued := playlist.Playlist{Tracks: snapshot.Queue}
	return Status{
		Status:           snapshot,
		QueueDurationSec: queued.TotalDuration(),
		Outputs:          m.output.Devices(),
		OutputID:         m.output.ActiveID(),
		InputID:          m.control.ActiveInput(),
		Learning:         learning,
	}
}

// ExportPlaylist renders the canonical queue as M3U.
func (m *Manager) ExportPlaylist(name string) string {
	p := m.playback.ExportPlaylist(name)
	return p.M3U()
}

// ExportSettings returns the settings as JSON.
func (m *Manager) ExportSettings() ([]byte, error) {
	return m.settings.Export()
}

// ImportSettings replaces the settings and applies them.
func (m *Manager) ImportSettings(ctx context.Context, data []byte) error {
	if err := m.settings.Import(data); err != nil {
		m.publishError(err)
		return err
	}
	m.applySettings(ctx, m.settings.Current())
	m.notification.Publish(notification.Info("settings_imported", "Settings imported"))
	return nil
}

// ListOutputs enumerates the audio outputs.
func (m *Manager) ListOutputs(ctx context.Context) []output.Device {
	return m.output.ListOutputs(ctx)
}

// ListInputs enumerates the control inputs. A failure is published as a
// permission or device notice.
func (m *Manager) ListInputs(ctx context.Context) ([]control.Input, error) {
	inputs, err := m.control.ListInputs(ctx)
	if err != nil {
		m.publishError(err)
		return nil, err
	}
	return inputs, nil
}

// Filters returns the active admission filters.
func (m *Manager) Filters() []filter.Filter {
	return m.queue.Filters()
}

// GetNotificationManager returns the notice manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// playbackLoop handles playback events.
func (m *Manager) playbackLoop() {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback loop panicked: %v", r)
			// Restart loop so controller errors keep reaching the notices
			zlog.Info().Msg("restarting playback loop")
			m.wg.Add(1)
			go m.playbackLoop()
		}
	}()

	events := m.playback.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			m.handlePlaybackEvent(event)
		}
	}
}

func (m *Manager) handlePlaybackEvent(event playback.Event) {
	switch event.Type {
	case playback.EventError:
		n := m.errorNotice(event.Err)
		if n == nil {
			return
		}
		if event.Track != nil {
			n.TrackID = event.Track.ID
		}
		m.notification.Publish(*n)
	case playback.EventTrackStarted:
		if event.Track != nil {
			zlog.Info().Msgf("track started: name=%s index=%d", event.Track.Name, event.Index)
		}
	case playback.EventTrackEnded:
		if event.Track != nil {
			zlog.Info().Msgf("track ended: name=%s", event.Track.Name)
		}
	case playback.EventStateChanged:
		zlog.Debug().Msgf("state changed: state=%s index=%d", event.State, event.Index)
	default:
		zlog.Debug().Msgf("playback event: type=%s index=%d", event.Type, event.Index)
	}
}

// onSettingsChanged applies settings edited outside the process.
func (m *Manager) onSettingsChanged(s settings.Settings) {
	zlog.Info().Msg("settings changed on disk, applying")
	m.applySettings(m.ctx, s)
}

func (m *Manager) applySettings(ctx context.Context, s settings.Settings) {
	m.playback.ApplySettings(s)

	if s.Audio.OutputID != m.output.ActiveID() {
		if err := m.output.Restore(ctx); err != nil {
			m.publishError(err)
		}
	}
	if s.MIDI.InputID != m.control.ActiveInput() {
		if err := m.control.Restore(ctx); err != nil {
			m.publishError(err)
		}
	}
}

func (m *Manager) onLearned(cmd string, value int) {
	m.notification.Publish(notification.Info("mapping_learned", fmt.Sprintf("%s mapped to note %d", cmd, value)))
}

// publishError converts err into a notice. Aborted media errors are dropped.
func (m *Manager) publishError(err error) {
	if n := m.errorNotice(err); n != nil {
		m.notification.Publish(*n)
	}
}

func (m *Manager) errorNotice(err error) *notification.Notice {
	if err == nil || apperr.Silent(err) {
		return nil
	}
	n := notification.FromError(err)
	zlog.Warn().Msgf("notice: kind=%s message=%s", n.Kind, n.Message)
	return &n
}
