package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/cuedeck/internal/app/notification"
	"github.com/osa030/cuedeck/internal/app/output"
	"github.com/osa030/cuedeck/internal/app/playback"
	"github.com/osa030/cuedeck/internal/app/session"
	"github.com/osa030/cuedeck/internal/domain/apperr"
	"github.com/osa030/cuedeck/internal/domain/track"
)

type fakeSession struct {
	mu       sync.Mutex
	commands []session.Command
	execErr  error
	status   session.Status
	settings []byte
	imported []byte
	notices  *notification.Manager
	done     chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		notices:  notification.NewManager(),
		done:     make(chan struct{}),
		settings: []byte(`{"volume":1}`),
		status: session.Status{
			Status: playback.Status{
				State:         playback.StatePlaying,
				IsPlaying:     true,
				CurrentIndex:  0,
				SelectedIndex: -1,
				CurrentTrack:  &track.Track{ID: "a", Name: "Walk-in"},
				Volume:        0.8,
				Queue:         []track.Track{{ID: "a", Name: "Walk-in", Duration: 95 * time.Second}},
			},
			QueueDurationSec: 95,
			Outputs:          []output.Device{{ID: "default", Name: "System default", IsActive: true}},
			OutputID:         "default",
		},
	}
}

func (f *fakeSession) Execute(ctx context.Context, cmd session.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return f.execErr
}

func (f *fakeSession) GetStatus() session.Status         { return f.status }
func (f *fakeSession) ExportPlaylist(name string) string { return "#EXTM3U\n#PLAYLIST:" + name + "\n" }
func (f *fakeSession) ExportSettings() ([]byte, error)   { return f.settings, nil }
func (f *fakeSession) ImportSettings(ctx context.Context, data []byte) error {
	if string(data) == "bad" {
		return errors.New("failed to decode settings")
	}
	f.imported = data
	return nil
}
func (f *fakeSession) GetNotificationManager() *notification.Manager { return f.notices }
func (f *fakeSession) Done() <-chan struct{}                         { return f.done }

func newTestServer(t *testing.T, s Session, token string) string {
	t.Helper()
	mux := http.NewServeMux()
	var opts []connect.HandlerOption
	if token != "" {
		opts = append(opts, connect.WithInterceptors(NewAuthInterceptor(token)))
	}
	NewTransportService(s).Register(mux, opts...)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestTransportService_Execute(t *testing.T) {
	fs := newFakeSession()
	client := NewClient(http.DefaultClient, newTestServer(t, fs, ""), "")

	st, err := client.Execute(context.Background(), map[string]any{"command": "reorderQueue", "from": 2, "to": 0})

	require.NoError(t, err)
	assert.Equal(t, []session.Command{{Name: session.CmdReorderQueue, From: 2, To: 0}}, fs.commands)
	assert.Equal(t, "playing", st.GetFields()["state"].GetStringValue())
	assert.Equal(t, "Walk-in", st.GetFields()["currentTrack"].GetStructValue().GetFields()["name"].GetStringValue())
	assert.Len(t, st.GetFields()["queue"].GetListValue().GetValues(), 1)
}

func TestTransportService_ExecuteErrors(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]any
		execErr error
		code    connect.Code
	}{
		{name: "missing command", fields: map[string]any{"index": 1}, code: connect.CodeInvalidArgument},
		{name: "out of range", fields: map[string]any{"command": "playTrack", "index": 9}, execErr: apperr.Mark(errors.New("index 9"), apperr.ErrIndexOutOfRange), code: connect.CodeOutOfRange},
		{name: "not allowed", fields: map[string]any{"command": "reorderQueue"}, execErr: apperr.Mark(errors.New("shuffled"), apperr.ErrOperationNotAllowed), code: connect.CodeFailedPrecondition},
		{name: "unsupported", fields: map[string]any{"command": "selectOutput"}, execErr: apperr.Mark(errors.New("usb"), apperr.ErrUnsupportedFeature), code: connect.CodeUnimplemented},
		{name: "unclassified", fields: map[string]any{"command": "stopPlayback"}, execErr: errors.New("boom"), code: connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeSession()
			fs.execErr = tt.execErr
			client := NewClient(http.DefaultClient, newTestServer(t, fs, ""), "")

			_, err := client.Execute(context.Background(), tt.fields)

			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}

func TestTransportService_Auth(t *testing.T) {
	fs := newFakeSession()
	url := newTestServer(t, fs, "secret")
	ctx := context.Background()

	_, err := NewClient(http.DefaultClient, url, "").GetStatus(ctx)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = NewClient(http.DefaultClient, url, "wrong").GetStatus(ctx)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	err = NewClient(http.DefaultClient, url, "wrong").SubscribeNotices(ctx, func(*structpb.Struct) error { return nil })
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	st, err := NewClient(http.DefaultClient, url, "secret").GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.8, st.GetFields()["volume"].GetNumberValue())
	assert.Equal(t, float64(95), st.GetFields()["queueDurationSec"].GetNumberValue())
	outputs := st.GetFields()["outputs"].GetListValue().GetValues()
	require.Len(t, outputs, 1)
	assert.True(t, outputs[0].GetStructValue().GetFields()["isActive"].GetBoolValue())
}

func TestTransportService_PlaylistAndSettings(t *testing.T) {
	fs := newFakeSession()
	client := NewClient(http.DefaultClient, newTestServer(t, fs, ""), "")
	ctx := context.Background()

	m3u, err := client.ExportPlaylist(ctx, "show")
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n#PLAYLIST:show\n", m3u)

	data, err := client.ExportSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"volume":1}`, data)

	require.NoError(t, client.ImportSettings(ctx, []byte(`{"volume":0.5}`)))
	assert.Equal(t, `{"volume":0.5}`, string(fs.imported))

	err = client.ImportSettings(ctx, []byte("bad"))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestTransportService_SubscribeNotices(t *testing.T) {
	fs := newFakeSession()
	client := NewClient(http.DefaultClient, newTestServer(t, fs, ""), "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *structpb.Struct, 4)
	go func() {
		_ = client.SubscribeNotices(ctx, func(msg *structpb.Struct) error {
			received <- msg
			return nil
		})
	}()

	initial := <-received
	assert.Equal(t, "initial_state", initial.GetFields()["type"].GetStringValue())

	require.Eventually(t, func() bool { return fs.notices.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	fs.notices.Publish(notification.Notice{Level: notification.LevelError, Kind: "decode_error", Message: "Could not decode track", TrackID: "a"})

	select {
	case msg := <-received:
		assert.Equal(t, "notice", msg.GetFields()["type"].GetStringValue())
		assert.Equal(t, "decode_error", msg.GetFields()["kind"].GetStringValue())
		assert.Equal(t, "a", msg.GetFields()["trackId"].GetStringValue())
		assert.Equal(t, "error", msg.GetFields()["level"].GetStringValue())
	case <-time.After(2 * time.Second):
		t.Fatal("notice not received")
	}

	close(fs.done)
	assert.Eventually(t, func() bool { return fs.notices.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTransportService_SubscribeNoticesReplaysHistory(t *testing.T) {
	fs := newFakeSession()
	fs.notices.Publish(notification.Info("learned", "playNext mapped to 62"))
	fs.notices.Publish(notification.Notice{Level: notification.LevelWarning, Kind: "duplicate_track", Message: "Already queued: a.wav"})

	client := NewClient(http.DefaultClient, newTestServer(t, fs, ""), "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *structpb.Struct, 8)
	go func() {
		_ = client.SubscribeNotices(ctx, func(msg *structpb.Struct) error {
			received <- msg
			return nil
		})
	}()

	next := func() *structpb.Struct {
		t.Helper()
		select {
		case msg := <-received:
			return msg
		case <-time.After(2 * time.Second):
			t.Fatal("message not received")
			return nil
		}
	}

	assert.Equal(t, "initial_state", next().GetFields()["type"].GetStringValue())
	assert.Equal(t, "learned", next().GetFields()["kind"].GetStringValue())
	assert.Equal(t, "duplicate_track", next().GetFields()["kind"].GetStringValue())

	require.Eventually(t, func() bool { return fs.notices.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	fs.notices.Publish(notification.Info("learn_pending", "Press a control to map stopPlayback"))
	live := next()
	assert.Equal(t, "learn_pending", live.GetFields()["kind"].GetStringValue())
	assert.Equal(t, float64(3), live.GetFields()["sequenceNo"].GetNumberValue())
}
