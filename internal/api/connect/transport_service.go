package connect

import (
	"context"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/cuedeck/internal/app/notification"
	"github.com/osa030/cuedeck/internal/app/session"
)

// Procedure paths of the transport service.
const (
	TransportServiceName = "cuedeck.v1.TransportService"

	ExecuteProcedure          = "/" + TransportServiceName + "/Execute"
	GetStatusProcedure        = "/" + TransportServiceName + "/GetStatus"
	ExportPlaylistProcedure   = "/" + TransportServiceName + "/ExportPlaylist"
	ExportSettingsProcedure   = "/" + TransportServiceName + "/ExportSettings"
	ImportSettingsProcedure   = "/" + TransportServiceName + "/ImportSettings"
	SubscribeNoticesProcedure = "/" + TransportServiceName + "/SubscribeNotices"
)

// Session is the command surface the service exposes.
type Session interface {
	Execute(ctx context.Context, cmd session.Command) error
	GetStatus() session.Status
	ExportPlaylist(name string) string
	ExportSettings() ([]byte, error)
	ImportSettings(ctx context.Context, data []byte) error
	GetNotificationManager() *notification.Manager
	Done() <-chan struct{}
}

// TransportService implements the TransportService RPC.
type TransportService struct {
	session Session
}

// NewTransportService creates a new TransportService.
func NewTransportService(s Session) *TransportService {
	return &TransportService{session: s}
}

// Register mounts the service procedures on mux.
func (s *TransportService) Register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	mux.Handle(ExecuteProcedure, connect.NewUnaryHandler(ExecuteProcedure, s.Execute, opts...))
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, s.GetStatus, opts...))
	mux.Handle(ExportPlaylistProcedure, connect.NewUnaryHandler(ExportPlaylistProcedure, s.ExportPlaylist, opts...))
	mux.Handle(ExportSettingsProcedure, connect.NewUnaryHandler(ExportSettingsProcedure, s.ExportSettings, opts...))
	mux.Handle(ImportSettingsProcedure, connect.NewUnaryHandler(ImportSettingsProcedure, s.ImportSettings, opts...))
	mux.Handle(SubscribeNoticesProcedure, connect.NewServerStreamHandler(SubscribeNoticesProcedure, s.SubscribeNotices, opts...))
}

// Execute runs one command and returns the resulting status. The command
// name is read from the "command" field; the other fields are its arguments.
func (s *TransportService) Execute(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	cmd, err := session.DecodeCommand(req.Msg.AsMap())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.session.Execute(ctx, cmd); err != nil {
		return nil, connectError(err)
	}
	return s.status()
}

// GetStatus returns the current session status.
func (s *TransportService) GetStatus(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.status()
}

func (s *TransportService) status() (*connect.Response[structpb.Struct], error) {
	st, err := statusStruct(s.session.GetStatus())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

// ExportPlaylist renders the canonical queue as M3U.
func (s *TransportService) ExportPlaylist(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	name := "cuedeck"
	if v, ok := req.Msg.GetFields()["name"]; ok && v.GetStringValue() != "" {
		name = v.GetStringValue()
	}
	return connect.NewResponse(&structpb.Struct{Fields: map[string]*structpb.Value{
		"m3u": structpb.NewStringValue(s.session.ExportPlaylist(name)),
	}}), nil
}

// ExportSettings returns the settings JSON.
func (s *TransportService) ExportSettings(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	data, err := s.session.ExportSettings()
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&structpb.Struct{Fields: map[string]*structpb.Value{
		"json": structpb.NewStringValue(string(data)),
	}}), nil
}

// ImportSettings replaces the settings with the "json" field.
func (s *TransportService) ImportSettings(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	v, ok := req.Msg.GetFields()["json"]
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("json field is required"))
	}
	if err := s.session.ImportSettings(ctx, []byte(v.GetStringValue())); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// replayedNotices is the number of past notices a new subscriber receives.
const replayedNotices = 16

// SubscribeNotices streams the current status, the latest past notices and
// then every new notice until the client disconnects or the session closes.
func (s *TransportService) SubscribeNotices(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	initial, err := statusStruct(s.session.GetStatus())
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	initial.Fields["type"] = structpb.NewStringValue("initial_state")
	if err := stream.Send(initial); err != nil {
		return err
	}

	notices := s.session.GetNotificationManager()
	adapter := &noticeStreamAdapter{stream: stream}

	// Live notices wait on the adapter lock until the history is out.
	adapter.mu.Lock()
	subscriptionID, history := notices.SubscribeWithHistory(adapter, replayedNotices)
	zlog.Debug().Msgf("rpc: notice subscriber joined: id=%s replay=%d", subscriptionID, len(history))
	var replayErr error
	for _, n := range history {
		if replayErr = adapter.sendLocked(n); replayErr != nil {
			break
		}
	}
	adapter.mu.Unlock()
	if replayErr != nil {
		notices.Unsubscribe(subscriptionID)
		adapter.close()
		return replayErr
	}

	// Wait for context cancellation or session end
	select {
	case <-ctx.Done():
	case <-s.session.Done():
	}

	notices.Unsubscribe(subscriptionID)
	adapter.close()
	zlog.Debug().Msgf("rpc: notice subscriber left: id=%s", subscriptionID)
	return nil
}

// noticeStreamAdapter adapts connect.ServerStream to notification.Stream.
// Publishes may overlap, and a timed-out send may still be running when the
// handler returns, so sends are serialised and refused once closed.
type noticeStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
	closed bool
}

func (a *noticeStreamAdapter) Send(n notification.Notice) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sendLocked(n)
}

func (a *noticeStreamAdapter) sendLocked(n notification.Notice) error {
	if a.closed {
		return errors.New("stream closed")
	}
	msg, err := noticeStruct(n)
	if err != nil {
		return err
	}
	return a.stream.Send(msg)
}

func (a *noticeStreamAdapter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
