package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed client of the transport service.
type Client struct {
	token          string
	execute        *connect.Client[structpb.Struct, structpb.Struct]
	status         *connect.Client[emptypb.Empty, structpb.Struct]
	exportPlaylist *connect.Client[structpb.Struct, structpb.Struct]
	exportSettings *connect.Client[emptypb.Empty, structpb.Struct]
	importSettings *connect.Client[structpb.Struct, emptypb.Empty]
	notices        *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewClient creates a client for the service at baseURL. An empty token
// sends no token header.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		token:          token,
		execute:        connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+ExecuteProcedure, opts...),
		status:         connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+GetStatusProcedure, opts...),
		exportPlaylist: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+ExportPlaylistProcedure, opts...),
		exportSettings: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+ExportSettingsProcedure, opts...),
		importSettings: connect.NewClient[structpb.Struct, emptypb.Empty](httpClient, baseURL+ImportSettingsProcedure, opts...),
		notices:        connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+SubscribeNoticesProcedure, opts...),
	}
}

func newRequest[T any](msg *T, token string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set(TokenHeader, token)
	}
	return req
}

// Execute runs a command and returns the resulting status.
func (c *Client) Execute(ctx context.Context, fields map[string]any) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode command")
	}
	resp, err := c.execute.CallUnary(ctx, newRequest(msg, c.token))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// GetStatus returns the session status.
func (c *Client) GetStatus(ctx context.Context) (*structpb.Struct, error) {
	resp, err := c.status.CallUnary(ctx, newRequest(&emptypb.Empty{}, c.token))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// ExportPlaylist returns the queue as M3U.
func (c *Client) ExportPlaylist(ctx context.Context, name string) (string, error) {
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{"name": structpb.NewStringValue(name)}}
	resp, err := c.exportPlaylist.CallUnary(ctx, newRequest(msg, c.token))
	if err != nil {
		return "", err
	}
	return resp.Msg.GetFields()["m3u"].GetStringValue(), nil
}

// ExportSettings returns the settings JSON.
func (c *Client) ExportSettings(ctx context.Context) (string, error) {
	resp, err := c.exportSettings.CallUnary(ctx, newRequest(&emptypb.Empty{}, c.token))
	if err != nil {
		return "", err
	}
	return resp.Msg.GetFields()["json"].GetStringValue(), nil
}

// ImportSettings replaces the settings.
func (c *Client) ImportSettings(ctx context.Context, data []byte) error {
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{"json": structpb.NewStringValue(string(data))}}
	_, err := c.importSettings.CallUnary(ctx, newRequest(msg, c.token))
	return err
}

// SubscribeNotices calls fn for each stream message until ctx is done, the
// server ends the stream, or fn fails.
func (c *Client) SubscribeNotices(ctx context.Context, fn func(*structpb.Struct) error) error {
	stream, err := c.notices.CallServerStream(ctx, newRequest(&emptypb.Empty{}, c.token))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}
	return stream.Err()
}
