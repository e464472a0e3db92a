// Package connect serves the transport command surface over Connect RPC.
package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

const (
	// TokenHeader is the header name for the RPC token.
	TokenHeader = "X-Cuedeck-Token"
	// KindHeader carries the error kind on failed calls.
	KindHeader = "X-Cuedeck-Kind"
)

// authInterceptor rejects requests that do not carry the configured token.
// It covers unary calls and the notice stream.
type authInterceptor struct {
	token string
}

// NewAuthInterceptor creates an interceptor that validates the RPC token
// from request headers.
func NewAuthInterceptor(token string) connect.Interceptor {
	return &authInterceptor{token: token}
}

func (i *authInterceptor) check(token string) error {
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or missing token"))
	}
	return nil
}

func (i *authInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if err := i.check(req.Header().Get(TokenHeader)); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *authInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *authInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := i.check(conn.RequestHeader().Get(TokenHeader)); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}
