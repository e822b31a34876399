// Package connect provides the Connect RPC control API.
package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

const (
	// ControlTokenHeader is the header name for the control token.
	ControlTokenHeader = "X-Control-Token"
)

// NewControlAuthInterceptor creates an interceptor that validates the control
// token for every procedure that changes playback.
func NewControlAuthInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if readOnlyProcedures[req.Spec().Procedure] {
				return next(ctx, req)
			}

			got := req.Header().Get(ControlTokenHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid control token"))
			}

			return next(ctx, req)
		}
	}
}

// NewTokenHeaderInterceptor attaches the control token to outgoing requests.
func NewTokenHeaderInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token != "" && req.Spec().IsClient {
				req.Header().Set(ControlTokenHeader, token)
			}
			return next(ctx, req)
		}
	}
}
