package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"connectrpc.com/connect"

	"github.com/leleuj/authgate/internal/gate"
)

// NewAuthInterceptor protects Connect RPC procedures with the gate in
// stateless mode. Credentials travel on the request headers (typically a
// bearer token); there is no session and no handshake redirect, so every
// unauthenticated call maps to CodeUnauthenticated and every role failure to
// CodePermissionDenied.
func NewAuthInterceptor(g *gate.Gate, route gate.RouteConfig) connect.UnaryInterceptorFunc {
	return connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return connect.UnaryFunc(func(
			ctx context.Context,
			req connect.AnyRequest,
		) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			rc := &gate.RequestContext{
				ClientName:      route.ClientName,
				RequireAnyRole:  route.RequireAnyRole,
				RequireAllRoles: route.RequireAllRoles,
				Stateless:       true,
				RequestURI:      procedure,
				// Connect metadata carries the credentials; a synthetic
				// request gives the clients their usual header view.
				Request: &http.Request{
					Method: http.MethodPost,
					URL:    &url.URL{Path: procedure},
					Header: req.Header(),
				},
			}

			var response connect.AnyResponse
			res, err := g.Handle(ctx, rc, func(ctx context.Context, rc *gate.RequestContext) (*gate.Result, error) {
				var callErr error
				response, callErr = next(gate.SetProfileContext(ctx, rc.Profile), req)
				return nil, callErr
			})
			if err != nil {
				return nil, err
			}
			if res != nil {
				return nil, connectError(res, procedure)
			}
			return response, nil
		})
	})
}

// connectError maps a short-circuit gate result onto the Connect error model.
func connectError(res *gate.Result, procedure string) *connect.Error {
	switch res.Status {
	case http.StatusUnauthorized:
		return connect.NewError(connect.CodeUnauthenticated,
			fmt.Errorf("procedure %s requires authentication", procedure))
	case http.StatusForbidden:
		return connect.NewError(connect.CodePermissionDenied,
			fmt.Errorf("procedure %s denied", procedure))
	default:
		return connect.NewError(connect.CodeInternal,
			fmt.Errorf("procedure %s produced unexpected status %d", procedure, res.Status))
	}
}
