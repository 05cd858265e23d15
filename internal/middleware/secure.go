// Package middleware adapts the authentication gate to the transports it
// protects: chi HTTP routes and Connect RPC procedures, plus the session
// cookie middleware feeding the stateful flow.
package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/leleuj/authgate/internal/authz"
	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/gate"
)

// SecureOption customises a Secure middleware instance.
type SecureOption func(*secureConfig)

type secureConfig struct {
	authorizers []authz.Authorizer
}

// WithAuthorizers adds authorizers evaluated after authentication succeeds.
// All must allow the request, on top of the route's role requirements.
func WithAuthorizers(authorizers ...authz.Authorizer) SecureOption {
	return func(cfg *secureConfig) {
		cfg.authorizers = append(cfg.authorizers, authorizers...)
	}
}

// Secure protects an HTTP route with the gate. Authenticated requests reach
// the wrapped handler with the profile on the request context; every other
// branch is rendered from the gate's result.
func Secure(g *gate.Gate, route gate.RouteConfig, opts ...SecureOption) func(http.Handler) http.Handler {
	cfg := &secureConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := gate.FromHTTP(r, route)

			res, err := g.Handle(r.Context(), rc, func(ctx context.Context, rc *gate.RequestContext) (*gate.Result, error) {
				for _, authorizer := range cfg.authorizers {
					ok, err := authorizer.Authorize(ctx, rc, rc.Profile)
					if err != nil {
						return nil, err
					}
					if !ok {
						return g.Forbidden(), nil
					}
				}
				next.ServeHTTP(w, r.WithContext(gate.SetProfileContext(ctx, rc.Profile)))
				return nil, nil
			})
			if err != nil {
				writeError(w, r, err)
				return
			}
			if res != nil {
				res.WriteTo(w)
			}
		})
	}
}

// writeError renders gate failures. Both configuration errors and unexpected
// collaborator failures surface as 500; neither is an authentication outcome.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *client.ConfigError
	if errors.As(err, &cfgErr) {
		log.Printf("middleware: configuration error on %s: %v", r.URL.Path, err)
	} else {
		log.Printf("middleware: request %s failed: %v", r.URL.Path, err)
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
