// Package server assembles the HTTP surface around the authentication gate:
// the chi router with its shared middleware, the handshake callback and
// logout endpoints, and the login page for the form client.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/gate"
	authmiddleware "github.com/leleuj/authgate/internal/middleware"
	"github.com/leleuj/authgate/internal/store"
)

// RouterOptions controls the construction of the router. The zero value is
// not useful; Gate, Clients and Sessions are required.
type RouterOptions struct {
	Gate     *gate.Gate
	Clients  *client.Registry
	Sessions store.SessionStore

	// DefaultClient names the client used when a request carries no
	// client_name parameter.
	DefaultClient string
	// PostLoginURL is where a completed handshake lands when no requested
	// URL was saved. Defaults to "/".
	PostLoginURL string
	// PostLogoutURL is where logout redirects. Defaults to "/".
	PostLogoutURL string

	SessionTTL    time.Duration
	SecureCookies bool

	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	// ExtraRoutes mounts the application's own routes, typically wrapped in
	// middleware.Secure.
	ExtraRoutes func(chi.Router)
}

// DefaultCORSOptions returns the development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			"X-Requested-With",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with the shared middleware stack, the
// session cookie middleware, and the authentication endpoints mounted. The
// application's protected routes come in through ExtraRoutes.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	r.Use(authmiddleware.SessionCookie(authmiddleware.SessionCookieOptions{
		TTL:    opts.SessionTTL,
		Secure: opts.SecureCookies,
	}))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/login", HandleLoginPage(opts))
	r.Get("/callback", HandleCallback(opts))
	r.Post("/callback", HandleCallback(opts))
	r.Get("/logout", HandleLogout(opts))
	r.Post("/logout", HandleLogout(opts))

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}

// NewH2CHandler wraps the router with an h2c server so Connect and gRPC-web
// clients can speak HTTP/2 over cleartext during development.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
