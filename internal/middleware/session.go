package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/leleuj/authgate/internal/gate"
	"github.com/leleuj/authgate/internal/store"
)

// SessionCookieOptions controls how the session cookie is issued.
type SessionCookieOptions struct {
	// TTL bounds the cookie lifetime. Zero means store.DefaultSessionTTL.
	TTL time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure bool
}

// SessionCookie owns the session identifier for stateful routes: requests
// without an authgate.session cookie get a fresh random token, and the
// identifier is placed on the request context so the gate and the callback
// handlers see it within the same request, before the Set-Cookie round trip.
func SessionCookie(opts SessionCookieOptions) func(http.Handler) http.Handler {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = store.DefaultSessionTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(gate.SessionCookieName); err == nil && cookie.Value != "" {
				ctx := gate.SetSessionIDContext(r.Context(), cookie.Value)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			sessionID, err := store.NewSessionToken()
			if err != nil {
				log.Printf("middleware: issuing session token failed: %v", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     gate.SessionCookieName,
				Value:    sessionID,
				Path:     "/",
				Expires:  time.Now().Add(ttl),
				HttpOnly: true,
				Secure:   opts.Secure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := gate.SetSessionIDContext(r.Context(), sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClearSessionCookie expires the session cookie on the response. Used by the
// logout handler.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     gate.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
