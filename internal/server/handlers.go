package server

import (
	"fmt"
	"html"
	"log"
	"net/http"

	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/gate"
	authmiddleware "github.com/leleuj/authgate/internal/middleware"
)

// clientNameParam selects the authentication client on the callback, login
// and logout endpoints.
const clientNameParam = "client_name"

func (opts RouterOptions) resolveClient(r *http.Request) (client.Client, error) {
	name := r.URL.Query().Get(clientNameParam)
	if name == "" {
		name = opts.DefaultClient
	}
	return opts.Clients.Find(name)
}

// HandleCallback finishes a stateful handshake: the provider (or the login
// form) posts back to this endpoint, the named client turns the callback
// into a profile, the profile is saved under the session, and the browser is
// sent back to the URL it originally requested.
func HandleCallback(opts RouterOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		c, err := opts.resolveClient(r)
		if err != nil {
			log.Printf("callback: %v", err)
			http.Error(w, "Unknown client", http.StatusBadRequest)
			return
		}

		rc := gate.FromHTTP(r, gate.RouteConfig{ClientName: c.Name()})
		if rc.SessionID == "" {
			http.Error(w, "Missing session", http.StatusBadRequest)
			return
		}
		req := rc.ClientRequest()

		creds, action, err := c.ExtractCredentials(ctx, req)
		if err != nil {
			log.Printf("callback: extracting credentials for client %s failed: %v", c.Name(), err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if action != nil {
			writeHTTPAction(w, r, action)
			return
		}
		if creds == nil {
			http.Error(w, "Missing credentials", http.StatusUnauthorized)
			return
		}

		p, action, err := c.ExchangeProfile(ctx, creds, req)
		if err != nil {
			log.Printf("callback: exchanging credentials for client %s failed: %v", c.Name(), err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if action != nil {
			writeHTTPAction(w, r, action)
			return
		}
		if p == nil {
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		if err := opts.Sessions.SaveProfile(ctx, rc.SessionID, p); err != nil {
			log.Printf("callback: saving profile for session %s failed: %v", rc.SessionID, err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		target, err := opts.Sessions.GetRequestedURL(ctx, rc.SessionID, c.Name())
		if err != nil {
			log.Printf("callback: reading requested url for session %s failed: %v", rc.SessionID, err)
		}
		if target == "" {
			target = opts.PostLoginURL
		}
		if target == "" {
			target = "/"
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// HandleLogout drops the session profile and expires the session cookie.
func HandleLogout(opts RouterOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sid, ok := gate.SessionIDFromContext(r.Context()); ok {
			if err := opts.Sessions.DeleteProfile(r.Context(), sid); err != nil {
				log.Printf("logout: deleting profile for session %s failed: %v", sid, err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
		}
		authmiddleware.ClearSessionCookie(w, opts.SecureCookies)

		target := opts.PostLogoutURL
		if target == "" {
			target = "/"
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// HandleLoginPage renders the login form for the form client. The posted
// credentials land on the callback endpoint.
func HandleLoginPage(opts RouterOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get(clientNameParam)
		if name == "" {
			name = opts.DefaultClient
		}
		w.Header().Set("Content-Type", gate.HTMLContentType)
		fmt.Fprintf(w, `<html><body>
<form method="post" action="/callback?%s=%s">
<label>Username <input type="text" name="username"></label>
<label>Password <input type="password" name="password"></label>
<button type="submit">Log in</button>
</form>
</body></html>`, clientNameParam, html.EscapeString(name))
	}
}

// writeHTTPAction renders a handshake action a client required on the
// callback path, mirroring the gate's short-circuit mapping. It is total
// over the supported codes; anything else is a configuration error.
func writeHTTPAction(w http.ResponseWriter, r *http.Request, action *client.HTTPAction) {
	switch action.Code {
	case http.StatusTemporaryRedirect:
		http.Redirect(w, r, action.Location, http.StatusFound)
	case http.StatusOK:
		w.Header().Set("Content-Type", gate.HTMLContentType)
		_, _ = w.Write([]byte(action.Content))
	case http.StatusUnauthorized, http.StatusForbidden:
		http.Error(w, http.StatusText(action.Code), action.Code)
	default:
		log.Printf("callback: %v", client.NewConfigError("unsupported HTTP action code %d", action.Code))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
