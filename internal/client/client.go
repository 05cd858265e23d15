// Package client defines the contract between the authentication gate and
// the identity-provider clients it delegates to, plus the registry resolving
// clients by name. Concrete clients live under internal/clients.
package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/leleuj/authgate/internal/profile"
)

// Credentials is the opaque material a client extracts from a request (a
// bearer token, a form post, an authorization code). It is used once for the
// profile exchange and never persisted.
type Credentials struct {
	// Token is the primary credential value.
	Token string
	// Secret is an optional second factor (e.g. a password).
	Secret string
}

// Request is the slice of the inbound request a client needs: enough to pull
// credentials out of headers, query or form values and to build handshake
// actions, without coupling clients to the host HTTP framework.
type Request struct {
	Method    string
	URL       *url.URL
	Header    http.Header
	Form      url.Values
	SessionID string
}

// Query returns the named query parameter, or "" when the URL is absent.
func (r *Request) Query(name string) string {
	if r == nil || r.URL == nil {
		return ""
	}
	return r.URL.Query().Get(name)
}

// FormValue returns the named form parameter.
func (r *Request) FormValue(name string) string {
	if r == nil || r.Form == nil {
		return ""
	}
	return r.Form.Get(name)
}

// Client authenticates requests on behalf of one identity provider.
//
// The methods follow a tri-state contract. Each returns its result, an
// *HTTPAction the provider requires the gate to perform before the flow can
// continue, or an error. At most one of the three is non-nil; all three nil
// from ExtractCredentials means no credentials were present on the request,
// and a nil profile from ExchangeProfile means the credentials did not
// authenticate anyone. Neither case is an error.
type Client interface {
	// Name identifies the client inside the registry.
	Name() string

	// ExtractCredentials pulls credentials out of the request.
	ExtractCredentials(ctx context.Context, req *Request) (*Credentials, *HTTPAction, error)

	// ExchangeProfile trades credentials for an authenticated profile.
	ExchangeProfile(ctx context.Context, creds *Credentials, req *Request) (*profile.Profile, *HTTPAction, error)

	// RedirectAction starts the provider handshake for a stateful request.
	// The ajax hint tells the client whether the caller can follow a browser
	// redirect; ajax callers get inline challenge content instead.
	RedirectAction(ctx context.Context, req *Request, ajax bool) (*RedirectAction, error)
}
