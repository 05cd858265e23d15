package gate

import (
	"context"
	"net/http"

	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/profile"
)

// SessionCookieName is the cookie carrying the session identifier issued by
// the host session middleware. The gate itself never creates or invalidates
// sessions.
const SessionCookieName = "authgate.session"

// AjaxRequestHeader and AjaxRequestValue are the conventional marker used by
// browser XHR stacks; requests carrying them get challenge content instead of
// redirects.
const (
	AjaxRequestHeader = "X-Requested-With"
	AjaxRequestValue  = "XMLHttpRequest"
)

// RouteConfig is the static security configuration attached to a protected
// route: which client authenticates it and which roles it requires. It is
// configuration, not request state.
type RouteConfig struct {
	// ClientName names the authentication client in the registry.
	ClientName string
	// RequireAnyRole lists roles of which the profile must hold at least one.
	RequireAnyRole []string
	// RequireAllRoles lists roles the profile must hold in full.
	RequireAllRoles []string
	// Stateless marks routes authenticated per-call from request credentials,
	// with no server-side session.
	Stateless bool
	// TargetURL, when set, overrides the request URI as the URL to resume
	// after a stateful handshake.
	TargetURL string
}

// RequestContext is the normalized per-request input to the gate. It is
// built once per incoming request, owned by that gate invocation, and
// discarded when the invocation completes.
type RequestContext struct {
	// SessionID is present only in stateful mode.
	SessionID string
	// ClientName selects the authentication client.
	ClientName string
	// RequireAnyRole and RequireAllRoles are the route's role requirements.
	RequireAnyRole  []string
	RequireAllRoles []string
	// Stateless selects per-call credential authentication.
	Stateless bool
	// Ajax marks XHR callers, which cannot follow handshake redirects.
	Ajax bool
	// TargetURL optionally overrides RequestURI as the resume destination.
	TargetURL string
	// RequestURI is the URI of the current request.
	RequestURI string

	// Request is the inbound request, when the gate runs inside an HTTP
	// server. May be nil for RPC transports.
	Request *http.Request

	// Profile is the request-scoped profile slot, populated by the gate on
	// the authentication success path.
	Profile *profile.Profile
}

// FromHTTP normalizes a framework request into the fields the gate needs.
// The session id is taken from the session middleware's context entry when
// present, falling back to the session cookie. Pure read; no side effects.
func FromHTTP(r *http.Request, route RouteConfig) *RequestContext {
	rc := &RequestContext{
		ClientName:      route.ClientName,
		RequireAnyRole:  route.RequireAnyRole,
		RequireAllRoles: route.RequireAllRoles,
		Stateless:       route.Stateless,
		TargetURL:       route.TargetURL,
		Ajax:            r.Header.Get(AjaxRequestHeader) == AjaxRequestValue,
		RequestURI:      r.URL.RequestURI(),
		Request:         r,
	}

	if !route.Stateless {
		if sid, ok := SessionIDFromContext(r.Context()); ok {
			rc.SessionID = sid
		} else if cookie, err := r.Cookie(SessionCookieName); err == nil {
			rc.SessionID = cookie.Value
		}
	}
	return rc
}

// RequestedURL resolves the URL to resume after a handshake: the configured
// target URL when set, otherwise the current request URI.
func (rc *RequestContext) RequestedURL() string {
	if rc.TargetURL != "" {
		return rc.TargetURL
	}
	return rc.RequestURI
}

// ClientRequest projects the context onto the slice a client sees.
func (rc *RequestContext) ClientRequest() *client.Request {
	req := &client.Request{SessionID: rc.SessionID}
	if rc.Request != nil {
		req.Method = rc.Request.Method
		req.URL = rc.Request.URL
		req.Header = rc.Request.Header
		if rc.Request.Form == nil {
			_ = rc.Request.ParseForm()
		}
		req.Form = rc.Request.PostForm
	}
	return req
}

type profileContextKey struct{}

// SetProfileContext stores the authenticated profile on the context for
// downstream handlers.
func SetProfileContext(ctx context.Context, p *profile.Profile) context.Context {
	return context.WithValue(ctx, profileContextKey{}, p)
}

// ProfileFromContext retrieves the authenticated profile from the context.
func ProfileFromContext(ctx context.Context) (*profile.Profile, bool) {
	p, ok := ctx.Value(profileContextKey{}).(*profile.Profile)
	return p, ok && p != nil
}

type sessionIDContextKey struct{}

// SetSessionIDContext stores the session identifier on the context. Used by
// the session middleware so a freshly issued cookie is visible to the gate
// within the same request.
func SetSessionIDContext(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey{}, sessionID)
}

// SessionIDFromContext retrieves the session identifier from the context.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionIDContextKey{}).(string)
	return sid, ok && sid != ""
}
