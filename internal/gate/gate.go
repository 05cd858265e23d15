// Package gate implements the decision engine behind the authentication
// middleware: given a normalized request it retrieves or computes a profile,
// drives the identity-provider handshake when the caller is not
// authenticated, enforces the route's role requirements, and maps every
// branch to an HTTP-level result.
package gate

import (
	"context"
	"log"

	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/profile"
	"github.com/leleuj/authgate/internal/store"
)

// Handler is the protected downstream invoked on the authorized path. A nil
// result with a nil error means the handler produced its response through a
// side channel (e.g. wrote to the ResponseWriter directly); the gate passes
// either form through unchanged.
type Handler func(ctx context.Context, rc *RequestContext) (*Result, error)

// Outcome is the explicit result of the profile-retrieval stage: an
// authenticated profile, a handshake action the provider requires, or
// neither (the caller is simply not authenticated).
type Outcome struct {
	Profile *profile.Profile
	Action  *client.HTTPAction
}

// Gate evaluates the authentication and authorization state of one request.
// It holds no per-request state; a single Gate serves concurrent requests.
type Gate struct {
	clients *client.Registry
	store   store.SessionStore
	pages   ErrorPages
}

// Option customises gate construction.
type Option func(*Gate)

// WithErrorPages overrides the fixed 401/403 page content.
func WithErrorPages(pages ErrorPages) Option {
	return func(g *Gate) {
		if pages.Unauthorized != "" {
			g.pages.Unauthorized = pages.Unauthorized
		}
		if pages.Forbidden != "" {
			g.pages.Forbidden = pages.Forbidden
		}
	}
}

// New builds a gate over a client registry and a session store.
func New(clients *client.Registry, sessions store.SessionStore, opts ...Option) *Gate {
	g := &Gate{
		clients: clients,
		store:   sessions,
		pages:   DefaultErrorPages(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handle runs the authentication algorithm for one request.
//
// A handshake action surfacing anywhere during profile retrieval
// short-circuits to the mapped result. Configuration errors and unexpected
// collaborator failures are logged and returned to the caller; they are
// never rendered as an authentication failure, because a crashed identity
// exchange is not the same outcome as "user not logged in".
func (g *Gate) Handle(ctx context.Context, rc *RequestContext, next Handler) (*Result, error) {
	outcome, err := g.retrieveProfile(ctx, rc)
	if err != nil {
		log.Printf("gate: profile retrieval failed for client %q: %v", rc.ClientName, err)
		return nil, err
	}

	if outcome.Action != nil {
		return g.actionResult(outcome.Action)
	}
	if outcome.Profile == nil {
		return g.authenticationFailure(ctx, rc)
	}

	if err := g.saveProfile(ctx, rc, outcome.Profile); err != nil {
		log.Printf("gate: saving profile for session %q failed: %v", rc.SessionID, err)
		return nil, err
	}
	return g.authenticationSuccess(ctx, rc, next)
}

// retrieveProfile picks exactly one retrieval strategy based on the
// statelessness flag: a direct credential exchange, or a session lookup. A
// session miss yields an empty outcome, not an error.
func (g *Gate) retrieveProfile(ctx context.Context, rc *RequestContext) (Outcome, error) {
	if rc.Stateless {
		return g.authenticate(ctx, rc)
	}

	p, err := g.store.GetProfile(ctx, rc.SessionID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Profile: p}, nil
}

// authenticate performs the per-call credential extraction and exchange for
// stateless requests.
func (g *Gate) authenticate(ctx context.Context, rc *RequestContext) (Outcome, error) {
	c, err := g.clients.Find(rc.ClientName)
	if err != nil {
		return Outcome{}, err
	}

	req := rc.ClientRequest()
	creds, action, err := c.ExtractCredentials(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	if action != nil {
		return Outcome{Action: action}, nil
	}
	if creds == nil {
		return Outcome{}, nil
	}

	p, action, err := c.ExchangeProfile(ctx, creds, req)
	if err != nil {
		return Outcome{}, err
	}
	if action != nil {
		return Outcome{Action: action}, nil
	}
	if p == nil {
		// A configured client that produced neither a profile nor a
		// handshake signal is observably identical to "not authenticated".
		log.Printf("gate: client %q returned no profile for presented credentials", rc.ClientName)
	}
	return Outcome{Profile: p}, nil
}

// authenticationFailure handles the absent-profile branch. Stateless callers
// get a fixed 401: there is no browser session to resume, so no redirect is
// ever issued regardless of client capability. Stateful callers get the
// provider handshake, with the original URL saved first so it can be resumed
// after login.
func (g *Gate) authenticationFailure(ctx context.Context, rc *RequestContext) (*Result, error) {
	if rc.Stateless {
		return g.Unauthorized(), nil
	}

	if !rc.Ajax {
		// Resuming via redirect is meaningless for an XHR caller, so only
		// non-ajax requests persist the requested URL.
		requested := rc.RequestedURL()
		if err := g.store.SaveRequestedURL(ctx, rc.SessionID, rc.ClientName, requested); err != nil {
			log.Printf("gate: saving requested url %q failed: %v", requested, err)
			return nil, err
		}
	}

	c, err := g.clients.Find(rc.ClientName)
	if err != nil {
		return nil, err
	}
	action, err := c.RedirectAction(ctx, rc.ClientRequest(), rc.Ajax)
	if err != nil {
		log.Printf("gate: client %q could not start a handshake: %v", rc.ClientName, err)
		return nil, err
	}
	if action == nil {
		return nil, client.NewConfigError("client %q produced no redirect action", rc.ClientName)
	}
	return redirectActionResult(action)
}

// saveProfile persists the authenticated profile: request-scoped for
// stateless calls, in the session store for stateful ones.
func (g *Gate) saveProfile(ctx context.Context, rc *RequestContext, p *profile.Profile) error {
	rc.Profile = p
	if rc.Stateless {
		return nil
	}
	return g.store.SaveProfile(ctx, rc.SessionID, p)
}

// authenticationSuccess enforces the role requirements and either delegates
// to the protected handler or renders the fixed 403 page.
func (g *Gate) authenticationSuccess(ctx context.Context, rc *RequestContext, next Handler) (*Result, error) {
	if !rc.Profile.HasAccess(rc.RequireAnyRole, rc.RequireAllRoles) {
		return g.Forbidden(), nil
	}
	return next(ctx, rc)
}
