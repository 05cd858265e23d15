// Package oidcclient implements a stateful OIDC authorization-code client on
// top of the zitadel/oidc relying party. Unauthenticated browsers are sent to
// the provider's authorization endpoint and the code posted back on the
// callback is exchanged for verified ID token claims.
package oidcclient

import (
	"context"
	"fmt"
	"html"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/profile"
)

const (
	// stateTTL bounds how long an issued state nonce stays redeemable, the
	// window a user has to finish the provider login.
	stateTTL = 10 * time.Minute

	// maxPendingStates caps outstanding handshakes so anonymous traffic
	// cannot grow the state table without bound.
	maxPendingStates = 4096
)

// Config carries the relying-party settings for one OIDC provider.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// Scopes defaults to openid, profile, email.
	Scopes []string
	// RolesClaim names the ID token claim carrying role names, e.g. "groups".
	// Empty means the provider grants no roles.
	RolesClaim string
}

// Client is the OIDC authorization-code client.
type Client struct {
	name       string
	rolesClaim string
	rp         rp.RelyingParty

	// states holds the state nonce issued per session, redeemed exactly once
	// by the matching callback.
	states *expirable.LRU[string, string]
}

// New discovers the provider named by cfg.Issuer and builds the client.
func New(ctx context.Context, name string, cfg Config) (*Client, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("oidc client %q: issuer is required", name)
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("oidc client %q: client id is required", name)
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, oidc.ScopeProfile, oidc.ScopeEmail}
	}

	options := []rp.Option{
		rp.WithVerifierOpts(rp.WithIssuedAtMaxAge(10 * time.Second)),
	}
	relyingParty, err := rp.NewRelyingPartyOIDC(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI,
		scopes, options...)
	if err != nil {
		return nil, fmt.Errorf("create OIDC relying party: %w", err)
	}

	return &Client{
		name:       name,
		rolesClaim: cfg.RolesClaim,
		rp:         relyingParty,
		states:     expirable.NewLRU[string, string](maxPendingStates, nil, stateTTL),
	}, nil
}

// Name implements client.Client.
func (c *Client) Name() string { return c.name }

// ExtractCredentials implements client.Client. Credentials only exist on the
// provider callback, as the code query parameter.
func (c *Client) ExtractCredentials(_ context.Context, req *client.Request) (*client.Credentials, *client.HTTPAction, error) {
	code := req.Query("code")
	if code == "" {
		return nil, nil, nil
	}
	return &client.Credentials{Token: code, Secret: req.Query("state")}, nil, nil
}

// ExchangeProfile implements client.Client. The callback state must match
// the nonce issued to the same session when the handshake started; a
// mismatch means the code was not requested by this session (login CSRF) and
// yields a nil profile before any provider round trip. The verified code is
// then traded for tokens and the ID token claims become the profile. A code
// the provider rejects also yields a nil profile, not an error.
func (c *Client) ExchangeProfile(ctx context.Context, creds *client.Credentials, req *client.Request) (*profile.Profile, *client.HTTPAction, error) {
	if !c.consumeState(req, creds.Secret) {
		log.Printf("oidc client %s: rejecting callback with unknown or mismatched state", c.name)
		return nil, nil, nil
	}

	tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](ctx, creds.Token, c.rp)
	if err != nil {
		log.Printf("oidc client %s: code exchange rejected: %v", c.name, err)
		return nil, nil, nil
	}
	return c.profileFromClaims(tokens.IDTokenClaims), nil, nil
}

// RedirectAction implements client.Client. The state nonce is bound to the
// caller's session so the callback can prove the handshake originated here.
func (c *Client) RedirectAction(_ context.Context, req *client.Request, ajax bool) (*client.RedirectAction, error) {
	state, err := c.issueState(req)
	if err != nil {
		return nil, err
	}
	authURL := rp.AuthURL(state, c.rp)
	if ajax {
		content := fmt.Sprintf(
			`<div class="authgate-challenge">authentication required: <a href="%s">sign in with %s</a></div>`,
			html.EscapeString(authURL), html.EscapeString(c.name))
		return client.NewSuccess(content), nil
	}
	return client.NewRedirect(authURL), nil
}

// issueState generates a fresh state nonce and records it under the session.
// A later handshake for the same session replaces the earlier nonce.
func (c *Client) issueState(req *client.Request) (string, error) {
	if req == nil || req.SessionID == "" {
		return "", client.NewConfigError("oidc client %q requires a session to bind the state nonce", c.name)
	}
	state := uuid.NewString()
	c.states.Add(req.SessionID, state)
	return state, nil
}

// consumeState redeems the nonce issued to the session. Valid exactly once;
// a replayed, foreign or absent state fails.
func (c *Client) consumeState(req *client.Request, state string) bool {
	if req == nil || req.SessionID == "" || state == "" {
		return false
	}
	issued, ok := c.states.Get(req.SessionID)
	if !ok || issued != state {
		return false
	}
	c.states.Remove(req.SessionID)
	return true
}

func (c *Client) profileFromClaims(claims *oidc.IDTokenClaims) *profile.Profile {
	p := profile.New(claims.Subject)
	p.AddAttribute("issuer", claims.Issuer)
	p.AddAttribute("email", claims.Email)
	p.AddAttribute("name", claims.Name)
	p.AddAttribute("preferred_username", claims.PreferredUsername)
	for name, value := range claims.Claims {
		p.AddAttribute(name, value)
	}
	if c.rolesClaim != "" {
		p.AddRoles(rolesFromClaim(claims.Claims[c.rolesClaim]))
	}
	return p
}

// rolesFromClaim accepts the two shapes providers emit role lists in: a JSON
// string array decoded as []any, or a native []string.
func rolesFromClaim(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	default:
		return nil
	}
}
