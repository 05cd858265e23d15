// Package bearer provides stateless token clients: one validating locally
// signed HMAC tokens and one validating tokens against a remote issuer's
// JWKS endpoint. Both authenticate per call; neither can start a browser
// handshake.
package bearer

import (
	"context"
	"log"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/profile"
)

const (
	// DefaultHeader is the header credentials are extracted from.
	DefaultHeader = "Authorization"
	// DefaultPrefix is the scheme prefix stripped from the header value.
	DefaultPrefix = "Bearer "
	// DefaultRolesClaim is the claim carrying the role list.
	DefaultRolesClaim = "roles"
)

// Config holds the settings shared by the bearer clients.
type Config struct {
	// Header and Prefix locate the token on the request. Empty values fall
	// back to the Authorization header with the Bearer scheme.
	Header string
	Prefix string
	// Issuer and Audience are enforced on every token when set.
	Issuer   string
	Audience string
	// RolesClaim names the claim carrying the role list (default "roles").
	RolesClaim string
}

func (c *Config) header() string {
	if c.Header == "" {
		return DefaultHeader
	}
	return c.Header
}

func (c *Config) prefix() string {
	if c.Prefix == "" {
		return DefaultPrefix
	}
	return c.Prefix
}

func (c *Config) rolesClaim() string {
	if c.RolesClaim == "" {
		return DefaultRolesClaim
	}
	return c.RolesClaim
}

// JWTClient validates HMAC-signed tokens with a shared secret.
type JWTClient struct {
	name   string
	secret []byte
	cfg    Config
}

// New creates a local-validation bearer client.
func New(name string, secret []byte, cfg Config) *JWTClient {
	return &JWTClient{name: name, secret: secret, cfg: cfg}
}

// Name implements client.Client.
func (c *JWTClient) Name() string { return c.name }

// ExtractCredentials implements client.Client. A missing or differently
// shaped header means no credentials, not a failure.
func (c *JWTClient) ExtractCredentials(_ context.Context, req *client.Request) (*client.Credentials, *client.HTTPAction, error) {
	token := extractToken(req, c.cfg.header(), c.cfg.prefix())
	if token == "" {
		return nil, nil, nil
	}
	return &client.Credentials{Token: token}, nil, nil
}

// ExchangeProfile implements client.Client. An invalid token is an
// authentication failure (nil profile), not an error: the caller simply is
// not logged in.
func (c *JWTClient) ExchangeProfile(_ context.Context, creds *client.Credentials, _ *client.Request) (*profile.Profile, *client.HTTPAction, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}
	if c.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.cfg.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(creds.Token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		log.Printf("bearer: token rejected: %v", err)
		return nil, nil, nil
	}

	return ProfileFromClaims(claims, c.cfg.rolesClaim()), nil, nil
}

// RedirectAction implements client.Client. Bearer clients authenticate per
// call and have no handshake to start.
func (c *JWTClient) RedirectAction(context.Context, *client.Request, bool) (*client.RedirectAction, error) {
	return nil, client.NewConfigError("bearer client %q cannot start a handshake", c.name)
}

// extractToken pulls the raw token off the configured header.
func extractToken(req *client.Request, header, prefix string) string {
	if req == nil || req.Header == nil {
		return ""
	}
	value := req.Header.Get(header)
	if value == "" || !strings.HasPrefix(value, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(value, prefix))
}

// ProfileFromClaims builds a profile from validated JWT claims: the subject
// becomes the id, the configured roles claim becomes the role set, and every
// claim is kept as an attribute.
func ProfileFromClaims(claims map[string]any, rolesClaim string) *profile.Profile {
	sub, _ := claims["sub"].(string)
	p := profile.New(sub)
	for name, value := range claims {
		p.AddAttribute(name, value)
	}
	p.AddRoles(rolesFromClaim(claims[rolesClaim]))
	return p
}

// rolesFromClaim accepts both []any (decoded JSON) and []string shapes.
func rolesFromClaim(raw any) []string {
	switch values := raw.(type) {
	case []string:
		return values
	case []any:
		roles := make([]string, 0, len(values))
		for _, v := range values {
			if s, ok := v.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	default:
		return nil
	}
}
