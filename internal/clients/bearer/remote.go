package bearer

import (
	"context"
	"fmt"
	"log"

	"github.com/xenitab/go-oidc-middleware/oidctoken"
	"github.com/xenitab/go-oidc-middleware/options"

	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/profile"
)

// RemoteClient validates bearer tokens against a remote OIDC issuer using
// its published JWKS. Signature, expiry, issuer and audience checks are
// delegated to go-oidc-middleware's token handler.
type RemoteClient struct {
	name    string
	cfg     Config
	handler *oidctoken.TokenHandler[map[string]any]
}

// NewRemote creates a JWKS-validating bearer client for the given issuer.
func NewRemote(name string, cfg Config) (*RemoteClient, error) {
	if cfg.Issuer == "" {
		return nil, client.NewConfigError("remote bearer client %q requires an issuer", name)
	}

	oidcOpts := []options.Option{
		options.WithIssuer(cfg.Issuer),
		options.WithLazyLoadJwks(true),
	}
	if cfg.Audience != "" {
		oidcOpts = append(oidcOpts, options.WithRequiredAudience(cfg.Audience))
	}

	handler, err := oidctoken.New[map[string]any](nil, oidcOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise oidc token handler: %w", err)
	}
	return &RemoteClient{name: name, cfg: cfg, handler: handler}, nil
}

// Name implements client.Client.
func (c *RemoteClient) Name() string { return c.name }

// ExtractCredentials implements client.Client.
func (c *RemoteClient) ExtractCredentials(_ context.Context, req *client.Request) (*client.Credentials, *client.HTTPAction, error) {
	token := extractToken(req, c.cfg.header(), c.cfg.prefix())
	if token == "" {
		return nil, nil, nil
	}
	return &client.Credentials{Token: token}, nil, nil
}

// ExchangeProfile implements client.Client. Validation failures are
// authentication failures; only transport-level trouble reaching the JWKS
// endpoint would have surfaced at construction or inside the handler.
func (c *RemoteClient) ExchangeProfile(ctx context.Context, creds *client.Credentials, _ *client.Request) (*profile.Profile, *client.HTTPAction, error) {
	claims, err := c.handler.ParseToken(ctx, creds.Token)
	if err != nil {
		log.Printf("bearer: remote token rejected by issuer %s: %v", c.cfg.Issuer, err)
		return nil, nil, nil
	}
	return ProfileFromClaims(claims, c.cfg.rolesClaim()), nil, nil
}

// RedirectAction implements client.Client.
func (c *RemoteClient) RedirectAction(context.Context, *client.Request, bool) (*client.RedirectAction, error) {
	return nil, client.NewConfigError("bearer client %q cannot start a handshake", c.name)
}
