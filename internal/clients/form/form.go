// Package form provides a stateful login-form client: unauthenticated
// browsers are redirected to a login page, and the credentials posted back
// on the callback are checked against a password verifier.
package form

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"

	"golang.org/x/crypto/bcrypt"

	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/profile"
)

const (
	defaultUsernameParam = "username"
	defaultPasswordParam = "password"
)

// Verifier checks a username/password pair and returns the matching profile,
// or nil when the credentials do not authenticate anyone.
type Verifier interface {
	Verify(ctx context.Context, username, password string) (*profile.Profile, error)
}

// Client is the form-login client.
type Client struct {
	name          string
	loginURL      string
	usernameParam string
	passwordParam string
	verifier      Verifier
}

// Option customises the form client.
type Option func(*Client)

// WithFieldNames overrides the form field names carrying the credentials.
func WithFieldNames(username, password string) Option {
	return func(c *Client) {
		if username != "" {
			c.usernameParam = username
		}
		if password != "" {
			c.passwordParam = password
		}
	}
}

// New creates a form client redirecting to loginURL and verifying posted
// credentials with the given verifier.
func New(name, loginURL string, verifier Verifier, opts ...Option) *Client {
	c := &Client{
		name:          name,
		loginURL:      loginURL,
		usernameParam: defaultUsernameParam,
		passwordParam: defaultPasswordParam,
		verifier:      verifier,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements client.Client.
func (c *Client) Name() string { return c.name }

// ExtractCredentials implements client.Client. Credentials only travel on a
// form POST; anything else means the browser has not been through the login
// page yet.
func (c *Client) ExtractCredentials(_ context.Context, req *client.Request) (*client.Credentials, *client.HTTPAction, error) {
	if req == nil || req.Method != http.MethodPost {
		return nil, nil, nil
	}
	username := req.FormValue(c.usernameParam)
	password := req.FormValue(c.passwordParam)
	if username == "" || password == "" {
		return nil, nil, nil
	}
	return &client.Credentials{Token: username, Secret: password}, nil, nil
}

// ExchangeProfile implements client.Client.
func (c *Client) ExchangeProfile(ctx context.Context, creds *client.Credentials, _ *client.Request) (*profile.Profile, *client.HTTPAction, error) {
	p, err := c.verifier.Verify(ctx, creds.Token, creds.Secret)
	if err != nil {
		return nil, nil, fmt.Errorf("verify credentials: %w", err)
	}
	return p, nil, nil
}

// RedirectAction implements client.Client. Browsers are redirected to the
// login page; ajax callers get inline content naming it instead, since an
// XHR cannot usefully follow a login redirect.
func (c *Client) RedirectAction(_ context.Context, _ *client.Request, ajax bool) (*client.RedirectAction, error) {
	if c.loginURL == "" {
		return nil, client.NewConfigError("form client %q has no login url", c.name)
	}
	target := c.loginURL
	if parsed, err := url.Parse(c.loginURL); err == nil {
		q := parsed.Query()
		q.Set("client_name", c.name)
		parsed.RawQuery = q.Encode()
		target = parsed.String()
	}

	if ajax {
		content := fmt.Sprintf(
			`<div class="authgate-challenge">authentication required: <a href="%s">log in</a></div>`,
			html.EscapeString(target))
		return client.NewSuccess(content), nil
	}
	return client.NewRedirect(target), nil
}

// StaticVerifier verifies credentials against an in-memory account table
// with bcrypt password hashes. Suited to tests and small deployments.
type StaticVerifier struct {
	accounts map[string]StaticAccount
}

// StaticAccount is one entry in a StaticVerifier.
type StaticAccount struct {
	// PasswordHash is the bcrypt hash of the account password.
	PasswordHash string
	// Roles are granted to the profile on successful login.
	Roles []string
	// Attributes are copied onto the profile.
	Attributes map[string]any
}

// NewStaticVerifier builds a verifier over a username-keyed account table.
func NewStaticVerifier(accounts map[string]StaticAccount) *StaticVerifier {
	return &StaticVerifier{accounts: accounts}
}

// HashPassword produces a bcrypt hash suitable for StaticAccount.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify implements Verifier. Unknown users and wrong passwords both yield a
// nil profile; bcrypt comparison keeps the two cases indistinguishable in
// timing where it matters.
func (v *StaticVerifier) Verify(_ context.Context, username, password string) (*profile.Profile, error) {
	account, ok := v.accounts[username]
	if !ok {
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}

	p := profile.New(username)
	p.AddAttribute("username", username)
	for name, value := range account.Attributes {
		p.AddAttribute(name, value)
	}
	p.AddRoles(account.Roles)
	return p, nil
}
