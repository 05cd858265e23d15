package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/profile"
)

// mockStore records every interaction so tests can assert on call ordering
// and on the store never being touched.
type mockStore struct {
	profiles map[string]*profile.Profile
	urls     map[string]string
	events   []string

	getProfileErr error
	saveURLErr    error
}

func newMockStore() *mockStore {
	return &mockStore{
		profiles: make(map[string]*profile.Profile),
		urls:     make(map[string]string),
	}
}

func (s *mockStore) GetProfile(_ context.Context, sessionID string) (*profile.Profile, error) {
	s.events = append(s.events, "get-profile")
	if s.getProfileErr != nil {
		return nil, s.getProfileErr
	}
	return s.profiles[sessionID], nil
}

func (s *mockStore) SaveProfile(_ context.Context, sessionID string, p *profile.Profile) error {
	s.events = append(s.events, "save-profile")
	s.profiles[sessionID] = p
	return nil
}

func (s *mockStore) DeleteProfile(_ context.Context, sessionID string) error {
	delete(s.profiles, sessionID)
	return nil
}

func (s *mockStore) SaveRequestedURL(_ context.Context, sessionID, clientName, url string) error {
	s.events = append(s.events, "save-url")
	if s.saveURLErr != nil {
		return s.saveURLErr
	}
	s.urls[sessionID+"|"+clientName] = url
	return nil
}

func (s *mockStore) GetRequestedURL(_ context.Context, sessionID, clientName string) (string, error) {
	return s.urls[sessionID+"|"+clientName], nil
}

// mockClient is a scriptable authentication client.
type mockClient struct {
	name string

	credentials   *client.Credentials
	extractAction *client.HTTPAction
	extractErr    error

	profile        *profile.Profile
	exchangeAction *client.HTTPAction
	exchangeErr    error

	redirectAction *client.RedirectAction
	redirectErr    error
	onRedirect     func()
}

func (c *mockClient) Name() string { return c.name }

func (c *mockClient) ExtractCredentials(context.Context, *client.Request) (*client.Credentials, *client.HTTPAction, error) {
	return c.credentials, c.extractAction, c.extractErr
}

func (c *mockClient) ExchangeProfile(context.Context, *client.Credentials, *client.Request) (*profile.Profile, *client.HTTPAction, error) {
	return c.profile, c.exchangeAction, c.exchangeErr
}

func (c *mockClient) RedirectAction(_ context.Context, _ *client.Request, ajax bool) (*client.RedirectAction, error) {
	if c.onRedirect != nil {
		c.onRedirect()
	}
	if c.redirectErr != nil {
		return nil, c.redirectErr
	}
	if ajax && c.redirectAction != nil && c.redirectAction.Type == client.RedirectActionRedirect {
		return client.NewSuccess("<div>authentication required</div>"), nil
	}
	return c.redirectAction, nil
}

func newGate(c *mockClient, s *mockStore) *Gate {
	return New(client.NewRegistry(c), s)
}

func noDownstream(t *testing.T) Handler {
	t.Helper()
	return func(context.Context, *RequestContext) (*Result, error) {
		t.Fatal("downstream handler must not be invoked")
		return nil, nil
	}
}

func TestStatelessAbsentProfileYields401(t *testing.T) {
	// Stateless callers never get a redirect, regardless of client capability.
	c := &mockClient{
		name:           "bearer",
		redirectAction: client.NewRedirect("https://idp.example.org/login"),
	}
	s := newMockStore()
	g := newGate(c, s)

	rc := &RequestContext{ClientName: "bearer", Stateless: true}
	res, err := g.Handle(context.Background(), rc, noDownstream(t))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Empty(t, res.Location)
	assert.Contains(t, string(res.Body), "401")
	assert.Empty(t, s.events, "session store must never be touched on the stateless path")
}

func TestStatelessNullProfileWithoutErrorIs401(t *testing.T) {
	// A client returning credentials but a nil profile is treated as plain
	// authentication failure, not a fatal error.
	c := &mockClient{
		name:        "bearer",
		credentials: &client.Credentials{Token: "garbage"},
	}
	s := newMockStore()
	g := newGate(c, s)

	rc := &RequestContext{ClientName: "bearer", Stateless: true}
	res, err := g.Handle(context.Background(), rc, noDownstream(t))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Empty(t, s.events)
}

func TestStatefulAbsentProfileSavesURLThenRedirects(t *testing.T) {
	c := &mockClient{
		name:           "facebook",
		redirectAction: client.NewRedirect("https://facebook.example.org/oauth"),
	}
	s := newMockStore()
	urlSavedBeforeRedirect := false
	c.onRedirect = func() {
		_, ok := s.urls["S1|facebook"]
		urlSavedBeforeRedirect = ok
	}
	g := newGate(c, s)

	r := httptest.NewRequest(http.MethodGet, "/private/page", nil)
	rc := FromHTTP(r, RouteConfig{ClientName: "facebook"})
	rc.SessionID = "S1"

	res, err := g.Handle(context.Background(), rc, noDownstream(t))
	require.NoError(t, err)

	assert.Equal(t, http.StatusFound, res.Status)
	assert.Equal(t, "https://facebook.example.org/oauth", res.Location)
	assert.True(t, urlSavedBeforeRedirect, "requested URL must be persisted before the redirect is issued")

	saved, err := s.GetRequestedURL(context.Background(), "S1", "facebook")
	require.NoError(t, err)
	assert.Equal(t, "/private/page", saved)
}

func TestStatefulAbsentProfileHonorsTargetURL(t *testing.T) {
	c := &mockClient{
		name:           "facebook",
		redirectAction: client.NewRedirect("https://facebook.example.org/oauth"),
	}
	s := newMockStore()
	g := newGate(c, s)

	r := httptest.NewRequest(http.MethodGet, "/private/page", nil)
	rc := FromHTTP(r, RouteConfig{ClientName: "facebook", TargetURL: "/after-login"})
	rc.SessionID = "S1"

	_, err := g.Handle(context.Background(), rc, noDownstream(t))
	require.NoError(t, err)

	saved, _ := s.GetRequestedURL(context.Background(), "S1", "facebook")
	assert.Equal(t, "/after-login", saved)
}

func TestStatefulAbsentProfileAjaxSkipsURLButChallenges(t *testing.T) {
	c := &mockClient{
		name:           "facebook",
		redirectAction: client.NewRedirect("https://facebook.example.org/oauth"),
	}
	s := newMockStore()
	g := newGate(c, s)

	r := httptest.NewRequest(http.MethodGet, "/private/page", nil)
	r.Header.Set(AjaxRequestHeader, AjaxRequestValue)
	rc := FromHTTP(r, RouteConfig{ClientName: "facebook"})
	rc.SessionID = "S1"
	require.True(t, rc.Ajax)

	res, err := g.Handle(context.Background(), rc, noDownstream(t))
	require.NoError(t, err)

	assert.NotContains(t, s.events, "save-url")
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, string(res.Body), "authentication required")
}

func TestStatefulAbsentProfileInlineChallenge(t *testing.T) {
	c := &mockClient{
		name:           "cas",
		redirectAction: client.NewSuccess("<form>login</form>"),
	}
	s := newMockStore()
	g := newGate(c, s)

	r := httptest.NewRequest(http.MethodGet, "/private", nil)
	rc := FromHTTP(r, RouteConfig{ClientName: "cas"})
	rc.SessionID = "S1"

	res, err := g.Handle(context.Background(), rc, noDownstream(t))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "<form>login</form>", string(res.Body))
	assert.Equal(t, HTMLContentType, res.ContentType)
}

func TestUnauthorizedProfileYields403WithoutDownstream(t *testing.T) {
	p := profile.New("alice")
	p.AddRole("user")

	for _, stateless := range []bool{true, false} {
		s := newMockStore()
		c := &mockClient{name: "any", credentials: &client.Credentials{Token: "tok"}, profile: p}
		if !stateless {
			s.profiles["S1"] = p
		}
		g := newGate(c, s)

		rc := &RequestContext{
			ClientName:     "any",
			SessionID:      "S1",
			Stateless:      stateless,
			RequireAnyRole: []string{"admin", "editor"},
		}
		res, err := g.Handle(context.Background(), rc, noDownstream(t))
		require.NoError(t, err)

		assert.Equal(t, http.StatusForbidden, res.Status)
		assert.Contains(t, string(res.Body), "403")
	}
}

func TestAuthorizedProfileInvokesDownstreamOnce(t *testing.T) {
	p := profile.New("alice")
	p.AddRole("admin")

	s := newMockStore()
	s.profiles["S1"] = p
	g := newGate(&mockClient{name: "facebook"}, s)

	r := httptest.NewRequest(http.MethodGet, "/private/page", nil)
	rc := FromHTTP(r, RouteConfig{ClientName: "facebook", RequireAnyRole: []string{"admin", "editor"}})
	rc.SessionID = "S1"

	downstream := &Result{Status: http.StatusTeapot, Body: []byte("downstream")}
	calls := 0
	res, err := g.Handle(context.Background(), rc, func(_ context.Context, rc *RequestContext) (*Result, error) {
		calls++
		assert.Same(t, p, rc.Profile)
		return downstream, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Same(t, downstream, res, "downstream result must pass through unmodified")
}

func TestStatefulSuccessPersistsProfileToStore(t *testing.T) {
	p := profile.New("alice")
	s := newMockStore()
	s.profiles["S1"] = p
	g := newGate(&mockClient{name: "facebook"}, s)

	rc := &RequestContext{ClientName: "facebook", SessionID: "S1"}
	_, err := g.Handle(context.Background(), rc, func(context.Context, *RequestContext) (*Result, error) {
		return nil, nil
	})
	require.NoError(t, err)

	assert.Contains(t, s.events, "save-profile")
}

func TestStatelessSuccessIsRequestScopedOnly(t *testing.T) {
	p := profile.New("alice")
	p.AddRole("api")

	c := &mockClient{name: "bearer", credentials: &client.Credentials{Token: "tok"}, profile: p}
	s := newMockStore()
	g := newGate(c, s)

	rc := &RequestContext{ClientName: "bearer", Stateless: true, RequireAllRoles: []string{"api"}}
	_, err := g.Handle(context.Background(), rc, func(_ context.Context, rc *RequestContext) (*Result, error) {
		return nil, nil
	})
	require.NoError(t, err)

	assert.Same(t, p, rc.Profile)
	assert.Empty(t, s.events, "stateless success must not write to the session store")
}

func TestHandshakeActionShortCircuits(t *testing.T) {
	tests := []struct {
		name     string
		action   *client.HTTPAction
		status   int
		location string
		body     string
	}{
		{"unauthorized", client.Unauthorized(), http.StatusUnauthorized, "", "401"},
		{"forbidden", client.Forbidden(), http.StatusForbidden, "", "403"},
		{"redirect", client.Redirect("https://idp.example.org/auth"), http.StatusFound, "https://idp.example.org/auth", ""},
		{"content", client.OK("<form>challenge</form>"), http.StatusOK, "", "challenge"},
	}

	for _, tt := range tests {
		t.Run("extract/"+tt.name, func(t *testing.T) {
			c := &mockClient{name: "bearer", extractAction: tt.action}
			g := newGate(c, newMockStore())

			rc := &RequestContext{ClientName: "bearer", Stateless: true}
			res, err := g.Handle(context.Background(), rc, noDownstream(t))
			require.NoError(t, err)

			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.location, res.Location)
			if tt.body != "" {
				assert.Contains(t, string(res.Body), tt.body)
			}
		})

		t.Run("exchange/"+tt.name, func(t *testing.T) {
			c := &mockClient{
				name:           "bearer",
				credentials:    &client.Credentials{Token: "tok"},
				exchangeAction: tt.action,
			}
			g := newGate(c, newMockStore())

			rc := &RequestContext{ClientName: "bearer", Stateless: true}
			res, err := g.Handle(context.Background(), rc, noDownstream(t))
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestUnsupportedActionCodeIsConfigError(t *testing.T) {
	c := &mockClient{name: "bearer", extractAction: &client.HTTPAction{Code: http.StatusTeapot}}
	g := newGate(c, newMockStore())

	rc := &RequestContext{ClientName: "bearer", Stateless: true}
	_, err := g.Handle(context.Background(), rc, noDownstream(t))
	require.Error(t, err)

	var cfgErr *client.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestUnknownClientIsConfigError(t *testing.T) {
	g := newGate(&mockClient{name: "bearer"}, newMockStore())

	rc := &RequestContext{ClientName: "missing", Stateless: true}
	_, err := g.Handle(context.Background(), rc, noDownstream(t))
	require.Error(t, err)

	var cfgErr *client.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestClientWithoutRedirectActionIsFatal(t *testing.T) {
	c := &mockClient{name: "facebook"}
	s := newMockStore()
	g := newGate(c, s)

	rc := &RequestContext{ClientName: "facebook", SessionID: "S1", RequestURI: "/private"}
	_, err := g.Handle(context.Background(), rc, noDownstream(t))
	require.Error(t, err)

	var cfgErr *client.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestUnexpectedErrorPropagates(t *testing.T) {
	// A crashed identity exchange is not the same observable outcome as
	// "user not logged in": the error must reach the caller untouched.
	boom := errors.New("identity provider unreachable")

	c := &mockClient{name: "bearer", credentials: &client.Credentials{Token: "tok"}, exchangeErr: boom}
	g := newGate(c, newMockStore())

	rc := &RequestContext{ClientName: "bearer", Stateless: true}
	res, err := g.Handle(context.Background(), rc, noDownstream(t))
	require.ErrorIs(t, err, boom)
	assert.Nil(t, res)

	s := newMockStore()
	s.getProfileErr = boom
	g = newGate(c, s)
	rc = &RequestContext{ClientName: "bearer", SessionID: "S1"}
	_, err = g.Handle(context.Background(), rc, noDownstream(t))
	require.ErrorIs(t, err, boom)
}

func TestFromHTTPNormalization(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/private/page?tab=2", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "S1"})

	rc := FromHTTP(r, RouteConfig{
		ClientName:      "facebook",
		RequireAnyRole:  []string{"admin"},
		RequireAllRoles: []string{"user"},
	})

	assert.Equal(t, "S1", rc.SessionID)
	assert.Equal(t, "facebook", rc.ClientName)
	assert.Equal(t, "/private/page?tab=2", rc.RequestedURL())
	assert.False(t, rc.Stateless)
	assert.False(t, rc.Ajax)

	// Stateless routes carry no session id even when a cookie is present.
	rc = FromHTTP(r, RouteConfig{ClientName: "bearer", Stateless: true})
	assert.Empty(t, rc.SessionID)

	// The session middleware's context entry wins over the cookie.
	r2 := httptest.NewRequest(http.MethodGet, "/private", nil)
	r2 = r2.WithContext(SetSessionIDContext(r2.Context(), "S2"))
	rc = FromHTTP(r2, RouteConfig{ClientName: "facebook"})
	assert.Equal(t, "S2", rc.SessionID)
}
