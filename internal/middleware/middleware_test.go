package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leleuj/authgate/internal/authz"
	"github.com/leleuj/authgate/internal/client"
	"github.com/leleuj/authgate/internal/gate"
	"github.com/leleuj/authgate/internal/profile"
	"github.com/leleuj/authgate/internal/store"
)

// fakeClient is a scriptable client for transport-level tests.
type fakeClient struct {
	name     string
	creds    *client.Credentials
	profile  *profile.Profile
	redirect *client.RedirectAction
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) ExtractCredentials(_ context.Context, _ *client.Request) (*client.Credentials, *client.HTTPAction, error) {
	return f.creds, nil, nil
}

func (f *fakeClient) ExchangeProfile(_ context.Context, _ *client.Credentials, _ *client.Request) (*profile.Profile, *client.HTTPAction, error) {
	return f.profile, nil, nil
}

func (f *fakeClient) RedirectAction(_ context.Context, _ *client.Request, ajax bool) (*client.RedirectAction, error) {
	if f.redirect == nil {
		return nil, client.NewConfigError("client %q cannot start a handshake", f.name)
	}
	if ajax {
		return client.NewSuccess("<div>authentication required</div>"), nil
	}
	return f.redirect, nil
}

func newTestGate(t *testing.T, c client.Client) (*gate.Gate, store.SessionStore) {
	t.Helper()
	registry := client.NewRegistry(c)
	sessions := store.NewMemoryStore(0)
	return gate.New(registry, sessions), sessions
}

func okHandler(t *testing.T, wantProfile bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := gate.ProfileFromContext(r.Context())
		if wantProfile {
			assert.True(t, ok)
			assert.NotNil(t, p)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("protected content"))
	})
}

func TestSecureStatelessWithoutCredentialsIs401(t *testing.T) {
	g, _ := newTestGate(t, &fakeClient{name: "bearer"})
	handler := Secure(g, gate.RouteConfig{ClientName: "bearer", Stateless: true})(okHandler(t, false))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "401")
}

func TestSecureStatelessAuthenticatedReachesHandler(t *testing.T) {
	p := profile.New("user-1")
	p.AddRole("admin")
	g, _ := newTestGate(t, &fakeClient{
		name:    "bearer",
		creds:   &client.Credentials{Token: "tok"},
		profile: p,
	})
	handler := Secure(g, gate.RouteConfig{ClientName: "bearer", Stateless: true, RequireAnyRole: []string{"admin"}})(okHandler(t, true))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "protected content", rec.Body.String())
}

func TestSecureStatefulRedirectsToProvider(t *testing.T) {
	g, sessions := newTestGate(t, &fakeClient{
		name:     "oidc",
		redirect: client.NewRedirect("https://idp.example.com/authorize"),
	})
	handler := Secure(g, gate.RouteConfig{ClientName: "oidc"})(okHandler(t, false))

	req := httptest.NewRequest(http.MethodGet, "/private/page", nil)
	req.AddCookie(&http.Cookie{Name: gate.SessionCookieName, Value: "S1"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp.example.com/authorize", rec.Header().Get("Location"))

	saved, err := sessions.GetRequestedURL(context.Background(), "S1", "oidc")
	require.NoError(t, err)
	assert.Equal(t, "/private/page", saved)
}

func TestSecureStatefulSessionProfileReachesHandler(t *testing.T) {
	g, sessions := newTestGate(t, &fakeClient{name: "oidc"})

	p := profile.New("user-1")
	require.NoError(t, sessions.SaveProfile(context.Background(), "S1", p))

	handler := Secure(g, gate.RouteConfig{ClientName: "oidc"})(okHandler(t, true))

	req := httptest.NewRequest(http.MethodGet, "/private/page", nil)
	req.AddCookie(&http.Cookie{Name: gate.SessionCookieName, Value: "S1"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecureForbiddenOnMissingRole(t *testing.T) {
	g, sessions := newTestGate(t, &fakeClient{name: "oidc"})

	p := profile.New("user-1")
	p.AddRole("viewer")
	require.NoError(t, sessions.SaveProfile(context.Background(), "S1", p))

	downstream := 0
	handler := Secure(g, gate.RouteConfig{ClientName: "oidc", RequireAnyRole: []string{"admin"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { downstream++ }))

	req := httptest.NewRequest(http.MethodGet, "/private/page", nil)
	req.AddCookie(&http.Cookie{Name: gate.SessionCookieName, Value: "S1"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, downstream)
}

func TestSecureAuthorizerDenies(t *testing.T) {
	g, sessions := newTestGate(t, &fakeClient{name: "oidc"})
	require.NoError(t, sessions.SaveProfile(context.Background(), "S1", profile.New("user-1")))

	deny := authz.Func(func(_ context.Context, _ *gate.RequestContext, _ *profile.Profile) (bool, error) {
		return false, nil
	})
	handler := Secure(g, gate.RouteConfig{ClientName: "oidc"}, WithAuthorizers(deny))(okHandler(t, true))

	req := httptest.NewRequest(http.MethodGet, "/private/page", nil)
	req.AddCookie(&http.Cookie{Name: gate.SessionCookieName, Value: "S1"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSecureConfigErrorIs500(t *testing.T) {
	g, _ := newTestGate(t, &fakeClient{name: "oidc"})
	handler := Secure(g, gate.RouteConfig{ClientName: "missing"})(okHandler(t, false))

	req := httptest.NewRequest(http.MethodGet, "/private/page", nil)
	req.AddCookie(&http.Cookie{Name: gate.SessionCookieName, Value: "S1"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSessionCookieIssuesToken(t *testing.T) {
	var seen string
	handler := SessionCookie(SessionCookieOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, ok := gate.SessionIDFromContext(r.Context())
		require.True(t, ok)
		seen = sid
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private/page", nil))

	require.NotEmpty(t, seen)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, gate.SessionCookieName, cookies[0].Name)
	assert.Equal(t, seen, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestSessionCookieReusesExisting(t *testing.T) {
	handler := SessionCookie(SessionCookieOptions{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, ok := gate.SessionIDFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "S1", sid)
	}))

	req := httptest.NewRequest(http.MethodGet, "/private/page", nil)
	req.AddCookie(&http.Cookie{Name: gate.SessionCookieName, Value: "S1"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Result().Cookies())
}
