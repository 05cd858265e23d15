// Package config loads the gate's runtime configuration from environment
// variables.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	// ServerAddr is the bind address (host:port).
	ServerAddr string

	// DatabaseURL selects the session store backend. Empty means the
	// in-memory store; a postgres:// DSN or a sqlite path selects the
	// database-backed store.
	DatabaseURL string

	// SessionTTL bounds session cookie and stored profile lifetime.
	SessionTTL time.Duration

	// SecureCookies marks session cookies HTTPS-only.
	SecureCookies bool

	// DefaultClient names the client used when a route or callback does not
	// name one.
	DefaultClient string

	// PostLoginURL and PostLogoutURL are the landing pages after a completed
	// handshake with no saved URL, and after logout.
	PostLoginURL  string
	PostLogoutURL string

	// UnauthorizedPage and ForbiddenPage override the built-in 401/403 page
	// content when set.
	UnauthorizedPage string
	ForbiddenPage    string

	// CasbinModelPath points at the Casbin model file. Empty disables the
	// policy authorizer.
	CasbinModelPath string

	// Bearer configures the stateless bearer-token client.
	Bearer BearerConfig

	// OIDC configures the stateful authorization-code client. Nil when no
	// external provider is configured.
	OIDC *OIDCConfig

	// Form configures the login-form client.
	Form FormConfig

	// Debug enables verbose logging.
	Debug bool
}

// BearerConfig configures bearer-token validation. Exactly one of SigningKey
// (local HMAC validation) or Issuer (remote JWKS validation) should be set;
// both empty disables the client.
type BearerConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	RolesClaim string
}

// Enabled reports whether a bearer client should be registered.
func (c BearerConfig) Enabled() bool {
	return c.SigningKey != "" || c.Issuer != ""
}

// OIDCConfig configures the relying party for an external identity provider.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	RolesClaim   string
}

// FormConfig configures the login-form client.
type FormConfig struct {
	// LoginURL is where unauthenticated browsers are sent. Empty disables
	// the client.
	LoginURL string
	// Users maps username to bcrypt password hash, "user:hash" pairs in the
	// environment variable.
	Users map[string]string
}

// Enabled reports whether a form client should be registered.
func (c FormConfig) Enabled() bool {
	return c.LoginURL != ""
}

// Load reads configuration from environment variables with fallback defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr:       getEnv("SERVER_ADDR", "localhost:8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		SessionTTL:       getEnvDuration("SESSION_TTL", 12*time.Hour),
		SecureCookies:    getEnvBool("SECURE_COOKIES", false),
		DefaultClient:    getEnv("DEFAULT_CLIENT", ""),
		PostLoginURL:     getEnv("POST_LOGIN_URL", "/"),
		PostLogoutURL:    getEnv("POST_LOGOUT_URL", "/"),
		UnauthorizedPage: getEnv("UNAUTHORIZED_PAGE", ""),
		ForbiddenPage:    getEnv("FORBIDDEN_PAGE", ""),
		CasbinModelPath:  getEnv("CASBIN_MODEL_PATH", ""),
		Bearer: BearerConfig{
			SigningKey: getEnv("BEARER_SIGNING_KEY", ""),
			Issuer:     getEnv("BEARER_ISSUER", ""),
			Audience:   getEnv("BEARER_AUDIENCE", ""),
			RolesClaim: getEnv("BEARER_ROLES_CLAIM", "roles"),
		},
		OIDC: loadOIDCConfig(),
		Form: FormConfig{
			LoginURL: getEnv("FORM_LOGIN_URL", ""),
			Users:    parseUserList(getEnv("FORM_USERS", "")),
		},
		Debug: getEnvBool("DEBUG", false),
	}

	if cfg.Bearer.SigningKey != "" && cfg.Bearer.Issuer != "" {
		return nil, fmt.Errorf("bearer config error: BEARER_SIGNING_KEY and BEARER_ISSUER are mutually exclusive; pick local or remote validation")
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}

	return cfg, nil
}

// loadOIDCConfig returns nil when no external provider is configured.
func loadOIDCConfig() *OIDCConfig {
	issuer := getEnv("OIDC_ISSUER", "")
	if issuer == "" {
		return nil
	}
	return &OIDCConfig{
		Issuer:       issuer,
		ClientID:     getEnv("OIDC_CLIENT_ID", ""),
		ClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
		RedirectURI:  getEnv("OIDC_REDIRECT_URI", ""),
		Scopes:       splitList(getEnv("OIDC_SCOPES", "")),
		RolesClaim:   getEnv("OIDC_ROLES_CLAIM", "groups"),
	}
}

// parseUserList parses comma-separated "user:bcrypthash" pairs.
func parseUserList(raw string) map[string]string {
	users := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, hash, ok := strings.Cut(pair, ":")
		if !ok || name == "" || hash == "" {
			continue
		}
		users[name] = hash
	}
	return users
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns a
// default value. Malformed values are logged and fall back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
		log.Printf("config: invalid duration %q for %s, using default %s", value, key, defaultValue)
	}
	return defaultValue
}
