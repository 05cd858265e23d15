// Package store persists authenticated profiles and resume URLs keyed by
// session identifier. Two implementations are provided: a TTL-bounded
// in-memory store for single-node deployments and tests, and a SQL store
// (SQLite or PostgreSQL) for anything shared.
package store

import (
	"context"

	"github.com/leleuj/authgate/internal/profile"
)

// SessionStore is the gate's view of session persistence. The gate performs
// at most one read and one write per request; concurrent requests for the
// same session id may interleave, and last-writer-wins is acceptable.
type SessionStore interface {
	// GetProfile returns the profile stored for the session, or (nil, nil)
	// when none is stored. A miss is not an error.
	GetProfile(ctx context.Context, sessionID string) (*profile.Profile, error)

	// SaveProfile stores the profile under the session id, replacing any
	// previous one.
	SaveProfile(ctx context.Context, sessionID string, p *profile.Profile) error

	// DeleteProfile removes the stored profile, if any.
	DeleteProfile(ctx context.Context, sessionID string) error

	// SaveRequestedURL remembers the URL to resume after a handshake,
	// keyed by session id and client name.
	SaveRequestedURL(ctx context.Context, sessionID, clientName, url string) error

	// GetRequestedURL returns the remembered URL, or ("", nil) when none
	// was stored for the key.
	GetRequestedURL(ctx context.Context, sessionID, clientName string) (string, error)
}
