package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/leleuj/authgate/internal/profile"
)

const (
	// DefaultSessionTTL bounds how long a stored profile survives without
	// being refreshed by a new save.
	DefaultSessionTTL = 12 * time.Hour

	// defaultMaxSessions caps the in-memory store so an unauthenticated
	// crawler cannot grow it without bound.
	defaultMaxSessions = 65536
)

// MemoryStore keeps profiles and requested URLs in expiring LRU caches.
// Safe for concurrent use.
type MemoryStore struct {
	profiles *expirable.LRU[string, *profile.Profile]
	urls     *expirable.LRU[string, string]
}

// NewMemoryStore builds an in-memory store. A non-positive ttl falls back to
// DefaultSessionTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStore{
		profiles: expirable.NewLRU[string, *profile.Profile](defaultMaxSessions, nil, ttl),
		urls:     expirable.NewLRU[string, string](defaultMaxSessions, nil, ttl),
	}
}

// GetProfile implements SessionStore.
func (s *MemoryStore) GetProfile(_ context.Context, sessionID string) (*profile.Profile, error) {
	p, ok := s.profiles.Get(sessionID)
	if !ok {
		return nil, nil
	}
	return p, nil
}

// SaveProfile implements SessionStore.
func (s *MemoryStore) SaveProfile(_ context.Context, sessionID string, p *profile.Profile) error {
	s.profiles.Add(sessionID, p)
	return nil
}

// DeleteProfile implements SessionStore.
func (s *MemoryStore) DeleteProfile(_ context.Context, sessionID string) error {
	s.profiles.Remove(sessionID)
	return nil
}

// SaveRequestedURL implements SessionStore.
func (s *MemoryStore) SaveRequestedURL(_ context.Context, sessionID, clientName, url string) error {
	s.urls.Add(urlKey(sessionID, clientName), url)
	return nil
}

// GetRequestedURL implements SessionStore.
func (s *MemoryStore) GetRequestedURL(_ context.Context, sessionID, clientName string) (string, error) {
	url, ok := s.urls.Get(urlKey(sessionID, clientName))
	if !ok {
		return "", nil
	}
	return url, nil
}

func urlKey(sessionID, clientName string) string {
	return sessionID + "\x00" + clientName
}
