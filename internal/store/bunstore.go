package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/leleuj/authgate/internal/profile"
)

// BunStore implements SessionStore on a SQL database via Bun.
type BunStore struct {
	db *bun.DB
}

// NewBunStore creates a SQL-backed session store.
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// CreateTables ensures the store's tables exist. Intended for startup and
// tests; production deployments may prefer explicit migrations.
func (s *BunStore) CreateTables(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*SessionProfile)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create session_profiles table: %w", err)
	}
	if _, err := s.db.NewCreateTable().
		Model((*RequestedURL)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create requested_urls table: %w", err)
	}
	return nil
}

// GetProfile implements SessionStore. A missing row is a miss, not an error.
func (s *BunStore) GetProfile(ctx context.Context, sessionID string) (*profile.Profile, error) {
	row := new(SessionProfile)
	err := s.db.NewSelect().
		Model(row).
		Where("session_id = ?", sessionID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session profile: %w", err)
	}

	p := profile.New(row.ProfileID)
	for name, value := range row.Attributes {
		p.AddAttribute(name, value)
	}
	p.AddRoles(row.Roles)
	return p, nil
}

// SaveProfile implements SessionStore with an upsert; last writer wins.
func (s *BunStore) SaveProfile(ctx context.Context, sessionID string, p *profile.Profile) error {
	row := &SessionProfile{
		SessionID:  sessionID,
		ProfileID:  p.ID,
		Attributes: AttributeMap(p.Attributes),
		Roles:      RoleList(p.Roles),
		UpdatedAt:  time.Now(),
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("profile_id = EXCLUDED.profile_id").
		Set("attributes = EXCLUDED.attributes").
		Set("roles = EXCLUDED.roles").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save session profile: %w", err)
	}
	return nil
}

// DeleteProfile implements SessionStore.
func (s *BunStore) DeleteProfile(ctx context.Context, sessionID string) error {
	_, err := s.db.NewDelete().
		Model((*SessionProfile)(nil)).
		Where("session_id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session profile: %w", err)
	}
	return nil
}

// SaveRequestedURL implements SessionStore.
func (s *BunStore) SaveRequestedURL(ctx context.Context, sessionID, clientName, url string) error {
	row := &RequestedURL{
		SessionID:  sessionID,
		ClientName: clientName,
		URL:        url,
		UpdatedAt:  time.Now(),
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (session_id, client_name) DO UPDATE").
		Set("url = EXCLUDED.url").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save requested url: %w", err)
	}
	return nil
}

// GetRequestedURL implements SessionStore.
func (s *BunStore) GetRequestedURL(ctx context.Context, sessionID, clientName string) (string, error) {
	row := new(RequestedURL)
	err := s.db.NewSelect().
		Model(row).
		Where("session_id = ?", sessionID).
		Where("client_name = ?", clientName).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get requested url: %w", err)
	}
	return row.URL, nil
}
