package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// AttributeMap stores profile attributes as a JSON column so the store works
// identically on SQLite and PostgreSQL.
type AttributeMap map[string]any

// Scan implements sql.Scanner.
func (m *AttributeMap) Scan(value any) error {
	if value == nil {
		*m = make(AttributeMap)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan AttributeMap: expected []byte or string, got %T", value)
	}
	return json.Unmarshal(raw, m)
}

// Value implements driver.Valuer.
func (m AttributeMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// RoleList stores the role set as a JSON array column.
type RoleList []string

// Scan implements sql.Scanner.
func (l *RoleList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan RoleList: expected []byte or string, got %T", value)
	}
	return json.Unmarshal(raw, l)
}

// Value implements driver.Valuer.
func (l RoleList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// SessionProfile is one stored profile row, keyed by session id.
type SessionProfile struct {
	bun.BaseModel `bun:"table:session_profiles,alias:sp"`

	SessionID  string       `bun:"session_id,pk"`
	ProfileID  string       `bun:"profile_id,notnull"`
	Attributes AttributeMap `bun:"attributes,notnull,default:'{}'"`
	Roles      RoleList     `bun:"roles,notnull,default:'[]'"`
	UpdatedAt  time.Time    `bun:"updated_at,notnull,default:current_timestamp"`
}

// RequestedURL is one resume-URL row, keyed by session id and client name.
type RequestedURL struct {
	bun.BaseModel `bun:"table:requested_urls,alias:ru"`

	SessionID  string    `bun:"session_id,pk"`
	ClientName string    `bun:"client_name,pk"`
	URL        string    `bun:"url,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
