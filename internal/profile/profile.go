package profile

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Profile is the authenticated identity record produced by a client exchange
// or retrieved from the session store. The gate only reads it; attribute and
// role mutation happens at construction time inside the clients.
type Profile struct {
	// ID is the stable identifier of the principal (e.g. the OIDC subject).
	ID string
	// Attributes holds provider-supplied identity attributes keyed by name.
	Attributes map[string]any
	// Roles lists the role names granted to the principal.
	Roles []string
}

// New creates an empty profile for the given principal identifier.
func New(id string) *Profile {
	return &Profile{
		ID:         id,
		Attributes: make(map[string]any),
	}
}

// AddAttribute records an identity attribute. A nil value is ignored.
func (p *Profile) AddAttribute(name string, value any) {
	if value == nil {
		return
	}
	if p.Attributes == nil {
		p.Attributes = make(map[string]any)
	}
	p.Attributes[name] = value
}

// Attribute returns the named attribute, or nil when absent.
func (p *Profile) Attribute(name string) any {
	if p.Attributes == nil {
		return nil
	}
	return p.Attributes[name]
}

// StringAttribute returns the named attribute when it is a non-empty string.
func (p *Profile) StringAttribute(name string) (string, bool) {
	value, ok := p.Attribute(name).(string)
	return value, ok && value != ""
}

// DecodeAttributes decodes the attribute map into a typed struct.
func (p *Profile) DecodeAttributes(out any) error {
	if err := mapstructure.Decode(p.Attributes, out); err != nil {
		return fmt.Errorf("decode profile attributes: %w", err)
	}
	return nil
}

// AddRole grants a role. Duplicates are dropped.
func (p *Profile) AddRole(role string) {
	if role == "" || p.HasRole(role) {
		return
	}
	p.Roles = append(p.Roles, role)
}

// AddRoles grants every role in the list.
func (p *Profile) AddRoles(roles []string) {
	for _, role := range roles {
		p.AddRole(role)
	}
}

// HasRole reports whether the profile holds the role. Matching is
// case-sensitive and exact; there are no wildcard semantics.
func (p *Profile) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the profile holds at least one of the roles.
// An empty requirement is vacuously satisfied.
func (p *Profile) HasAnyRole(roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the profile holds every role in the list.
// An empty requirement is vacuously satisfied.
func (p *Profile) HasAllRoles(roles []string) bool {
	for _, role := range roles {
		if !p.HasRole(role) {
			return false
		}
	}
	return true
}

// HasAccess combines the two role requirements attached to a protected route:
// the profile must hold at least one of anyRoles and all of allRoles.
func (p *Profile) HasAccess(anyRoles, allRoles []string) bool {
	return p.HasAnyRole(anyRoles) && p.HasAllRoles(allRoles)
}
