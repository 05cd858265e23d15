// Package authz provides authorizers applied after the gate has
// authenticated a request. The gate's own role check covers the common case;
// these cover route policies (Casbin) and attribute rules (go-bexpr).
package authz

import (
	"context"

	"github.com/leleuj/authgate/internal/gate"
	"github.com/leleuj/authgate/internal/profile"
)

// Authorizer decides whether an authenticated profile may access the
// request. Returning false yields the gate's 403 result; an error is a
// collaborator failure, not a denial.
type Authorizer interface {
	Authorize(ctx context.Context, rc *gate.RequestContext, p *profile.Profile) (bool, error)
}

// Func adapts a plain function to the Authorizer interface.
type Func func(ctx context.Context, rc *gate.RequestContext, p *profile.Profile) (bool, error)

// Authorize implements Authorizer.
func (f Func) Authorize(ctx context.Context, rc *gate.RequestContext, p *profile.Profile) (bool, error) {
	return f(ctx, rc, p)
}

// RequireAnyRole authorizes profiles holding at least one of the roles.
func RequireAnyRole(roles ...string) Authorizer {
	return Func(func(_ context.Context, _ *gate.RequestContext, p *profile.Profile) (bool, error) {
		return p.HasAnyRole(roles), nil
	})
}

// RequireAllRoles authorizes profiles holding every one of the roles.
func RequireAllRoles(roles ...string) Authorizer {
	return Func(func(_ context.Context, _ *gate.RequestContext, p *profile.Profile) (bool, error) {
		return p.HasAllRoles(roles), nil
	})
}
