package authz

import (
	"context"
	"fmt"
	"net/http"

	"github.com/casbin/casbin/v2"

	"github.com/leleuj/authgate/internal/gate"
	"github.com/leleuj/authgate/internal/profile"
)

// PolicyAuthorizer enforces Casbin policies of the form
// (subject, path, method) after the gate's role check has passed. Role names
// from the profile are enforced alongside the profile id, so policies can be
// granted to either.
type PolicyAuthorizer struct {
	enforcer casbin.IEnforcer
}

// NewPolicyAuthorizer wraps a Casbin enforcer.
func NewPolicyAuthorizer(enforcer casbin.IEnforcer) (*PolicyAuthorizer, error) {
	if enforcer == nil {
		return nil, fmt.Errorf("policy authorizer requires a casbin enforcer")
	}
	return &PolicyAuthorizer{enforcer: enforcer}, nil
}

// Authorize implements Authorizer. Requests without an HTTP request (RPC
// transports) are evaluated against the request URI with an empty method.
func (a *PolicyAuthorizer) Authorize(_ context.Context, rc *gate.RequestContext, p *profile.Profile) (bool, error) {
	path := rc.RequestURI
	method := ""
	if rc.Request != nil {
		path = rc.Request.URL.Path
		method = rc.Request.Method
	}
	if method == "" {
		method = http.MethodGet
	}

	subjects := append([]string{p.ID}, p.Roles...)
	for _, subject := range subjects {
		allowed, err := a.enforcer.Enforce(subject, path, method)
		if err != nil {
			return false, fmt.Errorf("enforce policy for %q: %w", subject, err)
		}
		if allowed {
			return true, nil
		}
	}
	return false, nil
}
