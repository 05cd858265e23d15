package authz

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-bexpr"

	"github.com/leleuj/authgate/internal/gate"
	"github.com/leleuj/authgate/internal/profile"
)

// evaluatorCache stores compiled go-bexpr evaluators keyed by expression.
var evaluatorCache = &sync.Map{}

// AttributeRule authorizes profiles whose attributes satisfy a go-bexpr
// expression, e.g. `department == "engineering" and clearance != "none"`.
type AttributeRule struct {
	expr string
}

// NewAttributeRule compiles the expression eagerly so a syntax error
// surfaces at configuration time, not per request.
func NewAttributeRule(expr string) (*AttributeRule, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("attribute rule expression is empty")
	}
	evaluator, err := bexpr.CreateEvaluator(expr)
	if err != nil {
		return nil, fmt.Errorf("compile attribute rule %q: %w", expr, err)
	}
	evaluatorCache.Store(expr, evaluator)
	return &AttributeRule{expr: expr}, nil
}

// Authorize implements Authorizer. An evaluation error (e.g. a referenced
// attribute is absent) denies access rather than failing the request.
func (r *AttributeRule) Authorize(_ context.Context, _ *gate.RequestContext, p *profile.Profile) (bool, error) {
	return EvaluateExpression(r.expr, p.Attributes), nil
}

// EvaluateExpression evaluates a go-bexpr expression against profile
// attributes. An empty expression means no constraint. Compiled evaluators
// are cached per expression.
func EvaluateExpression(expr string, attributes map[string]any) bool {
	if strings.TrimSpace(expr) == "" {
		return true
	}

	var evaluator *bexpr.Evaluator
	if cached, ok := evaluatorCache.Load(expr); ok {
		evaluator = cached.(*bexpr.Evaluator)
	} else {
		created, err := bexpr.CreateEvaluator(expr)
		if err != nil {
			return false
		}
		evaluatorCache.Store(expr, created)
		evaluator = created
	}

	matches, err := evaluator.Evaluate(attributes)
	if err != nil {
		return false
	}
	return matches
}
