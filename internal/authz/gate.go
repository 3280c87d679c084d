package authz

import (
	"github.com/nimbusdesk/console/internal/models"
)

// Gate decides visibility of UI affordances. It is a pure projection of the
// resolver and never a security boundary: every operation it decorates is
// independently re-checked server-side before it executes.
type Gate struct {
	resolver *Resolver
}

// NewGate creates a gate over the given resolver.
func NewGate(resolver *Resolver) *Gate {
	return &Gate{resolver: resolver}
}

// IsVisible reports whether an affordance guarded by the given tokens should
// be rendered for the principal. With matchAll false (the default for menus),
// holding any one token is enough; with matchAll true every token is required.
// No required permissions means visible to everyone active.
func (g *Gate) IsVisible(p models.Principal, required []string, matchAll bool) bool {
	if !p.IsActive {
		return false
	}
	if len(required) == 0 {
		return true
	}
	if matchAll {
		return g.resolver.HasAll(p, required...)
	}
	return g.resolver.HasAny(p, required...)
}
