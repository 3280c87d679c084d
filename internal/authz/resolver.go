package authz

import (
	"github.com/nimbusdesk/console/internal/models"
)

// Resolver answers capability queries for principals against an immutable
// registry. Pure functions over registry state; safe for any number of
// concurrent readers.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver over the given registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Registry returns the underlying registry.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// HasPermission reports whether the principal holds the token, either through
// its role's explicit set or through the universal admin bypass. Inactive
// principals hold nothing.
func (r *Resolver) HasPermission(p models.Principal, token string) bool {
	if !p.IsActive {
		return false
	}
	if r.registry.IsUniversal(p.Role) {
		return true
	}
	return r.registry.holds(p.Role, token)
}

// HasAny reports whether the principal holds at least one of the tokens.
// Short-circuits on the first match.
func (r *Resolver) HasAny(p models.Principal, tokens ...string) bool {
	for _, t := range tokens {
		if r.HasPermission(p, t) {
			return true
		}
	}
	return false
}

// HasAll reports whether the principal holds every token. Short-circuits on
// the first miss. Vacuously true for an empty token list.
func (r *Resolver) HasAll(p models.Principal, tokens ...string) bool {
	for _, t := range tokens {
		if !r.HasPermission(p, t) {
			return false
		}
	}
	return true
}

// CanManage reports whether actorRole sits strictly above targetRole in the
// hierarchy. A role never manages a peer, a superior, or an unknown role, and
// this path never covers self-management (profile edits are a separate,
// narrower permission).
func (r *Resolver) CanManage(actorRole, targetRole string) bool {
	if !r.registry.Known(actorRole) || !r.registry.Known(targetRole) {
		return false
	}
	return r.registry.LevelOf(actorRole) > r.registry.LevelOf(targetRole)
}

// DecisionTier returns the highest risk tier the principal may decide
// (approve/deny) at, and whether the principal may decide at all. Authority is
// carried by approval:decide:<tier> tokens; the universal role decides any tier.
func (r *Resolver) DecisionTier(p models.Principal) (models.RiskLevel, bool) {
	if !p.IsActive {
		return models.RiskSafe, false
	}
	if r.registry.IsUniversal(p.Role) {
		return models.RiskHigh, true
	}
	switch {
	case r.registry.holds(p.Role, "approval:decide:high"):
		return models.RiskHigh, true
	case r.registry.holds(p.Role, "approval:decide:medium"):
		return models.RiskMedium, true
	case r.registry.holds(p.Role, "approval:decide:low"):
		return models.RiskLow, true
	}
	return models.RiskSafe, false
}

// Tier returns the principal's confirmation-policy tier.
func (r *Resolver) Tier(p models.Principal) models.Tier {
	return r.registry.TierOf(p.Role)
}
