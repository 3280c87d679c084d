// Package authz implements the role-hierarchy permission model: a static
// registry mapping roles to levels and permission sets, a capability resolver
// answering has/any/all queries, and the presentation-facing gate.
package authz

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nimbusdesk/console/internal/models"
)

// Role defines a single role's authority and capability set.
type Role struct {
	Name        string      `yaml:"name"`
	Level       int         `yaml:"level"`
	Tier        models.Tier `yaml:"tier"`
	Universal   bool        `yaml:"universal"`
	Permissions []string    `yaml:"permissions"`
}

// RegistryConfig is the on-disk shape of the registry.
type RegistryConfig struct {
	// Tokens is the universe of valid permission tokens. A role referencing a
	// token outside this list is a configuration error.
	Tokens []string        `yaml:"tokens"`
	Roles  map[string]Role `yaml:"roles"`
}

// Registry is the immutable role → permission mapping, loaded once at process
// start. Safe for concurrent readers without locking.
type Registry struct {
	roles  map[string]Role
	perms  map[string]map[string]struct{} // role name → token set
	tokens map[string]struct{}
}

// NewRegistry validates the configuration and builds a registry. Validation is
// fail-fast: unknown tokens, duplicate levels, invalid tiers, and a missing
// universal role are all fatal, since the workflow depends on a strict level
// hierarchy.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if len(cfg.Roles) == 0 {
		return nil, fmt.Errorf("registry: no roles configured")
	}

	tokens := make(map[string]struct{}, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if err := validateToken(t); err != nil {
			return nil, err
		}
		tokens[t] = struct{}{}
	}

	r := &Registry{
		roles:  make(map[string]Role, len(cfg.Roles)),
		perms:  make(map[string]map[string]struct{}, len(cfg.Roles)),
		tokens: tokens,
	}

	levels := make(map[int]string, len(cfg.Roles))
	hasUniversal := false

	for name, role := range cfg.Roles {
		role.Name = name
		if role.Level <= 0 {
			return nil, fmt.Errorf("registry: role %q has non-positive level %d", name, role.Level)
		}
		if other, ok := levels[role.Level]; ok {
			return nil, fmt.Errorf("registry: roles %q and %q share level %d (levels must be a total order)", other, name, role.Level)
		}
		levels[role.Level] = name

		switch role.Tier {
		case models.TierContractor, models.TierStaff, models.TierManager, models.TierAdmin:
		default:
			return nil, fmt.Errorf("registry: role %q has unknown tier %q", name, role.Tier)
		}

		set := make(map[string]struct{}, len(role.Permissions))
		for _, t := range role.Permissions {
			if _, ok := tokens[t]; !ok {
				return nil, fmt.Errorf("registry: role %q references unknown token %q", name, t)
			}
			set[t] = struct{}{}
		}

		if role.Universal {
			hasUniversal = true
		}

		r.roles[name] = role
		r.perms[name] = set
	}

	if !hasUniversal {
		return nil, fmt.Errorf("registry: no universal admin role configured")
	}

	return r, nil
}

// LoadRegistry reads a RegistryConfig from a yaml file and builds a registry.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: reading %s: %w", path, err)
	}
	var cfg RegistryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("registry: parsing %s: %w", path, err)
	}
	return NewRegistry(cfg)
}

// PermissionsFor returns the permission tokens granted to a role, sorted.
// Returns nil for unknown roles and for the universal role (which holds
// everything implicitly).
func (r *Registry) PermissionsFor(role string) []string {
	set, ok := r.perms[role]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// LevelOf returns the role's level, or 0 for unknown roles.
func (r *Registry) LevelOf(role string) int {
	return r.roles[role].Level
}

// TierOf returns the role's principal tier, or the empty tier for unknown roles.
func (r *Registry) TierOf(role string) models.Tier {
	return r.roles[role].Tier
}

// IsUniversal reports whether the role implicitly holds every permission.
func (r *Registry) IsUniversal(role string) bool {
	return r.roles[role].Universal
}

// Known reports whether the role exists in the registry.
func (r *Registry) Known(role string) bool {
	_, ok := r.roles[role]
	return ok
}

// Roles returns all role names, sorted by level.
func (r *Registry) Roles() []string {
	names := make([]string, 0, len(r.roles))
	for n := range r.roles {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.roles[names[i]].Level < r.roles[names[j]].Level
	})
	return names
}

func (r *Registry) holds(role, token string) bool {
	set, ok := r.perms[role]
	if !ok {
		return false
	}
	_, ok = set[token]
	return ok
}

// validateToken checks the domain:action[:scope] token shape. Tokens are opaque
// identifiers compared by equality; the shape check only catches typos at load.
func validateToken(t string) error {
	parts := strings.Split(t, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("registry: token %q is not domain:action[:scope]", t)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("registry: token %q has an empty segment", t)
		}
	}
	return nil
}

// DefaultTokens is the built-in permission token universe for the console.
func DefaultTokens() []string {
	return []string{
		"ticket:view:own",
		"ticket:view:team",
		"ticket:view:all",
		"ticket:edit",
		"ticket:assign",
		"chat:view",
		"report:generate",
		"profile:edit",
		"user:manage",
		"action:request",
		"approval:decide:low",
		"approval:decide:medium",
		"approval:decide:high",
		"audit:view",
	}
}

// DefaultRegistryConfig returns the built-in role hierarchy. Deployments
// override it with a yaml file; role changes require a restart by design.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Tokens: DefaultTokens(),
		Roles: map[string]Role{
			"contractor": {
				Level: 10,
				Tier:  models.TierContractor,
				Permissions: []string{
					"ticket:view:own", "chat:view", "profile:edit", "action:request",
				},
			},
			"staff": {
				Level: 20,
				Tier:  models.TierStaff,
				Permissions: []string{
					"ticket:view:team", "ticket:edit", "chat:view", "profile:edit",
					"action:request", "approval:decide:low",
				},
			},
			"support_l2": {
				Level: 30,
				Tier:  models.TierStaff,
				Permissions: []string{
					"ticket:view:all", "ticket:edit", "ticket:assign", "chat:view",
					"profile:edit", "action:request", "approval:decide:low",
					"approval:decide:medium",
				},
			},
			"manager": {
				Level: 40,
				Tier:  models.TierManager,
				Permissions: []string{
					"ticket:view:all", "ticket:edit", "ticket:assign", "chat:view",
					"report:generate", "profile:edit", "user:manage", "action:request",
					"approval:decide:low", "approval:decide:medium", "audit:view",
				},
			},
			"it_admin": {
				Level: 50,
				Tier:  models.TierAdmin,
				Permissions: []string{
					"ticket:view:all", "ticket:edit", "ticket:assign", "chat:view",
					"report:generate", "profile:edit", "user:manage", "action:request",
					"approval:decide:low", "approval:decide:medium", "approval:decide:high",
					"audit:view",
				},
			},
			"system_admin": {
				Level:     60,
				Tier:      models.TierAdmin,
				Universal: true,
			},
		},
	}
}

// DefaultRegistry builds the built-in registry. Panics on error: the defaults
// are compiled in, so a failure here is a programming bug.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultRegistryConfig())
	if err != nil {
		panic(err)
	}
	return r
}
