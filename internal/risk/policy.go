package risk

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nimbusdesk/console/internal/models"
)

// ConfirmationPolicy decides, per risk level and principal tier, whether an
// action needs explicit human confirmation before executing. A table rather
// than branching, so deployments can tune it in configuration.
type ConfirmationPolicy struct {
	table map[models.RiskLevel]map[models.Tier]bool
}

// PolicyConfig is the on-disk shape of the confirmation policy: risk name →
// list of tiers that must confirm.
type PolicyConfig struct {
	Confirm map[string][]models.Tier `yaml:"confirm"`
}

// NewConfirmationPolicy builds a policy from configuration.
func NewConfirmationPolicy(cfg PolicyConfig) (*ConfirmationPolicy, error) {
	table := make(map[models.RiskLevel]map[models.Tier]bool, len(cfg.Confirm))
	for riskName, tiers := range cfg.Confirm {
		risk, ok := models.ParseRiskLevel(riskName)
		if !ok {
			return nil, fmt.Errorf("policy: unknown risk level %q", riskName)
		}
		row := make(map[models.Tier]bool, len(tiers))
		for _, tier := range tiers {
			switch tier {
			case models.TierContractor, models.TierStaff, models.TierManager, models.TierAdmin:
				row[tier] = true
			default:
				return nil, fmt.Errorf("policy: unknown tier %q under risk %q", tier, riskName)
			}
		}
		table[risk] = row
	}
	return &ConfirmationPolicy{table: table}, nil
}

// LoadConfirmationPolicy reads the policy from a yaml file.
func LoadConfirmationPolicy(path string) (*ConfirmationPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: reading %s: %w", path, err)
	}
	var cfg PolicyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("policy: parsing %s: %w", path, err)
	}
	return NewConfirmationPolicy(cfg)
}

// RequiresConfirmation reports whether the given risk level needs human
// confirmation for a principal of the given tier. High risk always confirms
// regardless of the table.
func (p *ConfirmationPolicy) RequiresConfirmation(risk models.RiskLevel, tier models.Tier) bool {
	if risk == models.RiskHigh {
		return true
	}
	row, ok := p.table[risk]
	if !ok {
		return false
	}
	return row[tier]
}

// DefaultPolicyConfig returns the built-in confirmation table: high for every
// tier, medium for all but manager and admin, low only for contractors, safe
// never.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Confirm: map[string][]models.Tier{
			"high":   {models.TierContractor, models.TierStaff, models.TierManager, models.TierAdmin},
			"medium": {models.TierContractor, models.TierStaff},
			"low":    {models.TierContractor},
			"safe":   {},
		},
	}
}

// DefaultConfirmationPolicy builds the built-in policy.
func DefaultConfirmationPolicy() *ConfirmationPolicy {
	p, err := NewConfirmationPolicy(DefaultPolicyConfig())
	if err != nil {
		panic(err)
	}
	return p
}
