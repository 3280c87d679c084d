// Package risk classifies remote-control actions and decides when a human
// must confirm them. The action catalog and the confirmation policy are both
// static configuration, loaded once, so the rules can be audited and tested
// independently of the workflow.
package risk

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/nimbusdesk/console/internal/models"
)

// ParamSpec describes a single action parameter.
type ParamSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // string, int, bool
	Required bool   `yaml:"required"`
}

// Action is a single entry in the static action catalog.
type Action struct {
	ID               string           `yaml:"id"`
	Name             string           `yaml:"name"`
	Risk             models.RiskLevel `yaml:"-"`
	RiskName         string           `yaml:"risk"`
	Params           []ParamSpec      `yaml:"params"`
	EstimatedSeconds int              `yaml:"estimated_seconds"`
}

// Catalog is the immutable action catalog, loaded once at process start.
type Catalog struct {
	actions map[string]Action
}

// NewCatalog validates the action list and builds a catalog. Duplicate IDs and
// unknown risk names are fatal.
func NewCatalog(actions []Action) (*Catalog, error) {
	if len(actions) == 0 {
		return nil, fmt.Errorf("catalog: no actions configured")
	}
	m := make(map[string]Action, len(actions))
	for _, a := range actions {
		if a.ID == "" {
			return nil, fmt.Errorf("catalog: action with empty id")
		}
		if _, ok := m[a.ID]; ok {
			return nil, fmt.Errorf("catalog: duplicate action id %q", a.ID)
		}
		risk, ok := models.ParseRiskLevel(a.RiskName)
		if !ok {
			return nil, fmt.Errorf("catalog: action %q has unknown risk %q", a.ID, a.RiskName)
		}
		a.Risk = risk
		for _, p := range a.Params {
			switch p.Type {
			case "string", "int", "bool":
			default:
				return nil, fmt.Errorf("catalog: action %q param %q has unknown type %q", a.ID, p.Name, p.Type)
			}
		}
		m[a.ID] = a
	}
	return &Catalog{actions: m}, nil
}

// LoadCatalog reads the catalog from a yaml file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	var doc struct {
		Actions []Action `yaml:"actions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	return NewCatalog(doc.Actions)
}

// Get returns the action definition for an id.
func (c *Catalog) Get(id string) (Action, bool) {
	a, ok := c.actions[id]
	return a, ok
}

// Classify returns the risk level for an action id.
func (c *Catalog) Classify(id string) (models.RiskLevel, bool) {
	a, ok := c.actions[id]
	return a.Risk, ok
}

// Actions returns all actions sorted by id.
func (c *Catalog) Actions() []Action {
	out := make([]Action, 0, len(c.actions))
	for _, a := range c.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidateParams checks the supplied parameters against the action's schema.
// Returns the offending field name on failure.
func (a Action) ValidateParams(params map[string]string) (string, error) {
	known := make(map[string]ParamSpec, len(a.Params))
	for _, p := range a.Params {
		known[p.Name] = p
		if p.Required {
			if _, ok := params[p.Name]; !ok {
				return p.Name, fmt.Errorf("missing required parameter %q", p.Name)
			}
		}
	}
	for name, val := range params {
		spec, ok := known[name]
		if !ok {
			return name, fmt.Errorf("unknown parameter %q", name)
		}
		switch spec.Type {
		case "int":
			if _, err := strconv.Atoi(val); err != nil {
				return name, fmt.Errorf("parameter %q must be an integer", name)
			}
		case "bool":
			if _, err := strconv.ParseBool(val); err != nil {
				return name, fmt.Errorf("parameter %q must be a boolean", name)
			}
		}
	}
	return "", nil
}

// DefaultActions is the built-in catalog of remote-control actions.
func DefaultActions() []Action {
	return []Action{
		{ID: "ping-host", Name: "Ping host", RiskName: "safe", EstimatedSeconds: 5,
			Params: []ParamSpec{{Name: "host", Type: "string", Required: true}}},
		{ID: "list-processes", Name: "List processes", RiskName: "safe", EstimatedSeconds: 5},
		{ID: "flush-dns", Name: "Flush DNS cache", RiskName: "low", EstimatedSeconds: 10},
		{ID: "clear-temp-files", Name: "Clear temporary files", RiskName: "low", EstimatedSeconds: 30,
			Params: []ParamSpec{{Name: "older_than_days", Type: "int", Required: false}}},
		{ID: "restart-service", Name: "Restart service", RiskName: "medium", EstimatedSeconds: 60,
			Params: []ParamSpec{{Name: "service", Type: "string", Required: true}}},
		{ID: "kill-process", Name: "Kill process", RiskName: "high", EstimatedSeconds: 10,
			Params: []ParamSpec{
				{Name: "pid", Type: "int", Required: true},
				{Name: "force", Type: "bool", Required: false},
			}},
		{ID: "repair-disk", Name: "Repair disk volume", RiskName: "high", EstimatedSeconds: 1800,
			Params: []ParamSpec{{Name: "volume", Type: "string", Required: true}}},
	}
}

// DefaultCatalog builds the built-in catalog. Panics on error: the defaults
// are compiled in, so a failure here is a programming bug.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultActions())
	if err != nil {
		panic(err)
	}
	return c
}
