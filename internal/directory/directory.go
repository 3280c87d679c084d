// Package directory provides the principal store: who exists, what role they
// hold, and whether they are active. Seeded from configuration; the console's
// user management writes through an external service, so this view is
// eventually consistent but correct at the instant of any authorization check.
package directory

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nimbusdesk/console/internal/models"
)

// Store is an in-memory principal directory.
type Store struct {
	mu         sync.RWMutex
	principals map[string]models.Principal
}

// New creates an empty directory.
func New() *Store {
	return &Store{principals: make(map[string]models.Principal)}
}

// Load reads principals from a yaml file.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: reading %s: %w", path, err)
	}
	var doc struct {
		Principals []models.Principal `yaml:"principals"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("directory: parsing %s: %w", path, err)
	}
	s := New()
	for _, p := range doc.Principals {
		if p.ID == "" || p.Role == "" {
			return nil, fmt.Errorf("directory: principal with missing id or role")
		}
		s.Put(p)
	}
	return s, nil
}

// Get returns the principal by id.
func (s *Store) Get(id string) (models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[id]
	if !ok {
		return models.Principal{}, fmt.Errorf("directory: principal %s not found", id)
	}
	return p, nil
}

// Put adds or replaces a principal.
func (s *Store) Put(p models.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[p.ID] = p
}

// Count returns the number of principals.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.principals)
}
