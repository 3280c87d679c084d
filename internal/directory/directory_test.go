package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdesk/console/internal/models"
)

func TestStore_PutAndGet(t *testing.T) {
	s := New()
	s.Put(models.Principal{ID: "u1", Role: "staff", IsActive: true})

	p, err := s.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, "staff", p.Role)
	assert.Equal(t, 1, s.Count())

	_, err = s.Get("u2")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	raw := `
principals:
  - {id: u1, role: staff, is_active: true}
  - {id: u2, role: manager, manager_id: "", is_active: true}
  - {id: u3, role: contractor, manager_id: u2, is_active: false}
`
	path := filepath.Join(t.TempDir(), "principals.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count())

	p, err := s.Get("u3")
	require.NoError(t, err)
	assert.False(t, p.IsActive)
	assert.Equal(t, "u2", p.ManagerID)
}

func TestLoad_InvalidPrincipal(t *testing.T) {
	raw := `
principals:
  - {id: "", role: staff}
`
	path := filepath.Join(t.TempDir(), "principals.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
