package risk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdesk/console/internal/models"
)

func TestCatalog_Classify(t *testing.T) {
	c := DefaultCatalog()

	risk, ok := c.Classify("kill-process")
	require.True(t, ok)
	assert.Equal(t, models.RiskHigh, risk)

	risk, ok = c.Classify("flush-dns")
	require.True(t, ok)
	assert.Equal(t, models.RiskLow, risk)

	risk, ok = c.Classify("ping-host")
	require.True(t, ok)
	assert.Equal(t, models.RiskSafe, risk)

	_, ok = c.Classify("format-everything")
	assert.False(t, ok)
}

func TestCatalog_DuplicateID(t *testing.T) {
	_, err := NewCatalog([]Action{
		{ID: "a", RiskName: "safe"},
		{ID: "a", RiskName: "low"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestCatalog_UnknownRisk(t *testing.T) {
	_, err := NewCatalog([]Action{{ID: "a", RiskName: "apocalyptic"}})
	assert.Error(t, err)
}

func TestCatalog_UnknownParamType(t *testing.T) {
	_, err := NewCatalog([]Action{
		{ID: "a", RiskName: "safe", Params: []ParamSpec{{Name: "x", Type: "float"}}},
	})
	assert.Error(t, err)
}

func TestCatalog_Empty(t *testing.T) {
	_, err := NewCatalog(nil)
	assert.Error(t, err)
}

func TestCatalog_ActionsSorted(t *testing.T) {
	c := DefaultCatalog()
	actions := c.Actions()
	require.NotEmpty(t, actions)
	for i := 1; i < len(actions); i++ {
		assert.Less(t, actions[i-1].ID, actions[i].ID)
	}
}

func TestValidateParams(t *testing.T) {
	c := DefaultCatalog()
	kill, ok := c.Get("kill-process")
	require.True(t, ok)

	field, err := kill.ValidateParams(map[string]string{"pid": "1234"})
	assert.NoError(t, err)
	assert.Empty(t, field)

	field, err = kill.ValidateParams(map[string]string{"pid": "1234", "force": "true"})
	assert.NoError(t, err)
	assert.Empty(t, field)

	field, err = kill.ValidateParams(nil)
	require.Error(t, err)
	assert.Equal(t, "pid", field)

	field, err = kill.ValidateParams(map[string]string{"pid": "not-a-number"})
	require.Error(t, err)
	assert.Equal(t, "pid", field)

	field, err = kill.ValidateParams(map[string]string{"pid": "1", "force": "maybe"})
	require.Error(t, err)
	assert.Equal(t, "force", field)

	field, err = kill.ValidateParams(map[string]string{"pid": "1", "extra": "x"})
	require.Error(t, err)
	assert.Equal(t, "extra", field)
}

func TestLoadCatalog_File(t *testing.T) {
	raw := `
actions:
  - id: reboot-host
    name: Reboot host
    risk: high
    estimated_seconds: 120
    params:
      - {name: host, type: string, required: true}
`
	path := filepath.Join(t.TempDir(), "actions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	risk, ok := c.Classify("reboot-host")
	require.True(t, ok)
	assert.Equal(t, models.RiskHigh, risk)
}

func TestConfirmationPolicy_Defaults(t *testing.T) {
	p := DefaultConfirmationPolicy()

	// High confirms for everyone.
	for _, tier := range []models.Tier{models.TierContractor, models.TierStaff, models.TierManager, models.TierAdmin} {
		assert.True(t, p.RequiresConfirmation(models.RiskHigh, tier), "high must confirm for %s", tier)
	}

	// Medium: all but manager and admin.
	assert.True(t, p.RequiresConfirmation(models.RiskMedium, models.TierContractor))
	assert.True(t, p.RequiresConfirmation(models.RiskMedium, models.TierStaff))
	assert.False(t, p.RequiresConfirmation(models.RiskMedium, models.TierManager))
	assert.False(t, p.RequiresConfirmation(models.RiskMedium, models.TierAdmin))

	// Low: contractors only.
	assert.True(t, p.RequiresConfirmation(models.RiskLow, models.TierContractor))
	assert.False(t, p.RequiresConfirmation(models.RiskLow, models.TierStaff))

	// Safe: never.
	assert.False(t, p.RequiresConfirmation(models.RiskSafe, models.TierContractor))
}

func TestConfirmationPolicy_HighAlwaysConfirms(t *testing.T) {
	// Even a table that forgot the high row cannot opt out of confirmation.
	p, err := NewConfirmationPolicy(PolicyConfig{Confirm: map[string][]models.Tier{}})
	require.NoError(t, err)
	assert.True(t, p.RequiresConfirmation(models.RiskHigh, models.TierAdmin))
}

func TestConfirmationPolicy_UnknownRisk(t *testing.T) {
	_, err := NewConfirmationPolicy(PolicyConfig{Confirm: map[string][]models.Tier{"weird": {}}})
	assert.Error(t, err)
}

func TestConfirmationPolicy_UnknownTier(t *testing.T) {
	_, err := NewConfirmationPolicy(PolicyConfig{Confirm: map[string][]models.Tier{
		"low": {models.Tier("vip")},
	}})
	assert.Error(t, err)
}

func TestLoadConfirmationPolicy_File(t *testing.T) {
	raw := `
confirm:
  high: [contractor, staff, manager, admin]
  medium: [contractor]
`
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	p, err := LoadConfirmationPolicy(path)
	require.NoError(t, err)
	assert.True(t, p.RequiresConfirmation(models.RiskMedium, models.TierContractor))
	assert.False(t, p.RequiresConfirmation(models.RiskMedium, models.TierStaff))
}
