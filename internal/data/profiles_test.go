package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfile_BuiltIn(t *testing.T) {
	for _, disease := range []string{"covid", "flu", "rsv"} {
		p, err := LoadProfile("", disease)
		require.NoError(t, err, disease)
		assert.Equal(t, disease, p.Name)
		assert.Greater(t, p.Parameters.TransmissibilityBase, 0.0)
		assert.Contains(t, p.ContactLayers, "community")
		assert.NotEmpty(t, p.FacilityImpactWeights)
	}
}

func TestLoadProfile_CaseInsensitive(t *testing.T) {
	p, err := LoadProfile("", "COVID")
	require.NoError(t, err)
	assert.Equal(t, "covid", p.Name)
}

func TestLoadProfile_Unknown(t *testing.T) {
	_, err := LoadProfile("", "smallpox")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no profile")
}

func TestLoadProfile_DirOverride(t *testing.T) {
	dir := t.TempDir()
	override := `
name: covid
parameters:
  transmissibility_base: 9.9
  incubation_period_days:
    mean: 2.0
  infectious_period_days:
    mean: 4.0
  detection_multiplier: 0.5
contact_layers:
  community: 1.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "covid.yaml"), []byte(override), 0o644))

	p, err := LoadProfile(dir, "covid")
	require.NoError(t, err)
	assert.InDelta(t, 9.9, p.Parameters.TransmissibilityBase, 1e-9)

	// Diseases without an override still resolve to the built-ins.
	p, err = LoadProfile(dir, "flu")
	require.NoError(t, err)
	assert.Equal(t, "flu", p.Name)
}

func TestLoadProfile_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	invalid := `
name: covid
parameters:
  transmissibility_base: 1.0
contact_layers:
  community: 1.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "covid.yaml"), []byte(invalid), 0o644))

	_, err := LoadProfile(dir, "covid")
	require.Error(t, err)
}

func TestListProfiles(t *testing.T) {
	assert.Equal(t, []string{"covid", "flu", "rsv"}, ListProfiles())
}
