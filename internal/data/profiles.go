// Package data provides canonical-snapshot importers and the built-in
// disease profiles.
package data

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/cascadia-health/epiforecast/internal/model"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// LoadProfile returns the disease profile for a disease key. A profilesDir
// override is checked first; the built-in embedded profiles are the
// fallback.
func LoadProfile(profilesDir, disease string) (*model.DiseaseProfile, error) {
	key := strings.ToLower(strings.TrimSpace(disease))
	if key == "" {
		return nil, eris.New("data: disease is required")
	}

	if profilesDir != "" {
		path := filepath.Join(profilesDir, key+".yaml")
		raw, err := os.ReadFile(path)
		if err == nil {
			return parseProfile(raw, path)
		}
		if !os.IsNotExist(err) {
			return nil, eris.Wrapf(err, "data: read profile %s", path)
		}
	}

	raw, err := profileFS.ReadFile(fmt.Sprintf("profiles/%s.yaml", key))
	if err != nil {
		return nil, eris.Wrapf(err, "data: no profile for disease %q", disease)
	}
	return parseProfile(raw, key)
}

// ListProfiles returns the disease keys with built-in profiles, sorted.
func ListProfiles() []string {
	entries, err := profileFS.ReadDir("profiles")
	if err != nil {
		return nil
	}
	var keys []string
	for _, e := range entries {
		keys = append(keys, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(keys)
	return keys
}

func parseProfile(raw []byte, source string) (*model.DiseaseProfile, error) {
	var p model.DiseaseProfile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, eris.Wrapf(err, "data: parse profile %s", source)
	}
	if err := p.Parameters.Validate(); err != nil {
		return nil, eris.Wrapf(err, "data: invalid profile %s", source)
	}
	if len(p.ContactLayers) == 0 {
		return nil, eris.Errorf("data: profile %s has no contact layers", source)
	}
	return &p, nil
}
