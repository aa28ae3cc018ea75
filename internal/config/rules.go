package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sales-etl/internal/transform"
)

// Rules is the optional data-correction file referenced by rules_file. Keys in it
// keep their case, unlike values read through viper.
type Rules struct {
	CountryAliases []CountryAlias          `yaml:"country_aliases"`
	RegionPatches  []transform.RegionPatch `yaml:"region_patches"`
}

// LoadRules parses a rules YAML file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read rules file %s", path)
	}
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrapf(err, "config: parse rules file %s", path)
	}
	for i, p := range r.RegionPatches {
		if p.Name == "" || p.Country == "" {
			return nil, eris.Errorf("config: region patch %d needs a name and a country", i)
		}
	}
	return &r, nil
}

// Apply replaces the transform settings the rules file defines.
func (r *Rules) Apply(t *TransformConfig) {
	if len(r.CountryAliases) > 0 {
		t.CountryAliases = r.CountryAliases
	}
	if len(r.RegionPatches) > 0 {
		t.RegionPatches = r.RegionPatches
	}
}
