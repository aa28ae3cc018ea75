package transform

import (
	"go.uber.org/zap"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/table"
)

// RegionPatch is a named one-time correction to region rows for a single country.
// Empty Region or Market fields leave that attribute untouched.
type RegionPatch struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Country string `mapstructure:"country" yaml:"country"`
	Region  string `mapstructure:"region" yaml:"region"`
	Market  string `mapstructure:"market" yaml:"market"`
}

// DefaultRegionPatches returns the known corrections to the source region data.
func DefaultRegionPatches() []RegionPatch {
	return []RegionPatch{
		{Name: "mongolia-north-asia", Country: "Mongolia", Region: "North Asia", Market: "APAC"},
		{Name: "austria-central-eu", Country: "Austria", Region: "Central", Market: "EU"},
	}
}

// ApplyRegionPatches applies each patch to the region rows whose country matches
// and returns the number of rows changed per patch name.
func ApplyRegionPatches(t *table.Table, patches []RegionPatch) map[string]int {
	applied := make(map[string]int, len(patches))
	if !t.Has("country") {
		return applied
	}
	log := zap.L().With(zap.String("component", "transform"))

	for _, p := range patches {
		rows := t.Mask(func(i int) bool {
			c := t.Get(i, "country")
			return c.Valid && c.Str == p.Country
		})
		for _, i := range rows {
			r := model.RegionAt(t, i)
			if p.Region != "" && t.Has("region") {
				r.Region = table.S(p.Region)
			}
			if p.Market != "" && t.Has("market") {
				r.Market = table.S(p.Market)
			}
			putRegionAttrs(t, i, r)
		}
		applied[p.Name] = len(rows)
		if len(rows) == 0 {
			log.Warn("region patch matched no rows", zap.String("patch", p.Name), zap.String("country", p.Country))
			continue
		}
		log.Info("region patch applied", zap.String("patch", p.Name), zap.Int("rows", len(rows)))
	}
	return applied
}

// putRegionAttrs writes only the patchable attributes; other region columns stay as loaded.
func putRegionAttrs(t *table.Table, i int, r model.RegionRecord) {
	t.Set(i, "region", r.Region)
	t.Set(i, "market", r.Market)
}
