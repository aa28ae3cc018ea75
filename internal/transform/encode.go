package transform

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sales-etl/internal/table"
)

// OneHotEncode replaces a categorical column with one indicator column per distinct
// value, named "<column>_<value>" and appended in sorted value order. Indicators are
// "1" or "0"; a null category yields all zeros.
func OneHotEncode(t *table.Table, column string) error {
	if !t.Has(column) {
		return eris.Errorf("transform: one-hot column %q not present", column)
	}

	values := t.Column(column)
	seen := make(map[string]bool)
	var categories []string
	for _, v := range values {
		if v.IsNull() || seen[v.Str] {
			continue
		}
		seen[v.Str] = true
		categories = append(categories, v.Str)
	}
	sort.Strings(categories)

	t.DropColumn(column)
	for _, cat := range categories {
		name := column + "_" + cat
		if err := t.AddColumn(name, table.S("0")); err != nil {
			return eris.Wrapf(err, "transform: one-hot %s", column)
		}
		for i, v := range values {
			if v.Valid && v.Str == cat {
				t.Set(i, name, table.S("1"))
			}
		}
	}
	return nil
}

// IsoDate is the layout dates are written in after standardization.
const IsoDate = "2006-01-02"

// StandardizeDate parses every value in column with layout and rewrites it as an
// ISO date. Values that fail to parse are left untouched and counted; they are
// rejected later by the date validators.
func StandardizeDate(t *table.Table, column, layout string) (failed int) {
	if !t.Has(column) {
		return 0
	}
	for i := range t.Len() {
		v := t.Get(i, column)
		if v.IsNull() {
			continue
		}
		d, err := time.Parse(layout, v.Str)
		if err != nil {
			if _, isoErr := time.Parse(IsoDate, v.Str); isoErr == nil {
				continue
			}
			failed++
			continue
		}
		t.Set(i, column, table.S(d.Format(IsoDate)))
	}
	return failed
}
