// Package transform holds the single-pass cleaning transforms shared by the entity pipelines.
package transform

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/sells-group/sales-etl/internal/table"
)

// DefaultCustomerIDWidth is the common join-key width for customer IDs.
const DefaultCustomerIDWidth = 18

var customerIDPattern = regexp.MustCompile(`\w{2}-[0-9]+`)

// PadRight right-pads s with '0' until it is width characters long.
// Values already at or beyond width are returned unchanged.
func PadRight(s string, width int) string {
	for len(s) < width {
		s += "0"
	}
	return s
}

// StandardizeCustomerID right-pads every non-null value in column with '0' up to width.
// A missing column is passed through with a warning; callers check for it themselves.
func StandardizeCustomerID(t *table.Table, column string, width int) *table.Table {
	if width <= 0 {
		width = DefaultCustomerIDWidth
	}
	if !t.Has(column) {
		zap.L().Warn("transform: customer id column not present", zap.String("column", column))
		return t
	}
	for i := range t.Len() {
		v := t.Get(i, column)
		if v.IsNull() {
			continue
		}
		t.Set(i, column, table.S(PadRight(v.Str, width)))
	}
	return t
}

// ExtractCustomerID keeps only the first "XX-123" match of each value, dropping the
// characters around it. Values without a match are left as they are and counted.
func ExtractCustomerID(t *table.Table, column string) (unmatched int) {
	if !t.Has(column) {
		zap.L().Warn("transform: customer id column not present", zap.String("column", column))
		return 0
	}
	for i := range t.Len() {
		v := t.Get(i, column)
		if v.IsNull() {
			continue
		}
		m := customerIDPattern.FindString(v.Str)
		if m == "" {
			unmatched++
			continue
		}
		t.Set(i, column, table.S(m))
	}
	return unmatched
}
