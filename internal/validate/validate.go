// Package validate holds the fail-fast format checks run before a table is
// written to the validated directory.
package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sales-etl/internal/table"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = eris.New("validate: invalid value")

// Check inspects a table and returns an error wrapping ErrInvalid on the first violation.
type Check func(t *table.Table) error

var (
	customerPrefix = regexp.MustCompile(`^[A-Za-z]{2}-`)
	customerSuffix = regexp.MustCompile(`[0-9]{15}$`)
	productPattern = regexp.MustCompile(`^[A-Z]{3}/[A-Z]{3}-[0-9]{6}`)
	orderPattern   = regexp.MustCompile(`^[A-Z]{2}`)
)

// dateLayouts are the calendar date forms accepted by Date.
var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

func invalid(column string, row int, format string, args ...any) error {
	return eris.Wrapf(ErrInvalid, "%s row %d: "+format, append([]any{column, row}, args...)...)
}

func requireColumn(t *table.Table, column string) error {
	if !t.Has(column) {
		return eris.Wrapf(ErrInvalid, "column %q missing", column)
	}
	return nil
}

// pattern builds a check requiring every value in column to satisfy all regexes.
// Nulls fail: identifiers are mandatory.
func pattern(column, desc string, res ...*regexp.Regexp) Check {
	return func(t *table.Table) error {
		if err := requireColumn(t, column); err != nil {
			return err
		}
		for i := range t.Len() {
			v := t.Get(i, column)
			if v.IsNull() {
				return invalid(column, i, "missing %s", desc)
			}
			for _, re := range res {
				if !re.MatchString(v.Str) {
					return invalid(column, i, "%q is not a valid %s", v.Str, desc)
				}
			}
		}
		return nil
	}
}

// CustomerID requires two letters and a dash up front and 15 trailing digits.
func CustomerID(column string) Check {
	return pattern(column, "customer id", customerPrefix, customerSuffix)
}

// ProductID requires the "AAA/BBB-123456" form.
func ProductID(column string) Check {
	return pattern(column, "product id", productPattern)
}

// OrderID requires two leading capital letters.
func OrderID(column string) Check {
	return pattern(column, "order id", orderPattern)
}

// parseNumber accepts finite numbers only; NaN and infinities are not numeric data.
func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Numeric requires every non-null value to parse as a number.
func Numeric(column string) Check {
	return func(t *table.Table) error {
		if err := requireColumn(t, column); err != nil {
			return err
		}
		for i := range t.Len() {
			v := t.Get(i, column)
			if v.IsNull() {
				continue
			}
			if _, ok := parseNumber(v.Str); !ok {
				return invalid(column, i, "%q is not numeric", v.Str)
			}
		}
		return nil
	}
}

// Date requires every non-null value to be an ISO calendar date.
func Date(column string) Check {
	return func(t *table.Table) error {
		if err := requireColumn(t, column); err != nil {
			return err
		}
		for i := range t.Len() {
			v := t.Get(i, column)
			if v.IsNull() {
				continue
			}
			if !isDate(v.Str) {
				return invalid(column, i, "%q is not a date", v.Str)
			}
		}
		return nil
	}
}

func isDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// MinBound requires every non-null value to be a number no smaller than lo.
func MinBound(column string, lo float64) Check {
	return bounded(column, lo, nil)
}

// Range requires every non-null value to be a number within [lo, hi].
func Range(column string, lo, hi float64) Check {
	return bounded(column, lo, &hi)
}

func bounded(column string, lo float64, hi *float64) Check {
	return func(t *table.Table) error {
		if err := requireColumn(t, column); err != nil {
			return err
		}
		for i := range t.Len() {
			v := t.Get(i, column)
			if v.IsNull() {
				continue
			}
			f, ok := parseNumber(v.Str)
			if !ok {
				return invalid(column, i, "%q is not numeric", v.Str)
			}
			if f < lo {
				return invalid(column, i, "%v is below lower bound %v", f, lo)
			}
			if hi != nil && f > *hi {
				return invalid(column, i, "%v exceeds upper bound %v", f, *hi)
			}
		}
		return nil
	}
}
