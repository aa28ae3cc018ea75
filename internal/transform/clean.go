package transform

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/sales-etl/internal/table"
)

// DropDuplicates removes fully duplicated rows, logging them when present.
// It returns the deduplicated table and the number of rows dropped.
func DropDuplicates(t *table.Table) (*table.Table, int) {
	kept, dropped := t.DropDuplicates()
	if dropped.Len() > 0 {
		fields := []zap.Field{zap.Int("duplicates", dropped.Len())}
		for i := range min(dropped.Len(), 5) {
			fields = append(fields, zap.Any("row_"+strconv.Itoa(i), rowStrings(dropped, i)))
		}
		zap.L().Warn("transform: duplicates present in data", fields...)
	}
	return kept, dropped.Len()
}

func rowStrings(t *table.Table, i int) []string {
	row := t.Row(i)
	out := make([]string, len(row))
	for j, v := range row {
		out[j] = v.String()
	}
	return out
}

// MissingValues counts nulls per column and logs the columns with any.
// Missing values are reported, never imputed.
func MissingValues(t *table.Table) map[string]int {
	counts := t.CountNulls()
	var cols []string
	for c, n := range counts {
		if n > 0 {
			cols = append(cols, c)
		}
	}
	if len(cols) > 0 {
		sort.Strings(cols)
		zap.L().Warn("transform: missing values in dataset", zap.Strings("columns", cols), zap.Any("counts", counts))
	}
	return counts
}

// NormalizeColumnNames lower-cases every column name and replaces '-' with '_'.
func NormalizeColumnNames(t *table.Table) error {
	return t.RenameFunc(func(c string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c)), "-", "_")
	})
}

// RoundFloat rounds every numeric value in column to the given decimal places.
// Non-numeric values are left untouched.
func RoundFloat(t *table.Table, column string, places int) {
	if !t.Has(column) {
		return
	}
	scale := math.Pow(10, float64(places))
	for i := range t.Len() {
		v := t.Get(i, column)
		if v.IsNull() {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			continue
		}
		t.Set(i, column, table.S(strconv.FormatFloat(math.Round(f*scale)/scale, 'f', -1, 64)))
	}
}

// CoerceInteger rewrites integral numeric values ("12.0", " 12 ") as plain integers.
// It returns the number of non-null values that could not be coerced; those stay as-is.
func CoerceInteger(t *table.Table, column string) (failed int) {
	if !t.Has(column) {
		return 0
	}
	for i := range t.Len() {
		v := t.Get(i, column)
		if v.IsNull() {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || f != math.Trunc(f) {
			failed++
			continue
		}
		t.Set(i, column, table.S(strconv.FormatInt(int64(f), 10)))
	}
	return failed
}

var (
	anyQuotes     = regexp.MustCompile(`["']+`)
	leadingQuotes = regexp.MustCompile(`^"+`)
)

// StripQuotes removes every single and double quote from the column's values.
func StripQuotes(t *table.Table, column string) {
	replaceAll(t, column, anyQuotes)
}

// StripLeadingQuotes removes double quotes at the start of the column's values.
func StripLeadingQuotes(t *table.Table, column string) {
	replaceAll(t, column, leadingQuotes)
}

func replaceAll(t *table.Table, column string, re *regexp.Regexp) {
	if !t.Has(column) {
		return
	}
	for i := range t.Len() {
		v := t.Get(i, column)
		if v.IsNull() {
			continue
		}
		t.Set(i, column, table.S(re.ReplaceAllString(v.Str, "")))
	}
}

// ReplaceValues maps exact values through aliases and returns how many were replaced.
func ReplaceValues(t *table.Table, column string, aliases map[string]string) int {
	if !t.Has(column) {
		return 0
	}
	n := 0
	for i := range t.Len() {
		v := t.Get(i, column)
		if v.IsNull() {
			continue
		}
		if to, ok := aliases[v.Str]; ok {
			t.Set(i, column, table.S(to))
			n++
		}
	}
	return n
}

// NormalizeText trims and NFC-normalizes values so that visually equal join keys
// compare equal.
func NormalizeText(t *table.Table, columns ...string) {
	for _, column := range columns {
		if !t.Has(column) {
			continue
		}
		for i := range t.Len() {
			v := t.Get(i, column)
			if v.IsNull() {
				continue
			}
			s := norm.NFC.String(strings.TrimSpace(v.Str))
			if s == "" {
				t.Set(i, column, table.Null)
				continue
			}
			t.Set(i, column, table.S(s))
		}
	}
}

// DropNullRows removes rows where column is null and returns how many were removed.
func DropNullRows(t *table.Table, column string) (*table.Table, int) {
	if !t.Has(column) {
		return t, 0
	}
	out := t.Filter(func(i int) bool { return !t.Get(i, column).IsNull() })
	return out, t.Len() - out.Len()
}
