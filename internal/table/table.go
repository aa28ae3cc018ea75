// Package table provides the in-memory tabular container used by every pipeline stage.
package table

import (
	"slices"

	"github.com/rotisserie/eris"
)

// Value is a nullable cell. The zero Value is null.
type Value struct {
	Str   string
	Valid bool
}

// S returns a non-null Value holding s.
func S(s string) Value {
	return Value{Str: s, Valid: true}
}

// Null is the null Value.
var Null = Value{}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return !v.Valid
}

// String returns the cell text, or "" for null.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	return v.Str
}

// Table is an ordered set of named columns over insertion-ordered rows.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]Value
}

// New creates an empty table with the given columns.
func New(columns []string) *Table {
	t := &Table{columns: slices.Clone(columns)}
	t.reindex()
	return t
}

// Load builds a table from string rows. Empty strings load as null; short rows are
// padded with nulls. Rows wider than the header are rejected.
func Load(columns []string, rows [][]string) (*Table, error) {
	if err := checkColumns(columns); err != nil {
		return nil, err
	}
	t := New(columns)
	t.rows = make([][]Value, 0, len(rows))
	for i, raw := range rows {
		if len(raw) > len(columns) {
			return nil, eris.Errorf("table: row %d has %d fields, header has %d", i, len(raw), len(columns))
		}
		row := make([]Value, len(columns))
		for j, s := range raw {
			if s != "" {
				row[j] = S(s)
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func checkColumns(columns []string) error {
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return eris.Errorf("table: duplicate column %q", c)
		}
		seen[c] = true
	}
	return nil
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c] = i
	}
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return slices.Clone(t.columns)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Has reports whether the table has the named column.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Get returns the value at row i of the named column, or null if the column is absent.
func (t *Table) Get(i int, column string) Value {
	j, ok := t.index[column]
	if !ok {
		return Null
	}
	return t.rows[i][j]
}

// Set assigns the value at row i of the named column. Unknown columns are ignored.
func (t *Table) Set(i int, column string, v Value) {
	if j, ok := t.index[column]; ok {
		t.rows[i][j] = v
	}
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []Value {
	return slices.Clone(t.rows[i])
}

// Column returns a copy of every value in the named column.
func (t *Table) Column(column string) []Value {
	j, ok := t.index[column]
	if !ok {
		return nil
	}
	out := make([]Value, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out
}

// AppendRow appends a row whose width must match the column count.
func (t *Table) AppendRow(row []Value) error {
	if len(row) != len(t.columns) {
		return eris.Errorf("table: row has %d values, table has %d columns", len(row), len(t.columns))
	}
	t.rows = append(t.rows, slices.Clone(row))
	return nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := New(t.columns)
	out.rows = make([][]Value, len(t.rows))
	for i, row := range t.rows {
		out.rows[i] = slices.Clone(row)
	}
	return out
}

// Select returns a new table holding only the named columns, in the given order.
func (t *Table) Select(columns ...string) (*Table, error) {
	idx := make([]int, len(columns))
	for k, c := range columns {
		j, ok := t.index[c]
		if !ok {
			return nil, eris.Errorf("table: select unknown column %q", c)
		}
		idx[k] = j
	}
	out := New(columns)
	out.rows = make([][]Value, len(t.rows))
	for i, row := range t.rows {
		sel := make([]Value, len(idx))
		for k, j := range idx {
			sel[k] = row[j]
		}
		out.rows[i] = sel
	}
	return out, nil
}

// Mask returns the indices of rows matching pred, in row order.
func (t *Table) Mask(pred func(i int) bool) []int {
	var out []int
	for i := range t.rows {
		if pred(i) {
			out = append(out, i)
		}
	}
	return out
}

// Filter returns a copy holding only rows matching pred, preserving order.
func (t *Table) Filter(pred func(i int) bool) *Table {
	out := New(t.columns)
	for i, row := range t.rows {
		if pred(i) {
			out.rows = append(out.rows, slices.Clone(row))
		}
	}
	return out
}

// Rename renames columns according to mapping. Columns not present are skipped.
func (t *Table) Rename(mapping map[string]string) error {
	renamed := slices.Clone(t.columns)
	for i, c := range renamed {
		if to, ok := mapping[c]; ok {
			renamed[i] = to
		}
	}
	if err := checkColumns(renamed); err != nil {
		return eris.Wrap(err, "table: rename")
	}
	t.columns = renamed
	t.reindex()
	return nil
}

// RenameFunc renames every column through fn.
func (t *Table) RenameFunc(fn func(string) string) error {
	mapping := make(map[string]string, len(t.columns))
	for _, c := range t.columns {
		mapping[c] = fn(c)
	}
	return t.Rename(mapping)
}

// AddColumn appends a column filled with fill. Adding an existing column is an error.
func (t *Table) AddColumn(column string, fill Value) error {
	if t.Has(column) {
		return eris.Errorf("table: column %q already exists", column)
	}
	t.columns = append(t.columns, column)
	t.index[column] = len(t.columns) - 1
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], fill)
	}
	return nil
}

// DropColumn removes the named column if present.
func (t *Table) DropColumn(column string) {
	j, ok := t.index[column]
	if !ok {
		return
	}
	t.columns = slices.Delete(t.columns, j, j+1)
	for i, row := range t.rows {
		t.rows[i] = slices.Delete(row, j, j+1)
	}
	t.reindex()
}

// Concat returns a new table with the rows of t followed by the rows of other.
// The result carries the union of both column sets, t's columns first.
func (t *Table) Concat(other *Table) *Table {
	columns := slices.Clone(t.columns)
	for _, c := range other.columns {
		if !t.Has(c) {
			columns = append(columns, c)
		}
	}
	out := New(columns)
	for _, src := range []*Table{t, other} {
		for i := range src.rows {
			row := make([]Value, len(columns))
			for j, c := range columns {
				row[j] = src.Get(i, c)
			}
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// Shift moves each value one slot to the right across the given slots. The first
// slot becomes null and the last slot's previous value is discarded.
func Shift(slots ...*Value) {
	for k := len(slots) - 1; k > 0; k-- {
		*slots[k] = *slots[k-1]
	}
	if len(slots) > 0 {
		*slots[0] = Null
	}
}

// ShiftRight shifts values one position right within the named column subset,
// for the given rows only.
func (t *Table) ShiftRight(rows []int, columns []string) error {
	idx := make([]int, len(columns))
	for k, c := range columns {
		j, ok := t.index[c]
		if !ok {
			return eris.Errorf("table: shift unknown column %q", c)
		}
		idx[k] = j
	}
	for _, i := range rows {
		if i < 0 || i >= len(t.rows) {
			return eris.Errorf("table: shift row %d out of range", i)
		}
		slots := make([]*Value, len(idx))
		for k, j := range idx {
			slots[k] = &t.rows[i][j]
		}
		Shift(slots...)
	}
	return nil
}
