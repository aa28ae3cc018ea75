package table

import (
	"strings"

	"github.com/rotisserie/eris"
)

// rightSuffix is appended to right-side columns whose names collide with the left side.
const rightSuffix = "_right"

// MergeLeft performs a left outer join of t with other on the named key columns.
// Every left row appears at least once, in order; a key matching several right rows
// yields one output row per match, in right-side order. Null keys never match.
func (t *Table) MergeLeft(other *Table, on []string) (*Table, error) {
	if len(on) == 0 {
		return nil, eris.New("table: merge requires at least one key column")
	}
	for _, c := range on {
		if !t.Has(c) {
			return nil, eris.Errorf("table: merge key %q missing on left", c)
		}
		if !other.Has(c) {
			return nil, eris.Errorf("table: merge key %q missing on right", c)
		}
	}

	keySet := make(map[string]bool, len(on))
	for _, c := range on {
		keySet[c] = true
	}

	columns := t.Columns()
	var rightCols []string
	for _, c := range other.columns {
		if keySet[c] {
			continue
		}
		rightCols = append(rightCols, c)
		name := c
		if t.Has(name) {
			name += rightSuffix
		}
		columns = append(columns, name)
	}
	if err := checkColumns(columns); err != nil {
		return nil, eris.Wrap(err, "table: merge")
	}

	lookup := make(map[string][]int)
	for i := range other.rows {
		if k, ok := other.key(i, on); ok {
			lookup[k] = append(lookup[k], i)
		}
	}

	out := New(columns)
	for i, left := range t.rows {
		var matches []int
		if k, ok := t.key(i, on); ok {
			matches = lookup[k]
		}
		if len(matches) == 0 {
			row := make([]Value, len(columns))
			copy(row, left)
			out.rows = append(out.rows, row)
			continue
		}
		for _, m := range matches {
			row := make([]Value, 0, len(columns))
			row = append(row, left...)
			for _, c := range rightCols {
				row = append(row, other.Get(m, c))
			}
			out.rows = append(out.rows, row)
		}
	}
	return out, nil
}

// key builds a composite join key for row i. ok is false when any key part is null.
func (t *Table) key(i int, columns []string) (string, bool) {
	parts := make([]string, len(columns))
	for k, c := range columns {
		v := t.Get(i, c)
		if v.IsNull() {
			return "", false
		}
		parts[k] = v.Str
	}
	return strings.Join(parts, "\x1f"), true
}

// DropDuplicates removes rows identical to an earlier row across every column.
// It returns the deduplicated table and a table of the dropped rows.
func (t *Table) DropDuplicates() (kept *Table, dropped *Table) {
	kept = New(t.columns)
	dropped = New(t.columns)
	seen := make(map[string]bool, len(t.rows))
	for _, row := range t.rows {
		k := rowKey(row)
		if seen[k] {
			dropped.rows = append(dropped.rows, append([]Value(nil), row...))
			continue
		}
		seen[k] = true
		kept.rows = append(kept.rows, append([]Value(nil), row...))
	}
	return kept, dropped
}

// rowKey encodes a full row so that null and empty string stay distinct.
func rowKey(row []Value) string {
	var b strings.Builder
	for _, v := range row {
		if v.Valid {
			b.WriteByte('s')
			b.WriteString(v.Str)
		} else {
			b.WriteByte('n')
		}
		b.WriteByte('\x1f')
	}
	return b.String()
}

// CountNulls returns the number of null values per column.
func (t *Table) CountNulls() map[string]int {
	out := make(map[string]int, len(t.columns))
	for j, c := range t.columns {
		n := 0
		for _, row := range t.rows {
			if !row[j].Valid {
				n++
			}
		}
		out[c] = n
	}
	return out
}
