// Package warehouse exports validated entity tables into Postgres.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sales-etl/internal/db"
	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/table"
)

// KeysFor returns the natural key of an entity's warehouse table. Entities
// without a key are replaced wholesale on every load.
func KeysFor(entity string) []string {
	switch entity {
	case model.EntityCustomer:
		return []string{"customer_id"}
	case model.EntityInvoice:
		return []string{"order_id", "line_no"}
	case model.EntityProduct:
		return []string{"product_id"}
	}
	return nil
}

// Loader writes tables into schema-qualified Postgres tables with TEXT columns.
type Loader struct {
	pool   db.Pool
	schema string
}

// New creates a Loader writing into schema.
func New(pool db.Pool, schema string) *Loader {
	return &Loader{pool: pool, schema: schema}
}

// Load ensures schema.entity exists and writes t into it. With keys the rows are
// upserted; rows whose key has a null are skipped and the last row wins for a
// repeated key. Without keys the table is truncated and reloaded in one transaction.
func (l *Loader) Load(ctx context.Context, entity string, t *table.Table, keys []string) (int64, error) {
	if entity == "" {
		return 0, eris.New("warehouse: entity is required")
	}
	columns := t.Columns()
	if len(columns) == 0 {
		return 0, eris.Errorf("warehouse: %s has no columns", entity)
	}
	for _, k := range keys {
		if !t.Has(k) {
			return 0, eris.Errorf("warehouse: %s key column %q missing", entity, k)
		}
	}
	log := zap.L().With(zap.String("component", "warehouse"), zap.String("entity", entity))

	if err := l.ensure(ctx, entity, columns, keys); err != nil {
		return 0, err
	}

	if len(keys) == 0 {
		n, err := l.replace(ctx, entity, columns, rowsOf(t))
		if err != nil {
			return 0, err
		}
		log.Info("warehouse: table replaced", zap.Int64("rows", n))
		return n, nil
	}

	rows, skipped := keyedRows(t, keys)
	if skipped > 0 {
		log.Warn("warehouse: rows skipped", zap.Int("null_or_repeated_key", skipped))
	}
	n, err := db.UpsertRows(ctx, l.pool, db.UpsertTarget{
		Schema:  l.schema,
		Table:   entity,
		Columns: columns,
		Keys:    keys,
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "warehouse: upsert %s", entity)
	}
	log.Info("warehouse: table upserted", zap.Int("rows", len(rows)), zap.Int64("changed", n))
	return n, nil
}

func (l *Loader) ensure(ctx context.Context, entity string, columns, keys []string) error {
	target := pgx.Identifier{l.schema, entity}.Sanitize()
	stmts := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{l.schema}.Sanitize()),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", target, columnDefs(columns)),
	}
	for _, c := range columns {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT", target, pgx.Identifier{c}.Sanitize()))
	}
	if len(keys) > 0 {
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			pgx.Identifier{entity + "_key_idx"}.Sanitize(), target, quoteAll(keys)))
	}
	for _, stmt := range stmts {
		if _, err := l.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "warehouse: ensure %s.%s", l.schema, entity)
		}
	}
	return nil
}

func (l *Loader) replace(ctx context.Context, entity string, columns []string, rows [][]any) (int64, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "warehouse: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "TRUNCATE "+pgx.Identifier{l.schema, entity}.Sanitize()); err != nil {
		return 0, eris.Wrapf(err, "warehouse: truncate %s", entity)
	}
	n, err := db.CopyFromSchema(ctx, tx, l.schema, entity, columns, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "warehouse: copy %s", entity)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "warehouse: commit tx")
	}
	return n, nil
}

func rowsOf(t *table.Table) [][]any {
	rows := make([][]any, t.Len())
	for i := range rows {
		rows[i] = rowValues(t.Row(i))
	}
	return rows
}

func rowValues(row []table.Value) []any {
	out := make([]any, len(row))
	for j, v := range row {
		if !v.IsNull() {
			out[j] = v.Str
		}
	}
	return out
}

// keyedRows drops rows with a null key and keeps only the last row per key, in
// first-seen key order.
func keyedRows(t *table.Table, keys []string) ([][]any, int) {
	pos := make(map[string]int)
	var rows [][]any
	skipped := 0
	for i := 0; i < t.Len(); i++ {
		parts := make([]string, len(keys))
		null := false
		for j, k := range keys {
			v := t.Get(i, k)
			if v.IsNull() {
				null = true
				break
			}
			parts[j] = v.Str
		}
		if null {
			skipped++
			continue
		}
		key := strings.Join(parts, "\x00")
		if p, ok := pos[key]; ok {
			rows[p] = rowValues(t.Row(i))
			skipped++
			continue
		}
		pos[key] = len(rows)
		rows = append(rows, rowValues(t.Row(i)))
	}
	return rows, skipped
}

func columnDefs(columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " TEXT"
	}
	return strings.Join(defs, ", ")
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
