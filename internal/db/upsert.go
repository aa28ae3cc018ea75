package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertTarget names a warehouse table and the columns of the rows merged into it.
type UpsertTarget struct {
	Schema  string
	Table   string
	Columns []string
	// Keys are the columns of the table's unique index; every other column is refreshed.
	Keys []string
}

func (t UpsertTarget) String() string {
	return t.Schema + "." + t.Table
}

// stagingName is the temp table rows are copied into before the merge.
func (t UpsertTarget) stagingName() string {
	return "_stage_" + t.Schema + "_" + t.Table
}

// UpsertRows merges rows into the target inside one transaction: COPY into a
// temp staging table, then INSERT ... ON CONFLICT on the keys. Existing rows are
// only rewritten when a non-key value differs, so the returned count is the
// number of rows inserted or changed; reloading identical data returns 0.
func UpsertRows(ctx context.Context, pool Pool, target UpsertTarget, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(target.Columns) == 0 {
		return 0, eris.Errorf("db: upsert %s: no columns", target)
	}
	if len(target.Keys) == 0 {
		return 0, eris.Errorf("db: upsert %s: no key columns", target)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: begin", target)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := pgx.Identifier{target.stagingName()}
	dest := pgx.Identifier{target.Schema, target.Table}.Sanitize()

	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", staging.Sanitize(), dest)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: create staging table", target)
	}
	if _, err := tx.CopyFrom(ctx, staging, target.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: copy into staging", target)
	}

	tag, err := tx.Exec(ctx, mergeSQL(dest, staging.Sanitize(), target))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: merge", target)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: commit", target)
	}
	return tag.RowsAffected(), nil
}

// mergeSQL builds the INSERT ... ON CONFLICT statement. A table made only of key
// columns has nothing to refresh and ignores conflicts.
func mergeSQL(dest, staging string, target UpsertTarget) string {
	isKey := make(map[string]bool, len(target.Keys))
	for _, k := range target.Keys {
		isKey[k] = true
	}
	var refresh []string
	for _, c := range target.Columns {
		if !isKey[c] {
			refresh = append(refresh, pgx.Identifier{c}.Sanitize())
		}
	}

	cols := quoteAndJoin(target.Columns)
	insert := fmt.Sprintf("INSERT INTO %s AS t (%s) SELECT %s FROM %s ON CONFLICT (%s)",
		dest, cols, cols, staging, quoteAndJoin(target.Keys))
	if len(refresh) == 0 {
		return insert + " DO NOTHING"
	}

	set := make([]string, len(refresh))
	current := make([]string, len(refresh))
	incoming := make([]string, len(refresh))
	for i, c := range refresh {
		set[i] = c + " = EXCLUDED." + c
		current[i] = "t." + c
		incoming[i] = "EXCLUDED." + c
	}
	return fmt.Sprintf("%s DO UPDATE SET %s WHERE (%s) IS DISTINCT FROM (%s)",
		insert, strings.Join(set, ", "), strings.Join(current, ", "), strings.Join(incoming, ", "))
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
