package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sales-etl/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, model.StageAll)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	require.NoError(t, st.RecordReport(ctx, run.ID, model.StageReport{
		Entity:        model.EntityCustomer,
		Stage:         model.StageTransform,
		Status:        model.RunStatusComplete,
		RowsIn:        10,
		RowsOut:       9,
		DuplicateRows: 1,
		MissingValues: map[string]int{"segment": 2},
	}))
	require.NoError(t, st.RecordReport(ctx, run.ID, model.StageReport{
		Entity: model.EntityShipping,
		Stage:  model.StageTransform,
		Status: model.RunStatusComplete,
		Reconciliation: &model.Reconciliation{
			JoinedRows:        5,
			Unique:            3,
			DuplicatedByCity:  2,
			UnresolvedDropped: 1,
		},
	}))
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusComplete, ""))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageAll, got.Stage)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.Len(t, got.Reports, 2)
	assert.Equal(t, model.EntityCustomer, got.Reports[0].Entity)
	assert.Equal(t, 2, got.Reports[0].MissingValues["segment"])
	require.NotNil(t, got.Reports[1].Reconciliation)
	assert.Equal(t, 2, got.Reports[1].Reconciliation.DuplicatedByCity)
}

func TestSQLite_FinishRunFailed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, model.StageValidate)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusFailed, "validate: invoice discount"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "validate: invoice discount", got.Error)
	assert.Empty(t, got.Reports)
}

func TestSQLite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.True(t, eris.Is(err, ErrNotFound))

	err = st.FinishRun(ctx, "missing", model.RunStatusComplete, "")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for _, stage := range []model.Stage{model.StageConvert, model.StageTransform, model.StageConvert} {
		run, err := st.CreateRun(ctx, stage)
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	require.NoError(t, st.FinishRun(ctx, ids[0], model.RunStatusComplete, ""))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	converts, err := st.ListRuns(ctx, RunFilter{Stage: model.StageConvert})
	require.NoError(t, err)
	assert.Len(t, converts, 2)

	done, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, ids[0], done[0].ID)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}
