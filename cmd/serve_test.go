package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/store"
)

func newServeTestStore(t *testing.T) (*store.SQLiteStore, string) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateRun(ctx, model.StageAll)
	require.NoError(t, err)
	require.NoError(t, st.RecordReport(ctx, run.ID, model.StageReport{
		Entity: model.EntityShipping, Stage: model.StageTransform, Status: model.RunStatusComplete,
		RowsIn: 10, RowsOut: 9, Reconciliation: &model.Reconciliation{UnresolvedDropped: 1},
	}))
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusComplete, ""))

	failed, err := st.CreateRun(ctx, model.StageValidate)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, failed.ID, model.RunStatusFailed, "validate: [product]"))
	return st, run.ID
}

func serve(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServe_Health(t *testing.T) {
	st, _ := newServeTestStore(t)
	rec := serve(t, newRunsRouter(st), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServe_ListRuns(t *testing.T) {
	st, _ := newServeTestStore(t)
	h := newRunsRouter(st)

	rec := serve(t, h, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	rec = serve(t, h, http.MethodGet, "/runs?status=failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, model.StageValidate, runs[0].Stage)

	rec = serve(t, h, http.MethodGet, "/runs?stage=load", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestServe_ListRunsBadLimit(t *testing.T) {
	st, _ := newServeTestStore(t)
	rec := serve(t, newRunsRouter(st), http.MethodGet, "/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid limit")
}

func TestServe_GetRun(t *testing.T) {
	st, id := newServeTestStore(t)
	rec := serve(t, newRunsRouter(st), http.MethodGet, "/runs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, id, run.ID)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.Len(t, run.Reports, 1)
	require.NotNil(t, run.Reports[0].Reconciliation)
	assert.Equal(t, 1, run.Reports[0].Reconciliation.UnresolvedDropped)
}

func TestServe_GetRunNotFound(t *testing.T) {
	st, _ := newServeTestStore(t)
	rec := serve(t, newRunsRouter(st), http.MethodGet, "/runs/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"run not found"}`, rec.Body.String())
}

// brokenStore fails every read.
type brokenStore struct {
	store.Store
}

func (brokenStore) GetRun(context.Context, string) (*model.Run, error) {
	return nil, eris.New("sqlite: database is locked")
}

func (brokenStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return nil, eris.New("sqlite: database is locked")
}

func (brokenStore) Ping(context.Context) error {
	return eris.New("postgres: connection refused")
}

func TestServe_StoreErrors(t *testing.T) {
	h := newRunsRouter(brokenStore{})

	rec := serve(t, h, http.MethodGet, "/runs", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(t, h, http.MethodGet, "/runs/abc", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"store unavailable"}`, rec.Body.String())
}

func TestServe_CORSPreflight(t *testing.T) {
	st, _ := newServeTestStore(t)
	rec := serve(t, newRunsRouter(st), http.MethodOptions, "/runs", map[string]string{
		"Origin":                        "http://dashboard.example.com",
		"Access-Control-Request-Method": http.MethodGet,
	})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
