// Package pipeline runs the fetch, convert, transform, validate and load stages
// over the sales entities and records every run.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sales-etl/internal/config"
	"github.com/sells-group/sales-etl/internal/convert"
	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/store"
	"github.com/sells-group/sales-etl/internal/table"
	"github.com/sells-group/sales-etl/internal/validate"
)

// ErrStageFailed is returned when at least one entity failed in a stage.
var ErrStageFailed = eris.New("pipeline: stage failed")

// Acquirer downloads a raw file into a directory.
type Acquirer interface {
	Acquire(ctx context.Context, rawURL, destDir, name string) (string, error)
}

// Loader writes a validated table into the warehouse.
type Loader interface {
	Load(ctx context.Context, entity string, t *table.Table, keys []string) (int64, error)
}

// Engine runs pipeline stages using the configured directories.
type Engine struct {
	cfg   *config.Config
	store store.Store
	opts  Options

	// Set before running the fetch and load stages.
	Acquirer Acquirer
	Loader   Loader
	// Keys returns the warehouse key columns of an entity.
	Keys func(entity string) []string
}

// New creates an Engine. st may be nil, in which case runs are not recorded.
func New(cfg *config.Config, st store.Store) *Engine {
	return &Engine{cfg: cfg, store: st, opts: OptionsFrom(cfg.Transform)}
}

// FileName is the CSV name an entity is stored under in the source, transformed
// and validated directories.
func FileName(entity string) string {
	return entity + "_details.csv"
}

func (e *Engine) sourcePath(entity string) string {
	return filepath.Join(e.cfg.Paths.Source, FileName(entity))
}

func (e *Engine) transformedPath(entity string) string {
	return filepath.Join(e.cfg.Paths.Transformed, FileName(entity))
}

func (e *Engine) validatedPath(entity string) string {
	return filepath.Join(e.cfg.Paths.Validated, FileName(entity))
}

// Entities resolves the requested entity names, defaulting to all of them in
// pipeline order.
func Entities(names []string) ([]string, error) {
	if len(names) == 0 {
		return model.Entities, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if !model.IsEntity(n) {
			return nil, eris.Errorf("pipeline: unknown entity %q", n)
		}
		want[n] = true
	}
	var out []string
	for _, e := range model.Entities {
		if want[e] {
			out = append(out, e)
		}
	}
	return out, nil
}

// Run executes stage for the given entities and records the run. StageAll runs
// convert, transform and validate in order and stops after the first stage with a
// failed entity. The returned run carries every report; the error is non-nil when
// any entity failed.
func (e *Engine) Run(ctx context.Context, stage model.Stage, entities []string) (*model.Run, error) {
	entities, err := Entities(entities)
	if err != nil {
		return nil, err
	}
	var stages []model.Stage
	switch stage {
	case model.StageAll:
		stages = []model.Stage{model.StageConvert, model.StageTransform, model.StageValidate}
	case model.StageFetch, model.StageConvert, model.StageTransform, model.StageValidate, model.StageLoad:
		stages = []model.Stage{stage}
	default:
		return nil, eris.Errorf("pipeline: unknown stage %q", stage)
	}

	log := zap.L().With(zap.String("component", "pipeline"), zap.String("stage", string(stage)))

	run := &model.Run{ID: "local", Stage: stage, Status: model.RunStatusRunning, StartedAt: time.Now().UTC()}
	if e.store != nil {
		if run, err = e.store.CreateRun(ctx, stage); err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: run started", zap.Strings("entities", entities))

	var runErr error
	for _, s := range stages {
		reports, err := e.runStage(ctx, s, entities)
		for _, rep := range reports {
			run.Reports = append(run.Reports, rep)
			if e.store == nil {
				continue
			}
			if rerr := e.store.RecordReport(ctx, run.ID, rep); rerr != nil {
				log.Error("pipeline: record report", zap.String("entity", rep.Entity), zap.Error(rerr))
			}
		}
		if err != nil {
			runErr = err
			break
		}
	}

	run.Status = model.RunStatusComplete
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	if e.store != nil {
		// Record the outcome even when ctx was cancelled mid-run.
		if ferr := e.store.FinishRun(context.WithoutCancel(ctx), run.ID, run.Status, run.Error); ferr != nil {
			log.Error("pipeline: finish run", zap.Error(ferr))
		}
	}
	log.Info("pipeline: run finished", zap.String("status", string(run.Status)), zap.Int("reports", len(run.Reports)))
	return run, runErr
}

func (e *Engine) runStage(ctx context.Context, stage model.Stage, entities []string) ([]model.StageReport, error) {
	var reports []model.StageReport
	var err error
	switch stage {
	case model.StageFetch:
		reports, err = e.Fetch(ctx, entities)
	case model.StageConvert:
		reports, err = e.Convert(ctx, entities)
	case model.StageTransform:
		reports, err = e.Transform(ctx, entities)
	case model.StageValidate:
		reports, err = e.Validate(ctx, entities)
	case model.StageLoad:
		reports, err = e.Load(ctx, entities)
	}
	if err != nil {
		return reports, err
	}
	var failed []string
	for _, r := range reports {
		if r.Status == model.RunStatusFailed {
			failed = append(failed, r.Entity)
		}
	}
	if len(failed) > 0 {
		return reports, eris.Wrapf(ErrStageFailed, "%s: %v", stage, failed)
	}
	return reports, nil
}

func newReport(entity string, stage model.Stage) model.StageReport {
	return model.StageReport{Entity: entity, Stage: stage, Status: model.RunStatusComplete}
}

func fail(rep *model.StageReport, err error) {
	rep.Status = model.RunStatusFailed
	rep.Error = err.Error()
	zap.L().Error("pipeline: entity failed",
		zap.String("entity", rep.Entity),
		zap.String("stage", string(rep.Stage)),
		zap.Error(err),
	)
}

// Fetch downloads the raw file of every entity that has a configured URL.
func (e *Engine) Fetch(ctx context.Context, entities []string) ([]model.StageReport, error) {
	if e.Acquirer == nil {
		return nil, eris.New("pipeline: fetch: no acquirer configured")
	}
	var reports []model.StageReport
	for _, entity := range entities {
		rep := newReport(entity, model.StageFetch)
		url, ok := e.cfg.Fetch.URLs[entity]
		if !ok || url == "" {
			rep.Warn("no fetch url configured")
			reports = append(reports, rep)
			continue
		}
		path, err := e.Acquirer.Acquire(ctx, url, e.cfg.Paths.Raw, e.cfg.Raw.File(entity))
		if err != nil {
			if ctx.Err() != nil {
				return reports, eris.Wrap(ctx.Err(), "pipeline: fetch cancelled")
			}
			fail(&rep, err)
		}
		rep.Output = path
		reports = append(reports, rep)
	}
	return reports, nil
}

// Convert parses each raw file into the source directory. A missing or
// unparseable file fails only its own entity.
func (e *Engine) Convert(ctx context.Context, entities []string) ([]model.StageReport, error) {
	var reports []model.StageReport
	for _, entity := range entities {
		rep := newReport(entity, model.StageConvert)
		if err := e.convertOne(ctx, entity, &rep); err != nil {
			if ctx.Err() != nil {
				return reports, eris.Wrap(ctx.Err(), "pipeline: convert cancelled")
			}
			fail(&rep, err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (e *Engine) convertOne(ctx context.Context, entity string, rep *model.StageReport) error {
	format, err := convert.FormatFor(entity)
	if err != nil {
		return err
	}
	t, err := convert.File(ctx, format, filepath.Join(e.cfg.Paths.Raw, e.cfg.Raw.File(entity)))
	if err != nil {
		return err
	}
	rep.RowsIn = t.Len()
	rep.RowsOut = t.Len()
	rep.Output = e.sourcePath(entity)
	return t.WriteFile(rep.Output)
}

// Transform cleans every source table into the transformed directory. Entities
// other than shipping run concurrently; shipping runs last because it reads the
// transformed region table.
func (e *Engine) Transform(ctx context.Context, entities []string) ([]model.StageReport, error) {
	reports := make([]model.StageReport, len(entities))
	shipping := -1

	g, gCtx := errgroup.WithContext(ctx)
	for i, entity := range entities {
		reports[i] = newReport(entity, model.StageTransform)
		if entity == model.EntityShipping {
			shipping = i
			continue
		}
		g.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}
			if err := e.transformOne(entity, &reports[i]); err != nil {
				fail(&reports[i], err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: transform cancelled")
	}

	if shipping >= 0 {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "pipeline: transform cancelled")
		}
		if err := e.transformOne(model.EntityShipping, &reports[shipping]); err != nil {
			fail(&reports[shipping], err)
		}
	}
	return reports, nil
}

func (e *Engine) transformOne(entity string, rep *model.StageReport) error {
	fn, err := TransformFor(entity)
	if err != nil {
		return err
	}
	src, err := table.ReadFile(e.sourcePath(entity))
	if err != nil {
		return err
	}
	var regions *table.Table
	if entity == model.EntityShipping {
		if regions, err = table.ReadFile(e.transformedPath(model.EntityRegion)); err != nil {
			return eris.Wrap(err, "pipeline: shipping needs transformed regions")
		}
	}
	out, err := fn(src, regions, e.opts, rep)
	if err != nil {
		return err
	}
	rep.Output = e.transformedPath(entity)
	return out.WriteFile(rep.Output)
}

// Validate runs each entity's validation suite over its transformed table and
// writes the validated copy only when every check passes.
func (e *Engine) Validate(ctx context.Context, entities []string) ([]model.StageReport, error) {
	var reports []model.StageReport
	for _, entity := range entities {
		if ctx.Err() != nil {
			return reports, eris.Wrap(ctx.Err(), "pipeline: validate cancelled")
		}
		rep := newReport(entity, model.StageValidate)
		if err := e.validateOne(entity, &rep); err != nil {
			fail(&rep, err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (e *Engine) validateOne(entity string, rep *model.StageReport) error {
	suite, err := validate.ForEntity(entity)
	if err != nil {
		return err
	}
	t, err := table.ReadFile(e.transformedPath(entity))
	if err != nil {
		return err
	}
	rep.RowsIn = t.Len()
	if err := suite.Run(t); err != nil {
		return err
	}
	rep.RowsOut = t.Len()
	rep.Output = e.validatedPath(entity)
	return t.WriteFile(rep.Output)
}

// Load exports each validated table to the warehouse.
func (e *Engine) Load(ctx context.Context, entities []string) ([]model.StageReport, error) {
	if e.Loader == nil {
		return nil, eris.New("pipeline: load: no loader configured")
	}
	keys := e.Keys
	if keys == nil {
		keys = func(string) []string { return nil }
	}

	var reports []model.StageReport
	for _, entity := range entities {
		rep := newReport(entity, model.StageLoad)
		t, err := table.ReadFile(e.validatedPath(entity))
		if err == nil {
			rep.RowsIn = t.Len()
			var n int64
			n, err = e.Loader.Load(ctx, entity, t, keys(entity))
			rep.RowsOut = int(n)
			rep.Output = fmt.Sprintf("%s.%s", e.cfg.Warehouse.Schema, entity)
		}
		if err != nil {
			if ctx.Err() != nil {
				return reports, eris.Wrap(ctx.Err(), "pipeline: load cancelled")
			}
			fail(&rep, err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
