// Package monitoring watches the run history and raises alerts when pipeline
// runs fail too often or stop making progress.
package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/store"
)

// scanLimit bounds the number of runs read for one snapshot.
const scanLimit = 10000

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`

	// FailedEntities counts failed stage reports per entity across failed runs.
	FailedEntities map[string]int `json:"failed_entities,omitempty"`
	// ValidationFailures counts entities that failed their validation suite.
	ValidationFailures int `json:"validation_failures"`
	// StaleRuns lists runs still marked running after the stale threshold.
	StaleRuns []string `json:"stale_runs,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunReader is the part of store.Store the collector reads.
type RunReader interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	runs       RunReader
	staleAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. Running runs older than staleAfter are
// reported as stale; zero disables the check.
func NewCollector(runs RunReader, staleAfter time.Duration) *Collector {
	return &Collector{runs: runs, staleAfter: staleAfter, now: time.Now}
}

// Collect gathers a snapshot of the runs started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours:  lookbackHours,
		CollectedAt:    now,
		FailedEntities: make(map[string]int),
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: scanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
			if err := c.tallyFailures(ctx, r.ID, snap); err != nil {
				return nil, err
			}
		case model.RunStatusRunning:
			snap.RunsRunning++
			if c.staleAfter > 0 && now.Sub(r.StartedAt) > c.staleAfter {
				snap.StaleRuns = append(snap.StaleRuns, r.ID)
			}
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	sort.Strings(snap.StaleRuns)
	return snap, nil
}

// tallyFailures loads a failed run's reports and counts the failing entities.
func (c *Collector) tallyFailures(ctx context.Context, runID string, snap *MetricsSnapshot) error {
	run, err := c.runs.GetRun(ctx, runID)
	if err != nil {
		return eris.Wrapf(err, "monitoring: get run %s", runID)
	}
	for _, rep := range run.Reports {
		if rep.Status != model.RunStatusFailed {
			continue
		}
		snap.FailedEntities[rep.Entity]++
		if rep.Stage == model.StageValidate {
			snap.ValidationFailures++
		}
	}
	return nil
}
