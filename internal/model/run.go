package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageConvert   Stage = "convert"
	StageTransform Stage = "transform"
	StageValidate  Stage = "validate"
	StageLoad      Stage = "load"
	StageAll       Stage = "all"
)

// Run represents a single invocation of one or more pipeline stages.
type Run struct {
	ID          string        `json:"id"`
	Stage       Stage         `json:"stage"`
	Status      RunStatus     `json:"status"`
	Error       string        `json:"error,omitempty"`
	Reports     []StageReport `json:"reports,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// StageReport collects the diagnostics one entity produced in one stage.
type StageReport struct {
	Entity        string         `json:"entity"`
	Stage         Stage          `json:"stage"`
	Status        RunStatus      `json:"status"`
	RowsIn        int            `json:"rows_in"`
	RowsOut       int            `json:"rows_out"`
	MissingValues map[string]int `json:"missing_values,omitempty"`
	DuplicateRows int            `json:"duplicate_rows"`
	// Repairs counts rows matched per repair rule, keyed by rule name.
	Repairs        map[string]int  `json:"repairs,omitempty"`
	Reconciliation *Reconciliation `json:"reconciliation,omitempty"`
	Patches        map[string]int  `json:"patches,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
	Error          string          `json:"error,omitempty"`
	Output         string          `json:"output,omitempty"`
}

// Reconciliation summarizes the geographic join of shipping rows to regions.
type Reconciliation struct {
	JoinedRows             int `json:"joined_rows"`
	Unique                 int `json:"unique"`
	DuplicatedByCity       int `json:"duplicated_by_city"`
	DuplicatedByRegion     int `json:"duplicated_by_region"`
	DuplicatedUnclassified int `json:"duplicated_unclassified"`
	UnresolvedDropped      int `json:"unresolved_dropped"`
	MissingAddress         int `json:"missing_address"`
}

// HasMissing reports whether any column has at least one missing value.
func (r *StageReport) HasMissing() bool {
	for _, n := range r.MissingValues {
		if n > 0 {
			return true
		}
	}
	return false
}

// Warn appends a warning message.
func (r *StageReport) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
