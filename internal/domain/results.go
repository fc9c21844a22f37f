package domain

import "time"

// ZonalRow is the statistics of one polygon for one accumulation window.
// Mean and Max are nil when the polygon covers no valid pixels.
type ZonalRow struct {
	CatID     string
	Count     int
	Mean      *float64
	Max       *float64
	Timestamp string
	Timestep  string
}

// ResultsHeader is the column order of the zonal results table.
var ResultsHeader = []string{"cat_id", "count", "mean", "max", "Timestamp", "Timestep"}

// ColorScale summarizes all windows of one polygon for map colouring.
type ColorScale struct {
	CatID   string
	Mean    *float64
	Max     *float64
	CumMean *float64
}

// Status is the outcome string reported to callers of the workflow.
type Status string

const (
	StatusRedundant        Status = "Workflow Aborted: already run for most recent data"
	StatusDownloadErrors   Status = "Workflow Aborted: downloading errors occurred"
	StatusProcessingErrors Status = "Workflow Aborted: processing errors occurred"
	StatusCompleted        Status = "Workflow Completed: normal finish"
)

// CycleCompleted is announced once a (region, model) cycle is published.
type CycleCompleted struct {
	Model          string    `json:"model"`
	Region         string    `json:"region"`
	Cycle          string    `json:"cycle"`
	ResultsPath    string    `json:"results_path"`
	DescriptorPath string    `json:"descriptor_path"`
	CompletedAt    time.Time `json:"completed_at"`
}

// StageOutcome is the recorded result of one stage execution.
type StageOutcome string

const (
	OutcomeOK      StageOutcome = "ok"
	OutcomeSkipped StageOutcome = "skipped"
	OutcomeFailed  StageOutcome = "failed"
)

// StageRun is a ledger entry for one stage execution.
type StageRun struct {
	ID         string       `json:"id"`
	Model      string       `json:"model"`
	Region     string       `json:"region"`
	Cycle      string       `json:"cycle"`
	Stage      string       `json:"stage"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Outcome    StageOutcome `json:"outcome"`
	Detail     string       `json:"detail,omitempty"`
}
