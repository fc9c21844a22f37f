package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/ffgs-pipeline/internal/config"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/observability"
	"github.com/couchcryptid/ffgs-pipeline/internal/stage"
	"github.com/couchcryptid/ffgs-pipeline/internal/workspace"
)

// Stages runs the per-region processing steps of one cycle.
type Stages interface {
	Download(ctx context.Context, job stage.Job) (stage.Report, error)
	Convert(ctx context.Context, job stage.Job) (stage.Report, error)
	Resample(ctx context.Context, job stage.Job) (stage.Report, error)
	Aggregate(ctx context.Context, job stage.Job) (stage.Report, error)
	Georeference(ctx context.Context, job stage.Job) (stage.Report, error)
	Publish(ctx context.Context, job stage.Job) (stage.Report, error)
}

// Workspace scaffolds cycles and retires superseded ones.
type Workspace interface {
	Layout() workspace.Layout
	Prepare(model, cycle string, regions []string) (redundant bool, err error)
	Cleanup(region, model, cycle string) error
	CommitMarker(model, cycle string) error
}

// Ledger records stage executions.
type Ledger interface {
	Record(ctx context.Context, run domain.StageRun) (string, error)
}

// Notifier announces published cycles.
type Notifier interface {
	Notify(ctx context.Context, events ...domain.CycleCompleted) error
}

// modelResult is the outcome of one model across its regions.
type modelResult int

const (
	modelIdle modelResult = iota
	modelRedundant
	modelCompleted
	modelDownloadFailed
	modelProcessingFailed
)

// Runner drives the workflow over the registry's regions and models.
type Runner struct {
	registry *config.Registry
	ws       Workspace
	stages   Stages
	ledger   Ledger   // optional
	notifier Notifier // optional
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
	last     atomic.Value // domain.Status
}

// New creates a Runner. ledger and notifier may be nil.
func New(registry *config.Registry, ws Workspace, stages Stages, ledger Ledger, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		registry: registry,
		ws:       ws,
		stages:   stages,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once a workflow run has finished, or an error
// describing why the service is not yet ready.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no workflow run has finished yet")
	}
	return nil
}

// LastStatus returns the status of the most recent run, or "" before the first.
func (r *Runner) LastStatus() domain.Status {
	s, _ := r.last.Load().(domain.Status)
	return s
}

// RunWorkflow processes the current cycle of every model for the given
// regions and reports the overall outcome. It never panics.
func (r *Runner) RunWorkflow(ctx context.Context, regions, models []string) (status domain.Status) {
	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("workflow panicked", "panic", rec)
			status = domain.StatusProcessingErrors
		}
		r.metrics.WorkflowRuns.WithLabelValues(statusLabel(status)).Inc()
		r.last.Store(status)
		r.ready.Store(true)
		r.logger.Info("workflow finished", "status", string(status))
	}()

	results := make([]modelResult, 0, len(models))
	for _, id := range models {
		m, ok := r.registry.Model(id)
		if !ok {
			r.logger.Error("unknown model", "model", id)
			results = append(results, modelProcessingFailed)
			continue
		}
		res, fatal := r.runModel(ctx, m, regions)
		results = append(results, res)
		if fatal {
			break
		}
	}
	return summarize(results)
}

// runModel runs one model's current cycle for every selected region. fatal
// reports a failure that must stop the whole run.
func (r *Runner) runModel(ctx context.Context, m domain.Model, regions []string) (res modelResult, fatal bool) {
	cycle, err := domain.DetermineCycle(domain.Now(), m.Schedule, m.Lag)
	if err != nil {
		r.logger.Error("cannot determine cycle", "model", m.ID, "error", err)
		return modelProcessingFailed, false
	}
	cycleID := domain.FormatCycle(cycle)
	ids := r.registry.RegionsFor(m.ID, regions)
	if len(ids) == 0 {
		r.logger.Debug("no selected region runs this model", "model", m.ID)
		return modelIdle, false
	}

	redundant, err := r.ws.Prepare(m.ID, cycleID, ids)
	if err != nil {
		r.logger.Error("prepare cycle failed", "model", m.ID, "cycle", cycleID, "error", err)
		return modelProcessingFailed, true
	}
	if redundant {
		r.logger.Info("cycle already processed", "model", m.ID, "cycle", cycleID)
		return modelRedundant, false
	}

	res = modelCompleted
	for _, id := range ids {
		region, _ := r.registry.Region(id)
		job := stage.Job{Region: region, Model: m, Cycle: cycle}
		if err := r.runJob(ctx, job); err != nil {
			if domain.IsAcquisition(err) {
				res = modelDownloadFailed
			} else if res != modelDownloadFailed {
				res = modelProcessingFailed
			}
			if ctx.Err() != nil {
				return res, true
			}
		}
	}
	if res != modelCompleted {
		r.logger.Warn("cycle incomplete, keeping previous cycle", "model", m.ID, "cycle", cycleID)
		return res, false
	}

	if err := r.retire(ctx, m, cycle, ids); err != nil {
		r.logger.Error("finalize cycle failed", "model", m.ID, "cycle", cycleID, "error", err)
		return modelProcessingFailed, false
	}
	return modelCompleted, false
}

type step struct {
	name string
	run  func(context.Context, stage.Job) (stage.Report, error)
}

// runJob executes every stage of one (region, model, cycle) in order and
// stops at the first failure.
func (r *Runner) runJob(ctx context.Context, job stage.Job) error {
	steps := []step{
		{stage.Download, r.stages.Download},
		{stage.Convert, r.stages.Convert},
		{stage.Resample, r.stages.Resample},
		{stage.Zonal, r.stages.Aggregate},
		{stage.Georeference, r.stages.Georeference},
		{stage.Publish, r.stages.Publish},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := domain.Now()
		rep, err := s.run(ctx, job)
		finished := domain.Now()

		outcome, detail := rep.Outcome, rep.Detail
		if err != nil {
			outcome, detail = domain.OutcomeFailed, err.Error()
		}
		r.metrics.StageDuration.WithLabelValues(s.name, job.Model.ID).Observe(finished.Sub(start).Seconds())
		r.metrics.StageOutcomes.WithLabelValues(s.name, string(outcome)).Inc()
		r.record(ctx, domain.StageRun{
			Model:      job.Model.ID,
			Region:     job.Region.ID,
			Cycle:      job.CycleID(),
			Stage:      s.name,
			StartedAt:  start,
			FinishedAt: finished,
			Outcome:    outcome,
			Detail:     detail,
		})
		if err != nil {
			r.logger.Error("stage failed",
				"region", job.Region.ID, "model", job.Model.ID, "cycle", job.CycleID(),
				"stage", s.name, "error", err)
			return fmt.Errorf("%s %s: %w", job.Region.ID, s.name, err)
		}
	}
	return nil
}

// retire removes superseded cycles, advances the marker and announces the
// new cycle. It runs only after every region of the model succeeded.
func (r *Runner) retire(ctx context.Context, m domain.Model, cycle time.Time, regions []string) error {
	cycleID := domain.FormatCycle(cycle)
	for _, id := range regions {
		if err := r.ws.Cleanup(id, m.ID, cycleID); err != nil {
			return err
		}
	}
	if err := r.ws.CommitMarker(m.ID, cycleID); err != nil {
		return err
	}

	layout := r.ws.Layout()
	completedAt := domain.Now()
	events := make([]domain.CycleCompleted, len(regions))
	for i, id := range regions {
		r.metrics.LastCompletedCycle.WithLabelValues(id, m.ID).Set(float64(cycle.Unix()))
		events[i] = domain.CycleCompleted{
			Model:          m.ID,
			Region:         id,
			Cycle:          cycleID,
			ResultsPath:    layout.ResultsPath(id, m.ID),
			DescriptorPath: layout.DescriptorPath(id, m.ID),
			CompletedAt:    completedAt,
		}
	}
	r.logger.Info("cycle completed", "model", m.ID, "cycle", cycleID, "regions", len(regions))

	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, events...); err != nil {
			r.logger.Warn("cycle notification failed", "model", m.ID, "cycle", cycleID, "error", err)
		}
	}
	return nil
}

// record writes a ledger entry. Ledger failures never fail the run.
func (r *Runner) record(ctx context.Context, run domain.StageRun) {
	if r.ledger == nil {
		return
	}
	if _, err := r.ledger.Record(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn("record stage run failed", "stage", run.Stage, "error", err)
	}
}

// summarize maps per-model results to one status. Download failures outrank
// processing failures; a run counts as redundant only if nothing else happened.
func summarize(results []modelResult) domain.Status {
	var redundant, completed, download, processing bool
	for _, res := range results {
		switch res {
		case modelRedundant:
			redundant = true
		case modelCompleted:
			completed = true
		case modelDownloadFailed:
			download = true
		case modelProcessingFailed:
			processing = true
		}
	}
	switch {
	case download:
		return domain.StatusDownloadErrors
	case processing:
		return domain.StatusProcessingErrors
	case redundant && !completed:
		return domain.StatusRedundant
	default:
		return domain.StatusCompleted
	}
}

func statusLabel(s domain.Status) string {
	switch s {
	case domain.StatusRedundant:
		return "redundant"
	case domain.StatusDownloadErrors:
		return "download_errors"
	case domain.StatusProcessingErrors:
		return "processing_errors"
	default:
		return "completed"
	}
}
