package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
)

// Workflow is one full pipeline invocation.
type Workflow interface {
	RunWorkflow(ctx context.Context, regions, models []string) domain.Status
}

// Scheduler repeats the workflow on a cron schedule. A failed run is retried
// with exponential backoff when the retry falls before the next scheduled
// run. Runs never overlap.
type Scheduler struct {
	workflow Workflow
	schedule cron.Schedule
	clock    clockwork.Clock
	retry    *backoff.ExponentialBackOff
	regions  []string
	models   []string
	logger   *slog.Logger
}

// NewScheduler parses expr as a standard five-field cron expression.
func NewScheduler(w Workflow, expr string, regions, models []string, logger *slog.Logger) (*Scheduler, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 5 * time.Minute
	retry.MaxInterval = time.Hour
	retry.Multiplier = 2
	retry.RandomizationFactor = 0
	retry.MaxElapsedTime = 0
	retry.Reset()

	return &Scheduler{
		workflow: w,
		schedule: sched,
		clock:    domain.Clock(),
		retry:    retry,
		regions:  regions,
		models:   models,
		logger:   logger,
	}, nil
}

// Run executes the workflow immediately, then on every scheduled tick, until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "regions", s.regions, "models", s.models)
	for {
		status := s.workflow.RunWorkflow(ctx, s.regions, s.models)
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		}

		now := s.clock.Now()
		next := s.schedule.Next(now)
		if failed(status) {
			if d := s.retry.NextBackOff(); d != backoff.Stop && now.Add(d).Before(next) {
				next = now.Add(d)
			}
		} else {
			s.retry.Reset()
		}
		s.logger.Info("next run scheduled", "at", next.UTC().Format(time.RFC3339), "last_status", string(status))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-s.clock.After(next.Sub(now)):
		}
	}
}

func failed(s domain.Status) bool {
	return s == domain.StatusDownloadErrors || s == domain.StatusProcessingErrors
}
