// Command ffgs turns numerical weather prediction forecasts into per-basin
// precipitation statistics and gridded map products.
//
// Usage:
//
//	ffgs run [--region puertorico] [--model gfs]
//	ffgs serve
//	ffgs cycle --model gfs
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/archive"
	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/grib"
	httpadapter "github.com/couchcryptid/ffgs-pipeline/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/ffgs-pipeline/internal/adapter/kafka"
	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/polygons"
	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/sqlite"
	"github.com/couchcryptid/ffgs-pipeline/internal/config"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/observability"
	"github.com/couchcryptid/ffgs-pipeline/internal/pipeline"
	"github.com/couchcryptid/ffgs-pipeline/internal/stage"
	"github.com/couchcryptid/ffgs-pipeline/internal/workspace"
)

type cli struct {
	Run   runCmd   `cmd:"" help:"Process the current cycle once and exit."`
	Serve serveCmd `cmd:"" help:"Process cycles on the configured schedule and serve health endpoints."`
	Cycle cycleCmd `cmd:"" help:"Print the cycle a model would process right now."`
}

type runCmd struct {
	Region []string `help:"Region ids to process (default: REGIONS or all)."`
	Model  []string `help:"Model ids to process (default: MODELS or all)."`
}

func (c *runCmd) Run(cfg *config.Config) error {
	regions, models := cfg.Regions, cfg.Models
	if len(c.Region) > 0 || len(c.Model) > 0 {
		var err error
		regions, models, err = cfg.Registry.Select(c.Region, c.Model)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	status := a.runner.RunWorkflow(ctx, regions, models)
	fmt.Println(status)
	if status == domain.StatusDownloadErrors || status == domain.StatusProcessingErrors {
		return errors.New("workflow aborted")
	}
	return nil
}

type serveCmd struct{}

func (c *serveCmd) Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := pipeline.NewScheduler(a.runner, cfg.Schedule, cfg.Regions, cfg.Models, a.logger)
	if err != nil {
		return err
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness{a.runner, a.ledger}, a.runner, a.ledger, a.logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	// Start scheduler.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Run(ctx); err != nil {
			a.logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("workflow still running at shutdown deadline")
	}

	a.logger.Info("shutdown complete")
	return nil
}

type cycleCmd struct {
	Model string `required:"" help:"Model id."`
}

func (c *cycleCmd) Run(cfg *config.Config) error {
	m, ok := cfg.Registry.Model(c.Model)
	if !ok {
		return fmt.Errorf("unknown model %q", c.Model)
	}
	cycle, err := domain.DetermineCycle(domain.Now(), m.Schedule, m.Lag)
	if err != nil {
		return err
	}
	fmt.Println(domain.FormatCycle(cycle))
	return nil
}

// app holds the wired pipeline and the resources that must be closed.
type app struct {
	logger   *slog.Logger
	runner   *pipeline.Runner
	ledger   *sqlite.Ledger
	notifier *kafkaadapter.Notifier
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ws := workspace.NewManager(workspace.Layout{
		PublishedRoot: cfg.PublishedRoot,
		WorkspaceRoot: cfg.WorkspaceRoot,
	}, logger)
	layout := ws.Layout()

	stages := stage.New(ws,
		archive.NewClient(cfg.ArchiveTimeout, logger),
		grib.NewDecoder(),
		polygons.NewLoader(layout.ShapefileDir),
		logger, metrics)

	ledger, err := sqlite.Open(ctx, cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger, ledger: ledger}

	// Cycle notifications (feature-flagged via NOTIFY_ENABLED).
	var notifier pipeline.Notifier
	if cfg.NotifyEnabled {
		a.notifier = kafkaadapter.NewNotifier(cfg, logger)
		notifier = a.notifier
		logger.Info("cycle notifications enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("cycle notifications disabled")
	}

	a.runner = pipeline.New(cfg.Registry, ws, stages, ledger, notifier, logger, metrics)
	logger.Info("pipeline configured", "layout", layout.String(), "regions", cfg.Regions, "models", cfg.Models)
	return a, nil
}

func (a *app) close() {
	if err := a.ledger.Close(); err != nil {
		a.logger.Error("ledger close error", "error", err)
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Error("kafka notifier close error", "error", err)
		}
	}
}

// readiness is ready once a workflow run finished and the ledger answers.
type readiness struct {
	runner *pipeline.Runner
	ledger *sqlite.Ledger
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	if err := r.runner.CheckReadiness(ctx); err != nil {
		return err
	}
	return r.ledger.CheckReadiness(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var c cli
	kctx := kong.Parse(&c,
		kong.Name("ffgs"),
		kong.Description("Flash flood guidance forecast pipeline."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(kctx.Run(cfg))
}
