package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ffgs-pipeline/internal/config"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/observability"
	"github.com/couchcryptid/ffgs-pipeline/internal/pipeline"
	"github.com/couchcryptid/ffgs-pipeline/internal/stage"
	"github.com/couchcryptid/ffgs-pipeline/internal/workspace"
)

// --- mocks ---

type call struct {
	Region string
	Stage  string
}

// mockStages records calls and fails the configured (region, stage) pairs.
type mockStages struct {
	mu    sync.Mutex
	calls []call
	fail  map[call]error
	panic bool
}

func (m *mockStages) do(job stage.Job, name string) (stage.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panic {
		panic("boom")
	}
	c := call{Region: job.Region.ID, Stage: name}
	m.calls = append(m.calls, c)
	if err := m.fail[c]; err != nil {
		return stage.Report{}, err
	}
	return stage.Report{Outcome: domain.OutcomeOK, Detail: name}, nil
}

func (m *mockStages) Download(_ context.Context, j stage.Job) (stage.Report, error) {
	return m.do(j, stage.Download)
}

func (m *mockStages) Convert(_ context.Context, j stage.Job) (stage.Report, error) {
	return m.do(j, stage.Convert)
}

func (m *mockStages) Resample(_ context.Context, j stage.Job) (stage.Report, error) {
	return m.do(j, stage.Resample)
}

func (m *mockStages) Aggregate(_ context.Context, j stage.Job) (stage.Report, error) {
	return m.do(j, stage.Zonal)
}

func (m *mockStages) Georeference(_ context.Context, j stage.Job) (stage.Report, error) {
	return m.do(j, stage.Georeference)
}

func (m *mockStages) Publish(_ context.Context, j stage.Job) (stage.Report, error) {
	return m.do(j, stage.Publish)
}

type mockLedger struct {
	mu   sync.Mutex
	runs []domain.StageRun
}

func (m *mockLedger) Record(_ context.Context, run domain.StageRun) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return "id", nil
}

type mockNotifier struct {
	events []domain.CycleCompleted
	err    error
}

func (m *mockNotifier) Notify(_ context.Context, events ...domain.CycleCompleted) error {
	m.events = append(m.events, events...)
	return m.err
}

// --- fixture ---

// now resolves the GFS cycle to 2024-05-01 06Z (lag 3h30m).
var now = time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)

const cycle = "2024050106"

func testRegistry() *config.Registry {
	return &config.Registry{
		Regions: []domain.Region{
			{ID: "hispaniola", BBox: domain.BBox{Left: -75, Right: -68, Bottom: 17, Top: 20.5}, Models: []string{"gfs"}},
			{ID: "puertorico", BBox: domain.BBox{Left: -68, Right: -65, Bottom: 17, Top: 19}, Models: []string{"gfs"}},
		},
		Models: []domain.Model{{
			ID:           "gfs",
			Schedule:     []int{0, 6, 12, 18},
			Lag:          3*time.Hour + 30*time.Minute,
			StepHours:    6,
			FirstLead:    6,
			LastLead:     24,
			WindowSize:   4,
			Multiplier:   10,
			Accumulation: domain.AccumulationInterval,
			URLTemplate:  "http://example.invalid/{step}",
		}},
	}
}

type fixture struct {
	runner   *pipeline.Runner
	stages   *mockStages
	ledger   *mockLedger
	notifier *mockNotifier
	ws       *workspace.Manager
	layout   workspace.Layout
	metrics  *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	root := t.TempDir()
	layout := workspace.Layout{
		PublishedRoot: filepath.Join(root, "published"),
		WorkspaceRoot: filepath.Join(root, "workspace"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		stages:   &mockStages{fail: map[call]error{}},
		ledger:   &mockLedger{},
		notifier: &mockNotifier{},
		ws:       workspace.NewManager(layout, logger),
		layout:   layout,
		metrics:  observability.NewMetricsForTesting(),
	}
	f.runner = pipeline.New(testRegistry(), f.ws, f.stages, f.ledger, f.notifier, logger, f.metrics)
	return f
}

func (f *fixture) run() domain.Status {
	return f.runner.RunWorkflow(context.Background(), []string{"hispaniola", "puertorico"}, []string{"gfs"})
}

func (f *fixture) seedOldCycle(t *testing.T, old string) {
	t.Helper()
	for _, region := range []string{"hispaniola", "puertorico"} {
		require.NoError(t, os.MkdirAll(f.layout.ProcessedDir(region, "gfs", old), 0o755))
	}
	require.NoError(t, f.ws.CommitMarker("gfs", old))
}

// --- tests ---

func TestRunWorkflow_Completed(t *testing.T) {
	f := newFixture(t)
	f.seedOldCycle(t, "2024050100")

	assert.Equal(t, domain.StatusCompleted, f.run())

	want := []call{}
	for _, region := range []string{"hispaniola", "puertorico"} {
		for _, s := range []string{stage.Download, stage.Convert, stage.Resample, stage.Zonal, stage.Georeference, stage.Publish} {
			want = append(want, call{Region: region, Stage: s})
		}
	}
	if diff := cmp.Diff(want, f.stages.calls); diff != "" {
		t.Fatalf("stage calls mismatch (-want +got):\n%s", diff)
	}

	marker, err := f.ws.ReadMarker("gfs")
	require.NoError(t, err)
	assert.Equal(t, cycle, marker)
	assert.NoDirExists(t, f.layout.CycleDir("puertorico", "gfs", "2024050100"))
	assert.DirExists(t, f.layout.CycleDir("puertorico", "gfs", cycle))

	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, "hispaniola", f.notifier.events[0].Region)
	assert.Equal(t, cycle, f.notifier.events[1].Cycle)
	assert.Equal(t, f.layout.ResultsPath("puertorico", "gfs"), f.notifier.events[1].ResultsPath)

	assert.Len(t, f.ledger.runs, 12)
	assert.Equal(t, domain.OutcomeOK, f.ledger.runs[0].Outcome)
	assert.Equal(t, now, f.ledger.runs[0].StartedAt)

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.WorkflowRuns.WithLabelValues("completed")), 0)
	assert.InDelta(t, float64(time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC).Unix()),
		testutil.ToFloat64(f.metrics.LastCompletedCycle.WithLabelValues("puertorico", "gfs")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.PipelineRunning), 0)

	require.NoError(t, f.runner.CheckReadiness(context.Background()))
	assert.Equal(t, domain.StatusCompleted, f.runner.LastStatus())
}

func TestRunWorkflow_RedundantTouchesNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ws.CommitMarker("gfs", cycle))

	assert.Equal(t, domain.StatusRedundant, f.run())
	assert.Empty(t, f.stages.calls)
	assert.NoDirExists(t, f.layout.CycleDir("puertorico", "gfs", cycle))
	assert.Empty(t, f.notifier.events)
}

func TestRunWorkflow_DownloadFailureKeepsPreviousCycle(t *testing.T) {
	f := newFixture(t)
	f.seedOldCycle(t, "2024050100")
	f.stages.fail[call{Region: "hispaniola", Stage: stage.Download}] = &domain.AcquisitionError{Step: 6, StatusCode: 404, URL: "http://example.invalid/6"}

	assert.Equal(t, domain.StatusDownloadErrors, f.run())

	marker, err := f.ws.ReadMarker("gfs")
	require.NoError(t, err)
	assert.Equal(t, "2024050100", marker)
	assert.DirExists(t, f.layout.CycleDir("hispaniola", "gfs", "2024050100"))
	assert.DirExists(t, f.layout.CycleDir("puertorico", "gfs", "2024050100"))
	assert.Empty(t, f.notifier.events)

	// The failing region stops at download; the other region still runs.
	assert.Contains(t, f.stages.calls, call{Region: "puertorico", Stage: stage.Publish})
	assert.NotContains(t, f.stages.calls, call{Region: "hispaniola", Stage: stage.Convert})

	failed := f.ledger.runs[0]
	assert.Equal(t, domain.OutcomeFailed, failed.Outcome)
	assert.Contains(t, failed.Detail, "404")
}

func TestRunWorkflow_ProcessingFailure(t *testing.T) {
	f := newFixture(t)
	f.stages.fail[call{Region: "puertorico", Stage: stage.Zonal}] = &domain.MissingInputError{Stage: stage.Zonal, Path: "/x"}

	assert.Equal(t, domain.StatusProcessingErrors, f.run())
	marker, err := f.ws.ReadMarker("gfs")
	require.NoError(t, err)
	assert.Empty(t, marker)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.StageOutcomes.WithLabelValues(stage.Zonal, "failed")), 0)
}

func TestRunWorkflow_ResumesAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.stages.fail[call{Region: "puertorico", Stage: stage.Convert}] = errors.New("disk full")
	require.Equal(t, domain.StatusProcessingErrors, f.run())

	delete(f.stages.fail, call{Region: "puertorico", Stage: stage.Convert})
	f.stages.calls = nil
	assert.Equal(t, domain.StatusCompleted, f.run())
	assert.Len(t, f.stages.calls, 12)

	marker, err := f.ws.ReadMarker("gfs")
	require.NoError(t, err)
	assert.Equal(t, cycle, marker)
}

func TestRunWorkflow_NotificationFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")
	assert.Equal(t, domain.StatusCompleted, f.run())
}

func TestRunWorkflow_RecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.stages.panic = true

	assert.Equal(t, domain.StatusProcessingErrors, f.run())
	require.NoError(t, f.runner.CheckReadiness(context.Background()))
}

func TestRunWorkflow_UnknownModel(t *testing.T) {
	f := newFixture(t)
	status := f.runner.RunWorkflow(context.Background(), []string{"puertorico"}, []string{"nam"})
	assert.Equal(t, domain.StatusProcessingErrors, status)
}

func TestRunner_NotReadyBeforeFirstRun(t *testing.T) {
	f := newFixture(t)
	require.Error(t, f.runner.CheckReadiness(context.Background()))
	assert.Empty(t, f.runner.LastStatus())
}
