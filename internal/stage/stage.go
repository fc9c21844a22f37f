// Package stage implements the idempotent steps that turn a forecast cycle's
// raw downloads into published rasters, time series and zonal statistics.
//
// Every stage checks its input directory first. An absent input with the
// stage's completion sentinel present means the work is already done; an
// absent input without the sentinel is a [domain.MissingInputError]. Partial
// output is always cleared and rebuilt rather than resumed.
package stage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/grib"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/observability"
	"github.com/couchcryptid/ffgs-pipeline/internal/raster"
	"github.com/couchcryptid/ffgs-pipeline/internal/workspace"
)

// Stage names, used for sentinels, metrics and the run ledger.
const (
	Download     = "download"
	Convert      = "convert"
	Resample     = "resample"
	Zonal        = "zonal"
	Georeference = "georeference"
	Publish      = "publish"
)

// Fetcher streams a remote archive file.
type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Decoder extracts one field from a raw step file.
type Decoder interface {
	Decode(path string, p domain.Parameter) (*grib.Field, error)
}

// ZoneLoader returns the polygon layer of a region.
type ZoneLoader interface {
	Load(region string) ([]raster.Zone, error)
}

// Job is one (region, model, cycle) unit of work.
type Job struct {
	Region domain.Region
	Model  domain.Model
	Cycle  time.Time
}

// CycleID is the YYYYMMDDHH cycle identifier.
func (j Job) CycleID() string { return domain.FormatCycle(j.Cycle) }

func (j Job) attrs(stage string) []any {
	return []any{"region", j.Region.ID, "model", j.Model.ID, "cycle", j.CycleID(), "stage", stage}
}

// Report describes what a stage did.
type Report struct {
	Outcome domain.StageOutcome
	Detail  string
	Rows    []domain.ZonalRow
}

func skipped(detail string) Report { return Report{Outcome: domain.OutcomeSkipped, Detail: detail} }

func done(detail string) Report { return Report{Outcome: domain.OutcomeOK, Detail: detail} }

// Stages runs the pipeline steps against one workspace.
type Stages struct {
	ws      *workspace.Manager
	layout  workspace.Layout
	fetcher Fetcher
	decoder Decoder
	zones   ZoneLoader
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New wires the stages to their collaborators.
func New(ws *workspace.Manager, f Fetcher, d Decoder, z ZoneLoader, logger *slog.Logger, metrics *observability.Metrics) *Stages {
	return &Stages{
		ws:      ws,
		layout:  ws.Layout(),
		fetcher: f,
		decoder: d,
		zones:   z,
		logger:  logger,
		metrics: metrics,
	}
}

// gate decides whether a stage has anything to do. skip is true when the
// input is gone because the stage already completed.
func (s *Stages) gate(job Job, stage, input string) (skip bool, err error) {
	if workspace.IsDir(input) {
		return false, nil
	}
	if s.ws.Done(job.Region.ID, job.Model.ID, job.CycleID(), stage) {
		s.logger.Info("input consumed by a completed run, skipping", append(job.attrs(stage), "input", input)...)
		return true, nil
	}
	return false, &domain.MissingInputError{Stage: stage, Path: input}
}

// finish marks the stage complete, then removes its consumed input.
func (s *Stages) finish(job Job, stage, input string) error {
	if err := s.ws.MarkDone(job.Region.ID, job.Model.ID, job.CycleID(), stage); err != nil {
		return err
	}
	return workspace.RemoveDir(input)
}

// windowFile is a parsed window file on disk.
type windowFile struct {
	path string
	name domain.WindowName
}

// listWindows returns the window files of dir ordered by end lead. Entries
// that do not follow the window grammar are ignored.
func listWindows(dir, prefix string) ([]windowFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &domain.FilesystemError{Op: "list", Path: dir, Err: err}
	}
	var out []windowFile
	for _, e := range entries {
		if e.IsDir() || len(e.Name()) <= len(prefix) || e.Name()[:len(prefix)] != prefix {
			continue
		}
		name, err := domain.ParseWindowName(e.Name()[len(prefix):])
		if err != nil {
			continue
		}
		out = append(out, windowFile{path: filepath.Join(dir, e.Name()), name: name})
	}
	slices.SortFunc(out, func(a, b windowFile) int { return a.name.End - b.name.End })
	return out, nil
}
