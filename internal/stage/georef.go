package stage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/netcdf"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/workspace"
)

// ProcessedPrefix is prepended to georeferenced file names.
const ProcessedPrefix = "processed_"

// Georeference rewrites every window NetCDF into the canonical time, lat, lon
// layout under the cycle's processed directory.
func (s *Stages) Georeference(ctx context.Context, job Job) (Report, error) {
	cycle := job.CycleID()
	src := s.layout.NetCDFDir(job.Region.ID, job.Model.ID, cycle)
	if skip, err := s.gate(job, Georeference, src); skip || err != nil {
		return skipped("time steps already georeferenced"), err
	}
	files, err := listWindows(src, "")
	if err != nil {
		return Report{}, err
	}
	dst := s.layout.ProcessedDir(job.Region.ID, job.Model.ID, cycle)
	if err := workspace.ClearDir(dst); err != nil {
		return Report{}, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		out := filepath.Join(dst, ProcessedPrefix+f.name.String())
		opts := netcdf.GeoreferenceOptions{Cycle: job.Cycle, EndLead: f.name.End, Grid: job.Model.Grid}
		if err := netcdf.Georeference(f.path, out, opts); err != nil {
			return Report{}, &domain.ConversionError{File: f.path, Err: err}
		}
	}

	if err := s.finish(job, Georeference, src); err != nil {
		return Report{}, err
	}
	s.logger.Info("georeferencing finished", append(job.attrs(Georeference), "files", len(files))...)
	return done(fmt.Sprintf("%d time steps", len(files))), nil
}
