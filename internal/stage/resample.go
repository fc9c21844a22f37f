package stage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/netcdf"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/raster"
	"github.com/couchcryptid/ffgs-pipeline/internal/workspace"
)

// Resample upsamples every window raster by the model's multiplier using
// nearest-neighbour replication.
func (s *Stages) Resample(ctx context.Context, job Job) (Report, error) {
	src := s.layout.RasterDir(job.Region.ID, job.Model.ID)
	if skip, err := s.gate(job, Resample, src); skip || err != nil {
		return skipped("rasters already resampled"), err
	}
	files, err := listWindows(src, "")
	if err != nil {
		return Report{}, err
	}
	dst := s.layout.ResampledDir(job.Region.ID, job.Model.ID)
	if err := workspace.ClearDir(dst); err != nil {
		return Report{}, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		g, err := netcdf.ReadRaster(f.path)
		if err != nil {
			return Report{}, &domain.ConversionError{File: f.path, Err: err}
		}
		out, err := raster.Resample(g, job.Model.Multiplier)
		if err != nil {
			return Report{}, &domain.ConversionError{File: f.path, Err: err}
		}
		name := f.name.WithResampled().String()
		if err := netcdf.WriteRaster(filepath.Join(dst, name), out); err != nil {
			return Report{}, &domain.FilesystemError{Op: "write raster", Path: name, Err: err}
		}
	}

	if err := s.finish(job, Resample, src); err != nil {
		return Report{}, err
	}
	s.logger.Info("resampling finished", append(job.attrs(Resample), "rasters", len(files), "multiplier", job.Model.Multiplier)...)
	return done(fmt.Sprintf("%d rasters at x%d", len(files), job.Model.Multiplier)), nil
}
