package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/grib"
	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/netcdf"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/raster"
	"github.com/couchcryptid/ffgs-pipeline/internal/workspace"
)

// Convert decodes the downloaded steps, sums them into accumulation windows
// and writes one raster and one model-native NetCDF per window.
func (s *Stages) Convert(ctx context.Context, job Job) (Report, error) {
	cycle := job.CycleID()
	gribs := s.layout.GribDir(job.Region.ID, job.Model.ID, cycle)
	if skip, err := s.gate(job, Convert, gribs); skip || err != nil {
		return skipped("rasters already produced"), err
	}

	steps, first, err := s.decodeSteps(ctx, gribs, job.Model)
	if err != nil {
		return Report{}, err
	}
	if len(steps) == 0 {
		return Report{}, &domain.MissingInputError{Stage: Convert, Path: gribs}
	}
	if job.Model.Accumulation == domain.AccumulationCumulative {
		if steps, err = raster.Deaccumulate(steps); err != nil {
			return Report{}, &domain.ConversionError{File: gribs, Err: err}
		}
	}
	windows, err := raster.Accumulate(steps, job.Model.WindowSize, job.Model.StepHours)
	if err != nil {
		return Report{}, &domain.ConversionError{File: gribs, Err: err}
	}

	rasterDir := s.layout.RasterDir(job.Region.ID, job.Model.ID)
	ncDir := s.layout.NetCDFDir(job.Region.ID, job.Model.ID, cycle)
	for _, dir := range []string{rasterDir, ncDir} {
		if err := workspace.ClearDir(dir); err != nil {
			return Report{}, err
		}
	}

	globals := fieldAttrs(first)
	for _, w := range windows {
		// Every window shares the first file's transform.
		w.Grid.Transform = first.Grid.Transform
		name := domain.WindowName{Model: job.Model.ID, Cycle: cycle, Start: w.Start, End: w.End}.String()

		if err := netcdf.WriteRaster(filepath.Join(rasterDir, name), w.Grid); err != nil {
			return Report{}, &domain.FilesystemError{Op: "write raster", Path: name, Err: err}
		}
		native := netcdf.Native{
			Latitudes:  first.Latitudes,
			Longitudes: first.Longitudes,
			Values:     w.Grid.Values,
			Cycle:      job.Cycle,
			EndLead:    w.End,
			Attributes: globals,
		}
		if err := netcdf.WriteNative(filepath.Join(ncDir, name), native); err != nil {
			return Report{}, &domain.FilesystemError{Op: "write netcdf", Path: name, Err: err}
		}
		s.logger.Debug("wrote window", append(job.attrs(Convert), "window", name)...)
	}

	if err := s.finish(job, Convert, gribs); err != nil {
		return Report{}, err
	}
	s.logger.Info("conversion finished", append(job.attrs(Convert), "steps", len(steps), "windows", len(windows))...)
	return done(fmt.Sprintf("%d steps into %d windows", len(steps), len(windows))), nil
}

// decodeSteps decodes every step file of dir in lead order. The first decoded
// field is returned alongside for its coordinates and metadata.
func (s *Stages) decodeSteps(ctx context.Context, dir string, m domain.Model) ([]raster.Step, *grib.Field, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, &domain.FilesystemError{Op: "list", Path: dir, Err: err}
	}
	type stepFile struct {
		lead int
		path string
	}
	var files []stepFile
	for _, e := range entries {
		lead, err := domain.ParseStepFileName(e.Name())
		if err != nil {
			continue
		}
		files = append(files, stepFile{lead: lead, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].lead < files[j].lead })

	var (
		steps []raster.Step
		first *grib.Field
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		field, err := s.decoder.Decode(f.path, m.PrecipParameter())
		if err != nil {
			return nil, nil, &domain.ConversionError{File: f.path, Err: err}
		}
		if first == nil {
			first = field
		} else if !first.Grid.SameShape(field.Grid) {
			return nil, nil, &domain.ConversionError{File: f.path, Err: raster.ErrShapeMismatch}
		}
		steps = append(steps, raster.Step{Lead: f.lead, Grid: field.Grid})
	}
	return steps, first, nil
}

func fieldAttrs(f *grib.Field) []netcdf.Attr {
	if f == nil {
		return nil
	}
	keys := make([]string, 0, len(f.Attributes))
	for k := range f.Attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]netcdf.Attr, len(keys))
	for i, k := range keys {
		out[i] = netcdf.Attr{Key: k, Value: f.Attributes[k]}
	}
	return out
}
