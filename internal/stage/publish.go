package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/netcdf"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/raster"
	"github.com/couchcryptid/ffgs-pipeline/internal/workspace"
)

// Publish writes the time-join descriptor, the display bounds and the colour
// scales for a georeferenced cycle. It overwrites previous output and may be
// repeated safely.
func (s *Stages) Publish(_ context.Context, job Job) (Report, error) {
	cycle := job.CycleID()
	processed := s.layout.ProcessedDir(job.Region.ID, job.Model.ID, cycle)
	if !workspace.IsDir(processed) {
		return Report{}, &domain.MissingInputError{Stage: Publish, Path: processed}
	}
	files, err := listWindows(processed, ProcessedPrefix)
	if err != nil {
		return Report{}, err
	}
	if len(files) == 0 {
		return Report{}, &domain.MissingInputError{Stage: Publish, Path: processed}
	}

	desc := netcdf.Descriptor{
		Title:     job.Model.Label() + " " + cycle,
		Cycle:     cycle,
		Units:     netcdf.TimeUnits(job.Cycle),
		FirstLead: files[0].name.End,
		Increment: job.Model.WindowHours(),
	}
	descPath := s.layout.DescriptorPath(job.Region.ID, job.Model.ID)
	if err := netcdf.WriteDescriptor(descPath, desc); err != nil {
		return Report{}, &domain.FilesystemError{Op: "write descriptor", Path: descPath, Err: err}
	}

	bounds, err := Bounds(files[0].path, job.Model.Bounds)
	if err != nil {
		return Report{}, err
	}
	boundsPath := s.layout.BoundsPath(job.Region.ID, job.Model.ID)
	if err := writeJSON(boundsPath, bounds); err != nil {
		return Report{}, err
	}

	resultsPath := s.layout.ResultsPath(job.Region.ID, job.Model.ID)
	rows, err := ReadResults(resultsPath)
	if err != nil {
		return Report{}, err
	}
	scales := ColorScales(rows, job.Model.CumulativeMean)
	if err := WriteColorScales(s.layout.ColorScalesPath(job.Region.ID, job.Model.ID), scales, job.Model.CumulativeMean); err != nil {
		return Report{}, err
	}

	if err := s.ws.MarkDone(job.Region.ID, job.Model.ID, cycle, Publish); err != nil {
		return Report{}, err
	}
	s.logger.Info("cycle published", append(job.attrs(Publish), "descriptor", descPath, "polygons", len(scales))...)
	return done(fmt.Sprintf("%d time steps, %d polygons", len(files), len(scales))), nil
}

// Bounds reads each variable of vars from path and returns display name to
// "floor(min),ceil(max)" over its non-NaN values, or "0,0" if none.
func Bounds(path string, vars []domain.BoundsVariable) (map[string]string, error) {
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		values, err := netcdf.ReadVariable(path, v.Key)
		if err != nil {
			return nil, &domain.ConversionError{File: path, Err: err}
		}
		lo, hi, ok := raster.MinMax(values)
		if !ok {
			out[v.Display] = "0,0"
			continue
		}
		out[v.Display] = fmt.Sprintf("%d,%d", int64(math.Floor(lo)), int64(math.Ceil(hi)))
	}
	return out, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return &domain.FilesystemError{Op: "write", Path: path, Err: err}
	}
	return nil
}
