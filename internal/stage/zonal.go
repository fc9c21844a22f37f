package stage

import (
	"context"
	"fmt"
	"math"

	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/netcdf"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/raster"
)

// Aggregate computes per-polygon statistics for every resampled window and
// persists them as the region's results table.
func (s *Stages) Aggregate(ctx context.Context, job Job) (Report, error) {
	src := s.layout.ResampledDir(job.Region.ID, job.Model.ID)
	if skip, err := s.gate(job, Zonal, src); skip || err != nil {
		return skipped("statistics already computed"), err
	}
	zones, err := s.zones.Load(job.Region.ID)
	if err != nil {
		return Report{}, fmt.Errorf("load polygons for %s: %w", job.Region.ID, err)
	}
	files, err := listWindows(src, "")
	if err != nil {
		return Report{}, err
	}

	rows := make([]domain.ZonalRow, 0, len(files)*len(zones))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		g, err := netcdf.ReadRaster(f.path)
		if err != nil {
			return Report{}, &domain.ConversionError{File: f.path, Err: err}
		}
		timestep := domain.TimestepLabel(job.Cycle, f.name.End)
		for _, st := range raster.ZonalStats(g, zones) {
			rows = append(rows, zonalRow(st, job.CycleID(), timestep))
		}
	}

	path := s.layout.ResultsPath(job.Region.ID, job.Model.ID)
	if err := WriteResults(path, rows); err != nil {
		return Report{}, err
	}
	s.metrics.ZonesAggregated.WithLabelValues(job.Model.ID).Add(float64(len(rows)))

	if err := s.finish(job, Zonal, src); err != nil {
		return Report{}, err
	}
	s.logger.Info("zonal statistics written", append(job.attrs(Zonal), "rows", len(rows), "path", path)...)
	return Report{Outcome: domain.OutcomeOK, Detail: fmt.Sprintf("%d rows", len(rows)), Rows: rows}, nil
}

// zonalRow rounds statistics to one decimal place. Empty zones keep nil
// mean and max so that "no data" stays distinct from zero.
func zonalRow(st raster.Stats, cycle, timestep string) domain.ZonalRow {
	row := domain.ZonalRow{CatID: st.ID, Count: st.Count, Timestamp: cycle, Timestep: timestep}
	if st.Count > 0 && !math.IsNaN(st.Mean) {
		mean, hi := raster.Round(st.Mean, 1), raster.Round(st.Max, 1)
		row.Mean, row.Max = &mean, &hi
	}
	return row
}
