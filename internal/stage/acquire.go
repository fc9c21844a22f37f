package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/ffgs-pipeline/internal/adapter/archive"
	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/workspace"
)

// ExpandURL fills a model's URL template for one lead hour of a job.
//
//	{date} YYYYMMDD   {hour} HH   {step} zero-padded lead   {file_hour} valid time YYYYMMDDHH
//	{left} {right} {top} {bottom} region bounding box
func ExpandURL(job Job, lead int) string {
	b := job.Region.BBox
	step := strconv.Itoa(lead)
	if d := job.Model.StepDigits; d > 0 {
		step = fmt.Sprintf("%0*d", d, lead)
	}
	r := strings.NewReplacer(
		"{date}", job.Cycle.UTC().Format("20060102"),
		"{hour}", job.Cycle.UTC().Format("15"),
		"{step}", step,
		"{file_hour}", domain.FormatCycle(domain.ValidTime(job.Cycle, lead)),
		"{left}", formatCoord(b.Left),
		"{right}", formatCoord(b.Right),
		"{top}", formatCoord(b.Top),
		"{bottom}", formatCoord(b.Bottom),
	)
	return r.Replace(job.Model.URLTemplate)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Download fetches every lead step of the job into the cycle's gribs directory.
// A directory already holding every step is left alone; anything less is
// cleared and downloaded again from the first step.
func (s *Stages) Download(ctx context.Context, job Job) (Report, error) {
	dir := s.layout.GribDir(job.Region.ID, job.Model.ID, job.CycleID())
	if skip, err := s.gate(job, Download, dir); skip || err != nil {
		return skipped("raw files already converted"), err
	}

	leads := job.Model.Leads()
	have, err := presentLeads(dir)
	if err != nil {
		return Report{}, err
	}
	if containsAll(have, leads) {
		s.logger.Info("all forecast steps already present", append(job.attrs(Download), "steps", len(leads))...)
		return skipped(fmt.Sprintf("%d steps present", len(leads))), s.ws.MarkDone(job.Region.ID, job.Model.ID, job.CycleID(), Download)
	}
	if err := workspace.ClearDir(dir); err != nil {
		return Report{}, err
	}

	var total int64
	for _, lead := range leads {
		url := ExpandURL(job, lead)
		n, err := s.fetchStep(ctx, url, filepath.Join(dir, domain.StepFileName(lead)), lead)
		if err != nil {
			return Report{}, err
		}
		total += n
		s.metrics.DownloadedBytes.WithLabelValues(job.Model.ID).Add(float64(n))
		s.logger.Debug("downloaded step", append(job.attrs(Download), "lead", lead, "bytes", n)...)
	}
	if err := s.ws.MarkDone(job.Region.ID, job.Model.ID, job.CycleID(), Download); err != nil {
		return Report{}, err
	}
	s.logger.Info("downloads finished", append(job.attrs(Download), "steps", len(leads), "bytes", total)...)
	return done(fmt.Sprintf("%d steps, %d bytes", len(leads), total)), nil
}

// fetchStep downloads to a temporary name so that a killed run never leaves a
// truncated file under a valid step name.
func (s *Stages) fetchStep(ctx context.Context, url, path string, lead int) (int64, error) {
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, &domain.FilesystemError{Op: "create", Path: tmp, Err: err}
	}
	n, ferr := s.fetcher.Fetch(ctx, url, f)
	if err := f.Close(); err != nil && ferr == nil {
		ferr = &domain.FilesystemError{Op: "close", Path: tmp, Err: err}
	}
	if ferr != nil {
		_ = os.Remove(tmp)
		var fe *domain.FilesystemError
		if errors.As(ferr, &fe) {
			return 0, ferr
		}
		var se *archive.StatusError
		if errors.As(ferr, &se) {
			return 0, &domain.AcquisitionError{Step: lead, StatusCode: se.StatusCode, URL: url, Err: ferr}
		}
		return 0, &domain.AcquisitionError{Step: lead, URL: url, Err: ferr}
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, &domain.FilesystemError{Op: "rename", Path: tmp, Err: err}
	}
	return n, nil
}

// presentLeads returns the lead hours of the step files in dir.
func presentLeads(dir string) (map[int]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &domain.FilesystemError{Op: "list", Path: dir, Err: err}
	}
	leads := make(map[int]bool, len(entries))
	for _, e := range entries {
		if lead, err := domain.ParseStepFileName(e.Name()); err == nil {
			leads[lead] = true
		}
	}
	return leads, nil
}

func containsAll(have map[int]bool, want []int) bool {
	for _, lead := range want {
		if !have[lead] {
			return false
		}
	}
	return true
}
