package stage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/raster"
)

// WriteResults replaces the results table at path.
func WriteResults(path string, rows []domain.ZonalRow) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, domain.ResultsHeader)
	for _, r := range rows {
		records = append(records, []string{
			r.CatID,
			strconv.Itoa(r.Count),
			formatNullable(r.Mean),
			formatNullable(r.Max),
			r.Timestamp,
			r.Timestep,
		})
	}
	return writeCSV(path, records)
}

// ReadResults loads a table written by WriteResults.
func ReadResults(path string) ([]domain.ZonalRow, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || !slices.Equal(records[0], domain.ResultsHeader) {
		return nil, fmt.Errorf("%s: unexpected header", path)
	}
	rows := make([]domain.ZonalRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		count, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: count: %w", path, i+2, err)
		}
		mean, err := parseNullable(rec[2])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: mean: %w", path, i+2, err)
		}
		hi, err := parseNullable(rec[3])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: max: %w", path, i+2, err)
		}
		rows = append(rows, domain.ZonalRow{
			CatID:     rec[0],
			Count:     count,
			Mean:      mean,
			Max:       hi,
			Timestamp: rec[4],
			Timestep:  rec[5],
		})
	}
	return rows, nil
}

// ColorScales summarizes rows per polygon in first-seen order: the largest
// mean, the largest max and, when cumulative is set, the rounded sum of means.
func ColorScales(rows []domain.ZonalRow, cumulative bool) []domain.ColorScale {
	var (
		order []string
		by    = map[string]*domain.ColorScale{}
		sums  = map[string]float64{}
	)
	for _, r := range rows {
		cs, ok := by[r.CatID]
		if !ok {
			cs = &domain.ColorScale{CatID: r.CatID}
			by[r.CatID] = cs
			order = append(order, r.CatID)
		}
		cs.Mean = maxPtr(cs.Mean, r.Mean)
		cs.Max = maxPtr(cs.Max, r.Max)
		if r.Mean != nil {
			sums[r.CatID] += *r.Mean
			if cumulative {
				v := raster.Round(sums[r.CatID], 1)
				cs.CumMean = &v
			}
		}
	}
	out := make([]domain.ColorScale, len(order))
	for i, id := range order {
		out[i] = *by[id]
	}
	return out
}

// WriteColorScales replaces the colour-scale table at path.
func WriteColorScales(path string, scales []domain.ColorScale, cumulative bool) error {
	header := []string{"cat_id", "mean", "max"}
	if cumulative {
		header = append(header, "cum_mean")
	}
	records := [][]string{header}
	for _, cs := range scales {
		rec := []string{cs.CatID, formatNullable(cs.Mean), formatNullable(cs.Max)}
		if cumulative {
			rec = append(rec, formatNullable(cs.CumMean))
		}
		records = append(records, rec)
	}
	return writeCSV(path, records)
}

func maxPtr(cur, v *float64) *float64 {
	if v == nil {
		return cur
	}
	if cur == nil || *v > *cur {
		x := *v
		return &x
	}
	return cur
}

func formatNullable(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func parseNullable(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// writeCSV writes through a temporary file so readers never see a half table.
func writeCSV(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &domain.FilesystemError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &domain.FilesystemError{Op: "create", Path: tmp, Err: err}
	}
	w := csv.NewWriter(f)
	werr := w.WriteAll(records)
	if err := f.Close(); err != nil && werr == nil {
		werr = err
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return &domain.FilesystemError{Op: "write", Path: path, Err: werr}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &domain.FilesystemError{Op: "rename", Path: tmp, Err: err}
	}
	return nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.FilesystemError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	r := csv.NewReader(f)
	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		records = append(records, rec)
	}
}
