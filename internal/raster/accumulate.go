package raster

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when grids combined cell-wise differ in size.
var ErrShapeMismatch = errors.New("raster shapes differ")

// Step is one decoded forecast step.
type Step struct {
	Lead int
	Grid *Grid
}

// Window is the sum of consecutive steps between two lead hours.
type Window struct {
	Start int
	End   int
	Grid  *Grid
}

// Sum adds grids cell-wise. NaN in any input yields NaN in the output.
func Sum(grids ...*Grid) (*Grid, error) {
	if len(grids) == 0 {
		return nil, errors.New("sum of zero grids")
	}
	out := grids[0].Clone()
	for _, g := range grids[1:] {
		if !out.SameShape(g) {
			return nil, ErrShapeMismatch
		}
		for i, row := range g.Values {
			for j, v := range row {
				out.Values[i][j] += v
			}
		}
	}
	return out, nil
}

// Deaccumulate converts totals-since-reference into per-step amounts by
// subtracting each step's predecessor. The first step is kept as is.
func Deaccumulate(steps []Step) ([]Step, error) {
	out := make([]Step, len(steps))
	for k, s := range steps {
		if k == 0 {
			out[k] = Step{Lead: s.Lead, Grid: s.Grid.Clone()}
			continue
		}
		prev := steps[k-1].Grid
		if !prev.SameShape(s.Grid) {
			return nil, fmt.Errorf("lead %d: %w", s.Lead, ErrShapeMismatch)
		}
		g := s.Grid.Clone()
		for i, row := range g.Values {
			for j := range row {
				row[j] -= prev.Values[i][j]
			}
		}
		out[k] = Step{Lead: s.Lead, Grid: g}
	}
	return out, nil
}

// Accumulate groups lead-ordered steps into windows of size steps and sums each
// group. A trailing group shorter than size is still emitted. stepHours gives
// the interval each step covers, so a window starts stepHours before its first lead.
func Accumulate(steps []Step, size, stepHours int) ([]Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size %d", size)
	}
	var windows []Window
	for lo := 0; lo < len(steps); lo += size {
		hi := min(lo+size, len(steps))
		group := steps[lo:hi]
		grids := make([]*Grid, len(group))
		for i, s := range group {
			grids[i] = s.Grid
		}
		sum, err := Sum(grids...)
		if err != nil {
			return nil, fmt.Errorf("window ending at lead %d: %w", group[len(group)-1].Lead, err)
		}
		windows = append(windows, Window{
			Start: max(group[0].Lead-stepHours, 0),
			End:   group[len(group)-1].Lead,
			Grid:  sum,
		})
	}
	return windows, nil
}
