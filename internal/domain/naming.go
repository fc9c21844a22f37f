package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

// WindowName identifies one accumulation window within a cycle. It is the
// single source of timestep identity for every file derived from the window.
type WindowName struct {
	Model     string
	Cycle     string
	Start     int // lead hour at which accumulation begins
	End       int // lead hour at which accumulation ends
	Resampled bool
}

var (
	windowPattern = regexp.MustCompile(`^([A-Za-z0-9-]+)_(\d{10})_h(\d{3,})-(\d{3,})(_resampled)?\.nc$`)
	stepPattern   = regexp.MustCompile(`^f(\d{3,})\.grb2$`)
)

// String renders the file name, e.g. "gfs_2024050100_h006-024.nc".
func (w WindowName) String() string {
	suffix := ""
	if w.Resampled {
		suffix = "_resampled"
	}
	return fmt.Sprintf("%s_%s_h%03d-%03d%s.nc", w.Model, w.Cycle, w.Start, w.End, suffix)
}

// WithResampled returns a copy of w tagged as resampled.
func (w WindowName) WithResampled() WindowName {
	w.Resampled = true
	return w
}

// ParseWindowName parses a file name produced by WindowName.String.
func ParseWindowName(name string) (WindowName, error) {
	m := windowPattern.FindStringSubmatch(name)
	if m == nil {
		return WindowName{}, fmt.Errorf("not a window file name: %q", name)
	}
	start, err := strconv.Atoi(m[3])
	if err != nil {
		return WindowName{}, fmt.Errorf("window start in %q: %w", name, err)
	}
	end, err := strconv.Atoi(m[4])
	if err != nil {
		return WindowName{}, fmt.Errorf("window end in %q: %w", name, err)
	}
	if end < start {
		return WindowName{}, fmt.Errorf("window %q ends before it starts", name)
	}
	return WindowName{Model: m[1], Cycle: m[2], Start: start, End: end, Resampled: m[5] != ""}, nil
}

// StepFileName is the raw download name for a lead hour.
func StepFileName(lead int) string {
	return fmt.Sprintf("f%03d.grb2", lead)
}

// ParseStepFileName returns the lead hour encoded in a raw download name.
func ParseStepFileName(name string) (int, error) {
	m := stepPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("not a step file name: %q", name)
	}
	return strconv.Atoi(m[1])
}
