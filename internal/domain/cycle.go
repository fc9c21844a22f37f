package domain

import (
	"fmt"
	"slices"
	"time"
)

// CycleLayout is the text form of a cycle reference time.
const CycleLayout = "2006010215"

// Cycle is one model run, identified by its UTC reference time.
type Cycle struct {
	Model string
	Time  time.Time
}

// String returns the YYYYMMDDHH identifier used in directory names.
func (c Cycle) String() string { return FormatCycle(c.Time) }

// FormatCycle renders t as YYYYMMDDHH in UTC.
func FormatCycle(t time.Time) string { return t.UTC().Format(CycleLayout) }

// ParseCycle parses a YYYYMMDDHH identifier.
func ParseCycle(s string) (time.Time, error) {
	t, err := time.ParseInLocation(CycleLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cycle %q: %w", s, err)
	}
	return t, nil
}

// DetermineCycle picks the most recent schedule slot whose data should already
// be published at now, given the model's publication lag. When no slot of the
// current UTC day qualifies, the last slot of the previous day is used.
func DetermineCycle(now time.Time, schedule []int, lag time.Duration) (time.Time, error) {
	if len(schedule) == 0 {
		return time.Time{}, &ScheduleResolutionError{Reason: "empty schedule"}
	}
	hours := slices.Clone(schedule)
	slices.Sort(hours)
	for _, h := range hours {
		if h < 0 || h > 23 {
			return time.Time{}, &ScheduleResolutionError{Reason: fmt.Sprintf("invalid schedule hour %d", h)}
		}
	}

	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := len(hours) - 1; i >= 0; i-- {
		slot := day.Add(time.Duration(hours[i]) * time.Hour)
		if now.Sub(slot) >= lag {
			return slot, nil
		}
	}
	return day.AddDate(0, 0, -1).Add(time.Duration(hours[len(hours)-1]) * time.Hour), nil
}

// ValidTime returns the wall-clock time of a lead hour within a cycle.
func ValidTime(cycle time.Time, lead int) time.Time {
	return cycle.Add(time.Duration(lead) * time.Hour)
}

// TimestepLabel is the YYYYMMDDHH valid time of a window end, used to tag
// zonal result rows.
func TimestepLabel(cycle time.Time, endLead int) string {
	return FormatCycle(ValidTime(cycle, endLead))
}
