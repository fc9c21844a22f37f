package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ScheduleResolutionError means no cycle could be derived from a model schedule.
type ScheduleResolutionError struct {
	Reason string
}

func (e *ScheduleResolutionError) Error() string {
	return "resolve cycle schedule: " + e.Reason
}

// AcquisitionError reports a failed download of one forecast step.
type AcquisitionError struct {
	Step       int
	StatusCode int
	URL        string
	Err        error
}

func (e *AcquisitionError) Error() string {
	switch {
	case e.NotPublished():
		return fmt.Sprintf("download step %03d: cycle not yet published upstream (status %d)", e.Step, e.StatusCode)
	case e.Transient():
		return fmt.Sprintf("download step %03d: transient server or request problem (status %d)", e.Step, e.StatusCode)
	case e.StatusCode != 0:
		return fmt.Sprintf("download step %03d: unexpected status %d", e.Step, e.StatusCode)
	default:
		return fmt.Sprintf("download step %03d: %v", e.Step, e.Err)
	}
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// NotPublished reports whether the archive does not have this cycle yet.
func (e *AcquisitionError) NotPublished() bool {
	return e.StatusCode == http.StatusNotFound
}

// Transient reports whether the archive failed in a way that may clear on a later run.
func (e *AcquisitionError) Transient() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// MissingInputError means a stage found neither its input nor its own completion marker.
type MissingInputError struct {
	Stage string
	Path  string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: input %s missing and stage has not completed", e.Stage, e.Path)
}

// ConversionError reports a raw or intermediate file that could not be decoded or written.
type ConversionError struct {
	File string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.File, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// FilesystemError wraps an I/O failure on the workspace or published tree.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// IsAcquisition reports whether err stems from a failed download.
func IsAcquisition(err error) bool {
	var ae *AcquisitionError
	return errors.As(err, &ae)
}
