package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
)

// Clobber is the marker value that forces a full reprocess of the next cycle.
const Clobber = "clobber"

const dirMode fs.FileMode = 0o777

// Manager prepares and tears down cycle directories.
type Manager struct {
	layout Layout
	logger *slog.Logger
}

// NewManager creates a Manager over layout.
func NewManager(layout Layout, logger *slog.Logger) *Manager {
	return &Manager{layout: layout, logger: logger}
}

// Layout returns the managed layout.
func (m *Manager) Layout() Layout { return m.layout }

// ReadMarker returns the last completed cycle of model, or "" if none.
func (m *Manager) ReadMarker(model string) (string, error) {
	path := m.layout.MarkerPath(model)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", &domain.FilesystemError{Op: "read marker", Path: path, Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}

// CommitMarker records cycle as the last completed cycle of model.
func (m *Manager) CommitMarker(model, cycle string) error {
	path := m.layout.MarkerPath(model)
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return &domain.FilesystemError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if err := os.WriteFile(path, []byte(cycle), 0o666); err != nil {
		return &domain.FilesystemError{Op: "write marker", Path: path, Err: err}
	}
	return nil
}

// Prepare readies the directories of cycle for every region. It reports
// redundant=true without touching the filesystem when the marker already
// names cycle. An interrupted run of the same cycle is resumed in place.
func (m *Manager) Prepare(model, cycle string, regions []string) (redundant bool, err error) {
	marker, err := m.ReadMarker(model)
	if err != nil {
		return false, err
	}
	if marker == cycle {
		return true, nil
	}

	if marker != Clobber && m.allExist(model, cycle, regions) {
		m.logger.Info("resuming interrupted cycle", "model", model, "cycle", cycle)
		return false, nil
	}

	for _, region := range regions {
		if err := m.scaffold(region, model, cycle); err != nil {
			return false, err
		}
	}
	m.logger.Info("cycle scaffolded", "model", model, "cycle", cycle, "regions", len(regions), "clobber", marker == Clobber)
	return false, nil
}

func (m *Manager) allExist(model, cycle string, regions []string) bool {
	if len(regions) == 0 {
		return false
	}
	for _, region := range regions {
		if !isDir(m.layout.CycleDir(region, model, cycle)) {
			return false
		}
	}
	return true
}

// scaffold destroys and recreates the working directories of one region.
func (m *Manager) scaffold(region, model, cycle string) error {
	l := m.layout
	fresh := []string{
		l.CycleDir(region, model, cycle),
		l.RasterDir(region, model),
		l.ResampledDir(region, model),
	}
	for _, dir := range fresh {
		if err := os.RemoveAll(dir); err != nil {
			return &domain.FilesystemError{Op: "remove", Path: dir, Err: err}
		}
	}
	dirs := []string{
		l.GribDir(region, model, cycle),
		l.NetCDFDir(region, model, cycle),
		l.ProcessedDir(region, model, cycle),
		l.RasterDir(region, model),
		l.ResampledDir(region, model),
	}
	for _, dir := range dirs {
		if err := MkdirAll(dir); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup removes every superseded entry under published/<region>/<model>,
// keeping only the current cycle and the aggregation descriptor.
func (m *Manager) Cleanup(region, model, cycle string) error {
	dir := m.layout.ModelDir(region, model)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &domain.FilesystemError{Op: "list", Path: dir, Err: err}
	}
	for _, e := range entries {
		if e.Name() == cycle || e.Name() == DescriptorName {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			return &domain.FilesystemError{Op: "remove", Path: path, Err: err}
		}
		m.logger.Debug("removed superseded entry", "path", path)
	}
	return nil
}

// MarkDone records that stage completed for the cycle.
func (m *Manager) MarkDone(region, model, cycle, stage string) error {
	path := m.layout.SentinelPath(region, model, cycle, stage)
	if err := os.WriteFile(path, nil, 0o666); err != nil {
		return &domain.FilesystemError{Op: "write sentinel", Path: path, Err: err}
	}
	return nil
}

// Done reports whether stage has completed for the cycle.
func (m *Manager) Done(region, model, cycle, stage string) bool {
	_, err := os.Stat(m.layout.SentinelPath(region, model, cycle, stage))
	return err == nil
}

// MkdirAll creates dir with mode 0777 regardless of the process umask.
func MkdirAll(dir string) error {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return &domain.FilesystemError{Op: "mkdir", Path: dir, Err: err}
	}
	if err := os.Chmod(dir, dirMode); err != nil {
		return &domain.FilesystemError{Op: "chmod", Path: dir, Err: err}
	}
	return nil
}

// ClearDir empties dir, creating it if needed.
func ClearDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return &domain.FilesystemError{Op: "remove", Path: dir, Err: err}
	}
	return MkdirAll(dir)
}

// RemoveDir deletes dir and its contents.
func RemoveDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return &domain.FilesystemError{Op: "remove", Path: dir, Err: err}
	}
	return nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool { return isDir(path) }

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// String describes the layout for logs.
func (l Layout) String() string {
	return fmt.Sprintf("published=%s workspace=%s", l.PublishedRoot, l.WorkspaceRoot)
}
