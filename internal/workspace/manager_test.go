package workspace_test

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/workspace"
)

const (
	model = "gfs"
	cycle = "2024050106"
)

func newManager(t *testing.T) (*workspace.Manager, workspace.Layout) {
	t.Helper()
	root := t.TempDir()
	layout := workspace.Layout{
		PublishedRoot: filepath.Join(root, "published"),
		WorkspaceRoot: filepath.Join(root, "workspace"),
	}
	return workspace.NewManager(layout, slog.New(slog.NewTextHandler(io.Discard, nil))), layout
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPrepare_ScaffoldsEveryRegion(t *testing.T) {
	m, l := newManager(t)

	redundant, err := m.Prepare(model, cycle, []string{"pr", "hispaniola"})
	require.NoError(t, err)
	assert.False(t, redundant)

	for _, region := range []string{"pr", "hispaniola"} {
		for _, dir := range []string{
			l.GribDir(region, model, cycle),
			l.NetCDFDir(region, model, cycle),
			l.ProcessedDir(region, model, cycle),
			l.RasterDir(region, model),
			l.ResampledDir(region, model),
		} {
			info, err := os.Stat(dir)
			require.NoError(t, err, dir)
			assert.Equal(t, fs.FileMode(0o777), info.Mode().Perm(), dir)
		}
	}

	marker, err := m.ReadMarker(model)
	require.NoError(t, err)
	assert.Empty(t, marker, "prepare never writes the marker")
}

func TestPrepare_RedundantDoesNotMutate(t *testing.T) {
	m, l := newManager(t)
	require.NoError(t, m.CommitMarker(model, cycle))

	redundant, err := m.Prepare(model, cycle, []string{"pr"})
	require.NoError(t, err)
	assert.True(t, redundant)
	_, err = os.Stat(l.RegionDir("pr"))
	assert.True(t, errors.Is(err, fs.ErrNotExist), "region directories must not be created")
}

func TestPrepare_ResumesInterruptedCycle(t *testing.T) {
	m, l := newManager(t)
	_, err := m.Prepare(model, cycle, []string{"pr"})
	require.NoError(t, err)

	partial := filepath.Join(l.GribDir("pr", model, cycle), "f006.grb2")
	writeFile(t, partial, "GRIB")

	_, err = m.Prepare(model, cycle, []string{"pr"})
	require.NoError(t, err)
	assert.FileExists(t, partial, "resume keeps existing work")
}

func TestPrepare_ClobberRebuilds(t *testing.T) {
	m, l := newManager(t)
	_, err := m.Prepare(model, cycle, []string{"pr"})
	require.NoError(t, err)
	partial := filepath.Join(l.GribDir("pr", model, cycle), "f006.grb2")
	writeFile(t, partial, "GRIB")

	require.NoError(t, m.CommitMarker(model, workspace.Clobber))
	redundant, err := m.Prepare(model, cycle, []string{"pr"})
	require.NoError(t, err)
	assert.False(t, redundant)
	assert.NoFileExists(t, partial)
	assert.DirExists(t, l.GribDir("pr", model, cycle))
}

func TestPrepare_KeepsOlderCycles(t *testing.T) {
	m, l := newManager(t)
	old := filepath.Join(l.ProcessedDir("pr", model, "2024050100"), "processed_x.nc")
	writeFile(t, old, "old")

	_, err := m.Prepare(model, cycle, []string{"pr"})
	require.NoError(t, err)
	assert.FileExists(t, old)
}

func TestCleanup_KeepsCurrentCycleAndDescriptor(t *testing.T) {
	m, l := newManager(t)
	writeFile(t, filepath.Join(l.CycleDir("pr", model, "2024050100"), "processed", "a.nc"), "old")
	writeFile(t, filepath.Join(l.CycleDir("pr", model, cycle), "processed", "b.nc"), "new")
	writeFile(t, l.DescriptorPath("pr", model), "<netcdf/>")

	require.NoError(t, m.Cleanup("pr", model, cycle))

	entries, err := os.ReadDir(l.ModelDir("pr", model))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{cycle, workspace.DescriptorName}, names)
}

func TestMarker_RoundTrip(t *testing.T) {
	m, _ := newManager(t)
	marker, err := m.ReadMarker(model)
	require.NoError(t, err)
	assert.Empty(t, marker)

	require.NoError(t, m.CommitMarker(model, cycle))
	marker, err = m.ReadMarker(model)
	require.NoError(t, err)
	assert.Equal(t, cycle, marker)
}

func TestSentinels(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Prepare(model, cycle, []string{"pr"})
	require.NoError(t, err)

	assert.False(t, m.Done("pr", model, cycle, "convert"))
	require.NoError(t, m.MarkDone("pr", model, cycle, "convert"))
	assert.True(t, m.Done("pr", model, cycle, "convert"))
}

func TestMarkDone_MissingCycleDir(t *testing.T) {
	m, _ := newManager(t)
	err := m.MarkDone("pr", model, cycle, "convert")
	var fe *domain.FilesystemError
	require.True(t, errors.As(err, &fe))
}

func TestLayout_Paths(t *testing.T) {
	l := workspace.Layout{PublishedRoot: "/pub", WorkspaceRoot: "/ws"}
	assert.Equal(t, "/pub/pr/gfs/2024050106/gribs", l.GribDir("pr", "gfs", cycle))
	assert.Equal(t, "/pub/pr/gfs/wms.ncml", l.DescriptorPath("pr", "gfs"))
	assert.Equal(t, "/ws/pr/gfs_rasters_resampled", l.ResampledDir("pr", "gfs"))
	assert.Equal(t, "/ws/pr/gfsresults.csv", l.ResultsPath("pr", "gfs"))
	assert.Equal(t, "/ws/gfs_timestamp.txt", l.MarkerPath("gfs"))
	assert.Equal(t, "/pub/pr/gfs/2024050106/_SUCCESS.zonal", l.SentinelPath("pr", "gfs", cycle, "zonal"))
}
