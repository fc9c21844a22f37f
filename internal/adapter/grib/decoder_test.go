package grib

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/nilsmagnus/grib/griblib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
)

func TestRegularGrid_Conversion(t *testing.T) {
	g, err := regularGrid(griblib.Grid0{
		Ni: 3, Nj: 2,
		La1: 19000000, Lo1: 292000000,
		La2: 18750000, Lo2: 292500000,
		Di: 250000, Dj: 250000,
	})
	require.NoError(t, err)
	assert.InDelta(t, 19.0, g.La1, 1e-9)
	assert.InDelta(t, 292.0, g.Lo1, 1e-9)
	assert.InDelta(t, 0.25, g.Di, 1e-9)

	ptr, err := regularGrid(&griblib.Grid0{Ni: 1, Nj: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, ptr.Ni)

	_, err = regularGrid("lambert")
	require.Error(t, err)
}

func TestField_NorthFirst(t *testing.T) {
	g := latLonGrid{Ni: 3, Nj: 2, La1: 19, Lo1: 292, La2: 18.75, Lo2: 292.5, Di: 0.25, Dj: 0.25}
	f, err := g.field([]float64{1, 2, 3, 4, 5, 9.999e20})
	require.NoError(t, err)

	assert.Equal(t, []float64{19, 18.75}, f.Latitudes)
	assert.Equal(t, []float64{-68, -67.75, -67.5}, f.Longitudes)
	assert.Equal(t, []float64{1, 2, 3}, f.Grid.Values[0])
	assert.True(t, math.IsNaN(f.Grid.Values[1][2]))

	tr := f.Grid.Transform
	assert.InDelta(t, -68.125, tr.OriginX, 1e-9)
	assert.InDelta(t, 19.125, tr.OriginY, 1e-9)
	assert.InDelta(t, -0.25, tr.PixelHeight, 1e-9)
}

func TestField_SouthFirstIsFlipped(t *testing.T) {
	g := latLonGrid{Ni: 2, Nj: 2, La1: 18, Lo1: -68, La2: 19, Lo2: -67, Di: 1, Dj: 1, ScanningMode: 0x40}
	f, err := g.field([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{19, 18}, f.Latitudes)
	assert.Equal(t, [][]float64{{3, 4}, {1, 2}}, f.Grid.Values)
}

func TestField_SizeMismatch(t *testing.T) {
	_, err := latLonGrid{Ni: 2, Nj: 2}.field([]float64{1})
	require.Error(t, err)
}

func TestDecode_NotGRIB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f006.grb2")
	require.NoError(t, os.WriteFile(path, []byte("<html>not found</html>"), 0o644))
	_, err := NewDecoder().Decode(path, domain.PrecipitationParameter)
	require.Error(t, err)
}

func TestDecode_MissingFile(t *testing.T) {
	_, err := NewDecoder().Decode(filepath.Join(t.TempDir(), "nope.grb2"), domain.PrecipitationParameter)
	require.Error(t, err)
}
