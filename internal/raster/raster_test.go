package raster

import (
	"math"
	"testing"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var unitBox = domain.BBox{Left: 0, Right: 2, Bottom: 0, Top: 2}

func uniform(v float64) *Grid {
	return NewGrid(2, 2, FromBBox(unitBox, 2, 2), v)
}

func rect(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

func TestTransform_RoundTrip(t *testing.T) {
	tr := FromBBox(domain.BBox{Left: -68, Right: -65, Bottom: 17, Top: 19}, 12, 8)
	assert.InDelta(t, 0.25, tr.PixelWidth, 1e-12)
	assert.InDelta(t, -0.25, tr.PixelHeight, 1e-12)

	parsed, err := ParseTransform(tr.String())
	require.NoError(t, err)
	assert.Equal(t, tr, parsed)
}

func TestParseTransform_Rejects(t *testing.T) {
	_, err := ParseTransform("1 2 3")
	require.Error(t, err)
	_, err = ParseTransform("0 1 0.5 0 0 -1")
	require.Error(t, err)
}

func TestGridBounds(t *testing.T) {
	assert.Equal(t, unitBox, uniform(0).Bounds())
}

func TestSum_NaNPropagates(t *testing.T) {
	a := uniform(1)
	b := uniform(2)
	b.Values[0][1] = math.NaN()

	got, err := Sum(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got.Values[0][0], 1e-12)
	assert.True(t, math.IsNaN(got.Values[0][1]))
	assert.InDelta(t, 1.0, a.Values[0][0], 1e-12, "inputs are not modified")
}

func TestSum_ShapeMismatch(t *testing.T) {
	_, err := Sum(uniform(1), NewGrid(3, 2, Transform{}, 0))
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestAccumulate_FullAndTrailingWindows(t *testing.T) {
	var steps []Step
	for _, lead := range []int{6, 12, 18, 24, 30, 36} {
		steps = append(steps, Step{Lead: lead, Grid: uniform(float64(lead) / 6)})
	}

	windows, err := Accumulate(steps, 4, 6)
	require.NoError(t, err)
	require.Len(t, windows, 2)

	assert.Equal(t, 0, windows[0].Start)
	assert.Equal(t, 24, windows[0].End)
	assert.InDelta(t, 1.0+2+3+4, windows[0].Grid.Values[1][1], 1e-12)

	assert.Equal(t, 24, windows[1].Start)
	assert.Equal(t, 36, windows[1].End)
	assert.InDelta(t, 5.0+6, windows[1].Grid.Values[0][0], 1e-12)
}

func TestAccumulate_SumEqualsStepSum(t *testing.T) {
	steps := []Step{
		{Lead: 6, Grid: &Grid{Values: [][]float64{{0.5, 1}, {2, math.NaN()}}, Transform: FromBBox(unitBox, 2, 2)}},
		{Lead: 12, Grid: &Grid{Values: [][]float64{{1.5, 0}, {0.25, 3}}, Transform: FromBBox(unitBox, 2, 2)}},
	}
	windows, err := Accumulate(steps, 4, 6)
	require.NoError(t, err)
	require.Len(t, windows, 1)

	want := [][]float64{{2, 1}, {2.25, math.NaN()}}
	if diff := cmp.Diff(want, windows[0].Grid.Values, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
}

func TestDeaccumulate(t *testing.T) {
	steps := []Step{
		{Lead: 1, Grid: uniform(1)},
		{Lead: 2, Grid: uniform(3)},
		{Lead: 3, Grid: uniform(3.5)},
	}
	got, err := Deaccumulate(steps)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 1.0, got[0].Grid.Values[0][0], 1e-12)
	assert.InDelta(t, 2.0, got[1].Grid.Values[0][0], 1e-12)
	assert.InDelta(t, 0.5, got[2].Grid.Values[1][1], 1e-12)
	assert.InDelta(t, 3.0, steps[1].Grid.Values[0][0], 1e-12, "inputs are not modified")
}

func TestResample_Fidelity(t *testing.T) {
	src := &Grid{Values: [][]float64{{1, 2, 3}, {4, math.NaN(), 6}}, Transform: FromBBox(domain.BBox{Left: 0, Right: 3, Bottom: 0, Top: 2}, 3, 2)}
	const m = 4
	out, err := Resample(src, m)
	require.NoError(t, err)
	require.Equal(t, 8, out.Height())
	require.Equal(t, 12, out.Width())

	for i := range out.Height() {
		for j := range out.Width() {
			want := src.Values[i/m][j/m]
			got := out.Values[i][j]
			if math.IsNaN(want) {
				assert.True(t, math.IsNaN(got), "cell %d,%d", i, j)
				continue
			}
			assert.Equal(t, want, got, "cell %d,%d", i, j)
		}
	}
	assert.Equal(t, src.Bounds(), out.Bounds())
	assert.InDelta(t, 0.25, out.Transform.PixelWidth, 1e-12)
}

func TestResample_InvalidMultiplier(t *testing.T) {
	_, err := Resample(uniform(1), 0)
	require.Error(t, err)
}

func TestZonalStats_UniformValue(t *testing.T) {
	g, err := Resample(uniform(4), 10)
	require.NoError(t, err)

	stats := ZonalStats(g, []Zone{
		{ID: "cell", Geometry: rect(0, 1, 1, 2)},
		{ID: "all", Geometry: rect(0, 0, 2, 2)},
	})
	require.Len(t, stats, 2)

	assert.Equal(t, Stats{ID: "cell", Count: 100, Mean: 4, Max: 4}, stats[0])
	assert.Equal(t, Stats{ID: "all", Count: 400, Mean: 4, Max: 4}, stats[1])
}

func TestZonalStats_SkipsNaNAndHoles(t *testing.T) {
	g := &Grid{
		Values: [][]float64{
			{1, 2, 3},
			{4, 5, 6},
			{7, math.NaN(), 9},
		},
		Transform: FromBBox(domain.BBox{Left: 0, Right: 3, Bottom: 0, Top: 3}, 3, 3),
	}
	outer := rect(0, 0, 3, 3)[0]
	hole := orb.Ring{{1, 1}, {1, 2}, {2, 2}, {2, 1}, {1, 1}}

	stats := ZonalStats(g, []Zone{{ID: "donut", Geometry: orb.Polygon{outer, hole}}})
	require.Len(t, stats, 1)
	assert.Equal(t, 7, stats[0].Count)
	assert.InDelta(t, (1.0+2+3+4+6+7+9)/7, stats[0].Mean, 1e-12)
	assert.InDelta(t, 9.0, stats[0].Max, 1e-12)
}

func TestZonalStats_NoCoverage(t *testing.T) {
	stats := ZonalStats(uniform(1), []Zone{
		{ID: "outside", Geometry: rect(10, 10, 11, 11)},
		{ID: "empty"},
	})
	for _, s := range stats {
		assert.Zero(t, s.Count, s.ID)
		assert.True(t, math.IsNaN(s.Mean), s.ID)
		assert.True(t, math.IsNaN(s.Max), s.ID)
	}
}

func TestZonalStats_MultiPolygon(t *testing.T) {
	g, err := Resample(uniform(2), 10)
	require.NoError(t, err)
	mp := orb.MultiPolygon{rect(0, 0, 1, 1), rect(1, 1, 2, 2)}
	stats := ZonalStats(g, []Zone{{ID: "pair", Geometry: mp}})
	assert.Equal(t, 200, stats[0].Count)
}

func TestZonalStats_Deterministic(t *testing.T) {
	g, err := Resample(&Grid{Values: [][]float64{{1, 2}, {3, 4}}, Transform: FromBBox(unitBox, 2, 2)}, 5)
	require.NoError(t, err)
	zones := []Zone{{ID: "a", Geometry: rect(0.3, 0.3, 1.7, 1.7)}}
	assert.Equal(t, ZonalStats(g, zones), ZonalStats(g, zones))
}

func TestMinMax(t *testing.T) {
	lo, hi, ok := MinMax([]float64{math.NaN(), -1.5, 3.2})
	require.True(t, ok)
	assert.InDelta(t, -1.5, lo, 1e-12)
	assert.InDelta(t, 3.2, hi, 1e-12)

	_, _, ok = MinMax([]float64{math.NaN()})
	assert.False(t, ok)
}

func TestRound(t *testing.T) {
	assert.InDelta(t, 4.1, Round(4.14, 1), 1e-12)
	assert.InDelta(t, 4.2, Round(4.15, 1), 1e-9)
	assert.InDelta(t, 0.0, Round(0.04, 1), 1e-12)
}
