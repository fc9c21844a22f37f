// Package raster holds single-band precipitation grids and the pure operations
// applied to them: windowed accumulation, nearest-neighbour resampling and
// zonal statistics.
package raster

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
)

// Transform is a north-up affine transform. Row 0 is the northern edge.
type Transform struct {
	OriginX     float64 // western edge
	OriginY     float64 // northern edge
	PixelWidth  float64
	PixelHeight float64 // negative for north-up grids
}

// FromBBox derives the transform of a width x height grid covering b.
func FromBBox(b domain.BBox, width, height int) Transform {
	return Transform{
		OriginX:     b.Left,
		OriginY:     b.Top,
		PixelWidth:  b.Width() / float64(width),
		PixelHeight: -b.Height() / float64(height),
	}
}

// GeoTransform returns the GDAL coefficient order.
func (t Transform) GeoTransform() [6]float64 {
	return [6]float64{t.OriginX, t.PixelWidth, 0, t.OriginY, 0, t.PixelHeight}
}

// String renders the GDAL "GeoTransform" attribute value.
func (t Transform) String() string {
	gt := t.GeoTransform()
	parts := make([]string, len(gt))
	for i, v := range gt {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// ParseTransform parses the output of Transform.String.
func ParseTransform(s string) (Transform, error) {
	fields := strings.Fields(s)
	if len(fields) != 6 {
		return Transform{}, fmt.Errorf("geotransform %q: want 6 coefficients, got %d", s, len(fields))
	}
	var gt [6]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Transform{}, fmt.Errorf("geotransform %q: %w", s, err)
		}
		gt[i] = v
	}
	if gt[2] != 0 || gt[4] != 0 {
		return Transform{}, errors.New("rotated geotransforms are not supported")
	}
	return Transform{OriginX: gt[0], PixelWidth: gt[1], OriginY: gt[3], PixelHeight: gt[5]}, nil
}

// PixelCenter returns the lon/lat of the centre of pixel (row, col).
func (t Transform) PixelCenter(row, col int) (x, y float64) {
	return t.OriginX + (float64(col)+0.5)*t.PixelWidth, t.OriginY + (float64(row)+0.5)*t.PixelHeight
}

// Grid is a single-band raster. NaN marks nodata.
type Grid struct {
	Values    [][]float64 // [row][col], row 0 north
	Transform Transform
}

// NewGrid allocates a height x width grid filled with fill.
func NewGrid(height, width int, t Transform, fill float64) *Grid {
	values := make([][]float64, height)
	for i := range values {
		row := make([]float64, width)
		for j := range row {
			row[j] = fill
		}
		values[i] = row
	}
	return &Grid{Values: values, Transform: t}
}

// Height is the number of rows.
func (g *Grid) Height() int { return len(g.Values) }

// Width is the number of columns.
func (g *Grid) Width() int {
	if len(g.Values) == 0 {
		return 0
	}
	return len(g.Values[0])
}

// Bounds returns the box covered by the grid.
func (g *Grid) Bounds() domain.BBox {
	t := g.Transform
	return domain.BBox{
		Left:   t.OriginX,
		Right:  t.OriginX + float64(g.Width())*t.PixelWidth,
		Top:    t.OriginY,
		Bottom: t.OriginY + float64(g.Height())*t.PixelHeight,
	}
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	out := &Grid{Values: make([][]float64, len(g.Values)), Transform: g.Transform}
	for i, row := range g.Values {
		out.Values[i] = append([]float64(nil), row...)
	}
	return out
}

// SameShape reports whether g and o have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	if g.Height() != o.Height() {
		return false
	}
	for i := range g.Values {
		if len(g.Values[i]) != len(o.Values[i]) {
			return false
		}
	}
	return true
}

// MinMax returns the finite extrema of the grid and false when every cell is NaN.
func (g *Grid) MinMax() (lo, hi float64, ok bool) {
	return MinMax(flatten(g.Values))
}

// MinMax returns the finite extrema of values and false when none are finite.
func MinMax(values []float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

func flatten(values [][]float64) []float64 {
	n := 0
	for _, row := range values {
		n += len(row)
	}
	out := make([]float64, 0, n)
	for _, row := range values {
		out = append(out, row...)
	}
	return out
}
