// Package grib decodes the precipitation field of a GRIB2 forecast step into a
// north-up raster with its coordinate arrays.
package grib

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/nilsmagnus/grib/griblib"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
	"github.com/couchcryptid/ffgs-pipeline/internal/raster"
)

// ErrNoField means the file holds no message matching the requested parameter.
var ErrNoField = errors.New("parameter not found")

// missing is the conventional GRIB missing-value sentinel.
const missing = 9.999e20

// Field is one decoded 2D field.
type Field struct {
	Grid       *raster.Grid
	Latitudes  []float64 // north to south, one per row
	Longitudes []float64 // west to east, one per column
	Attributes map[string]string
}

// Decoder reads GRIB2 files from disk.
type Decoder struct{}

// NewDecoder returns a GRIB2 decoder.
func NewDecoder() *Decoder { return &Decoder{} }

// Decode returns the first message in path matching p.
func (Decoder) Decode(path string, p domain.Parameter) (*Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	messages, err := griblib.ReadMessages(f)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	for _, m := range messages {
		if int(m.Section0.Discipline) != p.Discipline ||
			int(m.Section4.ProductDefinitionTemplate.ParameterCategory) != p.Category ||
			int(m.Section4.ProductDefinitionTemplate.ParameterNumber) != p.Number {
			continue
		}
		grid, err := regularGrid(m.Section3.Definition)
		if err != nil {
			return nil, err
		}
		field, err := grid.field(m.Data())
		if err != nil {
			return nil, err
		}
		field.Attributes = map[string]string{
			"GRIB_edition":           strconv.Itoa(int(m.Section0.Edition)),
			"GRIB_centre":            strconv.Itoa(int(m.Section1.OriginatingCenter)),
			"GRIB_discipline":        strconv.Itoa(p.Discipline),
			"GRIB_parameterCategory": strconv.Itoa(p.Category),
			"GRIB_parameterNumber":   strconv.Itoa(p.Number),
		}
		return field, nil
	}
	return nil, fmt.Errorf("%d/%d/%d: %w", p.Discipline, p.Category, p.Number, ErrNoField)
}

// latLonGrid is a regular lat/lon grid (template 3.0) in degrees.
type latLonGrid struct {
	Ni, Nj       int
	La1, Lo1     float64
	La2, Lo2     float64
	Di, Dj       float64
	ScanningMode uint8
}

func regularGrid(def any) (latLonGrid, error) {
	var g griblib.Grid0
	switch d := def.(type) {
	case griblib.Grid0:
		g = d
	case *griblib.Grid0:
		g = *d
	default:
		return latLonGrid{}, fmt.Errorf("unsupported grid definition %T", def)
	}
	const micro = 1e-6
	return latLonGrid{
		Ni:           int(g.Ni),
		Nj:           int(g.Nj),
		La1:          float64(g.La1) * micro,
		Lo1:          float64(g.Lo1) * micro,
		La2:          float64(g.La2) * micro,
		Lo2:          float64(g.Lo2) * micro,
		Di:           float64(g.Di) * micro,
		Dj:           float64(g.Dj) * micro,
		ScanningMode: uint8(g.ScanningMode),
	}, nil
}

// field reshapes scanning-order values into north-up rows.
func (g latLonGrid) field(data []float64) (*Field, error) {
	if g.Ni <= 0 || g.Nj <= 0 {
		return nil, fmt.Errorf("grid %dx%d", g.Ni, g.Nj)
	}
	if len(data) != g.Ni*g.Nj {
		return nil, fmt.Errorf("grid %dx%d holds %d values", g.Ni, g.Nj, len(data))
	}
	southFirst := g.ScanningMode&0x40 != 0

	lats := make([]float64, g.Nj)
	north, south := g.La1, g.La2
	if southFirst {
		north, south = g.La2, g.La1
	}
	for i := range lats {
		lats[i] = north - float64(i)*g.Dj
	}
	if g.Nj > 1 && g.Dj == 0 {
		step := (north - south) / float64(g.Nj-1)
		for i := range lats {
			lats[i] = north - float64(i)*step
		}
	}

	lons := make([]float64, g.Ni)
	for j := range lons {
		lons[j] = normalizeLon(g.Lo1 + float64(j)*g.Di)
	}

	values := make([][]float64, g.Nj)
	for r := range values {
		src := r
		if southFirst {
			src = g.Nj - 1 - r
		}
		row := make([]float64, g.Ni)
		for c := range row {
			v := data[src*g.Ni+c]
			if v >= missing || math.IsInf(v, 0) {
				v = math.NaN()
			}
			row[c] = v
		}
		values[r] = row
	}

	dx, dy := g.Di, g.Dj
	if dy == 0 && g.Nj > 1 {
		dy = lats[0] - lats[1]
	}
	tr := raster.Transform{
		OriginX:     lons[0] - dx/2,
		OriginY:     lats[0] + dy/2,
		PixelWidth:  dx,
		PixelHeight: -dy,
	}
	return &Field{
		Grid:       &raster.Grid{Values: values, Transform: tr},
		Latitudes:  lats,
		Longitudes: lons,
	}, nil
}

func normalizeLon(lon float64) float64 {
	if lon > 180 {
		return lon - 360
	}
	return lon
}
