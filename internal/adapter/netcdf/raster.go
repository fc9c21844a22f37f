package netcdf

import (
	"errors"
	"fmt"

	gonetcdf "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"

	"github.com/couchcryptid/ffgs-pipeline/internal/raster"
)

const (
	rasterVar = "precip"

	// WGS84 is the geographic CRS of every raster in a cycle.
	WGS84 = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`
)

// variable is one entry of a file being written, in output order.
type variable struct {
	name  string
	dims  []string
	value any
	attrs []Attr
}

// writeFile creates path with the given global attributes and variables.
func writeFile(path string, globals []Attr, vars []variable) (err error) {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := cw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if len(globals) > 0 {
		gm, err := attrMap(globals...)
		if err != nil {
			return err
		}
		if err := cw.AddAttributes(gm); err != nil {
			return fmt.Errorf("%s: global attributes: %w", path, err)
		}
	}
	for _, v := range vars {
		am, err := attrMap(v.attrs...)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", path, v.name, err)
		}
		if err := cw.AddVar(v.name, api.Variable{Values: v.value, Dimensions: v.dims, Attributes: am}); err != nil {
			return fmt.Errorf("%s: write %s: %w", path, v.name, err)
		}
	}
	return nil
}

func coord(name string, values []float64, longName, units, axis string) variable {
	return variable{
		name:  name,
		dims:  []string{name},
		value: values,
		attrs: []Attr{{"long_name", longName}, {"units", units}, {"axis", axis}},
	}
}

// WriteRaster stores g as a single-band CF grid with GDAL georeferencing.
func WriteRaster(path string, g *raster.Grid) error {
	if g.Height() == 0 || g.Width() == 0 {
		return errors.New("write raster: empty grid")
	}
	lat, lon := pixelCenters(g)
	return writeFile(path,
		[]Attr{
			{"Conventions", "CF-1.6"},
			{"GeoTransform", g.Transform.String()},
			{"spatial_ref", WGS84},
		},
		[]variable{
			coord("lat", lat, "latitude", "degrees_north", "Y"),
			coord("lon", lon, "longitude", "degrees_east", "X"),
			{
				name:  rasterVar,
				dims:  []string{"lat", "lon"},
				value: toFloat32(g.Values),
				attrs: []Attr{{"long_name", "accumulated precipitation"}, {"units", "mm"}},
			},
		})
}

// ReadRaster loads a grid written by WriteRaster.
func ReadRaster(path string) (*raster.Grid, error) {
	nc, err := gonetcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer nc.Close()

	gt, ok := stringAttr(nc.Attributes(), "GeoTransform")
	if !ok {
		return nil, fmt.Errorf("%s: missing GeoTransform", path)
	}
	tr, err := raster.ParseTransform(gt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	v, err := nc.GetVariable(rasterVar)
	if err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", path, rasterVar, err)
	}
	values, ok := v.Values.([][]float32)
	if !ok {
		return nil, fmt.Errorf("%s: %s has type %T", path, rasterVar, v.Values)
	}
	return &raster.Grid{Values: toFloat64(values), Transform: tr}, nil
}

// ReadVariable returns every value of a numeric variable, flattened.
func ReadVariable(path, name string) ([]float64, error) {
	nc, err := gonetcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer nc.Close()

	v, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", path, name, err)
	}
	values, err := Float64s(v.Values)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", path, name, err)
	}
	return values, nil
}

func pixelCenters(g *raster.Grid) (lat, lon []float64) {
	lat = make([]float64, g.Height())
	for i := range lat {
		_, lat[i] = g.Transform.PixelCenter(i, 0)
	}
	lon = make([]float64, g.Width())
	for j := range lon {
		lon[j], _ = g.Transform.PixelCenter(0, j)
	}
	return lat, lon
}
