package netcdf

import (
	"fmt"
	"math"
	"time"

	gonetcdf "github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
)

// GeoreferenceOptions describe the time step being published.
type GeoreferenceOptions struct {
	Cycle   time.Time
	EndLead int
	Grid    *domain.RegularGrid // rebuild coordinates from the grid definition when set
}

// TimeUnits is the CF units string of a cycle's time axis.
func TimeUnits(cycle time.Time) string {
	return "hours since " + cycle.UTC().Format("2006-01-02 15:00:00")
}

// Georeference rewrites a native window file into the canonical (time, lat, lon)
// layout served by the map server.
func Georeference(src, dst string, opts GeoreferenceOptions) error {
	nc, err := gonetcdf.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer nc.Close()

	lat, err := coordValues(nc, "latitude")
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	lon, err := coordValues(nc, "longitude")
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	if g := opts.Grid; g != nil {
		// Rows are stored north first.
		lat = descending(g.LatMin, g.LatStep, len(lat))
		lon = ascending(g.LonMin, g.LonStep, len(lon))
	}

	begin := domain.FormatCycle(opts.Cycle)
	vars := []variable{
		{
			name:  "time",
			dims:  []string{"time"},
			value: []float64{float64(opts.EndLead)},
			attrs: []Attr{
				{"long_name", "time"},
				{"units", TimeUnits(opts.Cycle)},
				{"axis", "T"},
				{"begin_date", begin},
			},
		},
		coord("lat", lat, "latitude", "degrees_north", "Y"),
		coord("lon", lon, "longitude", "degrees_east", "X"),
	}

	for _, name := range nc.ListVariables() {
		switch name {
		case "latitude", "longitude", "time", "step", "valid_time":
			continue
		}
		v, err := nc.GetVariable(name)
		if err != nil {
			return fmt.Errorf("%s: read %s: %w", src, name, err)
		}
		if !isSpatial(v.Dimensions) {
			continue
		}
		plane, err := timePlane(v.Values)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", src, name, err)
		}
		attrs := attrList(v.Attributes, "_FillValue", "long_name", "units", "begin_date")
		attrs = append(attrs,
			Attr{"long_name", stringOr(v.Attributes, "long_name", name)},
			Attr{"units", stringOr(v.Attributes, "units", "mm")},
			Attr{"begin_date", begin},
		)
		vars = append(vars, variable{name: name, dims: []string{"time", "lat", "lon"}, value: plane, attrs: attrs})
	}

	return writeFile(dst, attrList(nc.Attributes()), vars)
}

func coordValues(nc api.Group, name string) ([]float64, error) {
	v, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return Float64s(v.Values)
}

func ascending(lo, step float64, n int) []float64 {
	step = math.Abs(step)
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

func descending(lo, step float64, n int) []float64 {
	step = math.Abs(step)
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(n-1-i)*step
	}
	return out
}

func isSpatial(dims []string) bool {
	return len(dims) == 2 && dims[0] == "latitude" && dims[1] == "longitude"
}

func timePlane(values any) ([][][]float32, error) {
	switch v := values.(type) {
	case [][]float32:
		return [][][]float32{v}, nil
	case [][]float64:
		return [][][]float32{toFloat32(v)}, nil
	default:
		return nil, fmt.Errorf("unsupported variable type %T", values)
	}
}

func stringOr(am api.AttributeMap, key, fallback string) string {
	if s, ok := stringAttr(am, key); ok && s != "" {
		return s
	}
	return fallback
}
