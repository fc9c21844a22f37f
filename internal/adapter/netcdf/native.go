package netcdf

import (
	"errors"
	"fmt"
	"time"
)

// Native is one accumulation window in the model's own layout: the dimension
// and coordinate names produced by the GRIB decoder, a single-element time
// axis and the summed precipitation as "tp".
type Native struct {
	Latitudes  []float64
	Longitudes []float64
	Values     [][]float64 // [latitude][longitude]
	Cycle      time.Time
	EndLead    int
	Attributes []Attr // global attributes from the decoder
}

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// WriteNative writes n to path.
func WriteNative(path string, n Native) error {
	if len(n.Values) != len(n.Latitudes) {
		return fmt.Errorf("write %s: %d rows for %d latitudes", path, len(n.Values), len(n.Latitudes))
	}
	if len(n.Values) == 0 || len(n.Values[0]) != len(n.Longitudes) {
		return errors.New("write " + path + ": values do not match longitudes")
	}
	ref := n.Cycle.Sub(epoch).Hours()
	valid := ref + float64(n.EndLead)

	globals := append([]Attr{{"Conventions", "CF-1.7"}}, n.Attributes...)
	return writeFile(path, globals, []variable{
		coord("latitude", n.Latitudes, "latitude", "degrees_north", "Y"),
		coord("longitude", n.Longitudes, "longitude", "degrees_east", "X"),
		{
			name:  "time",
			dims:  []string{"time"},
			value: []float64{ref},
			attrs: []Attr{{"long_name", "initial time of forecast"}, {"units", "hours since 1970-01-01 00:00:00"}},
		},
		{
			name:  "step",
			dims:  []string{"time"},
			value: []float64{float64(n.EndLead)},
			attrs: []Attr{{"long_name", "time since forecast_reference_time"}, {"units", "hours"}},
		},
		{
			name:  "valid_time",
			dims:  []string{"time"},
			value: []float64{valid},
			attrs: []Attr{{"long_name", "time"}, {"units", "hours since 1970-01-01 00:00:00"}},
		},
		{
			name:  "tp",
			dims:  []string{"latitude", "longitude"},
			value: toFloat32(n.Values),
			attrs: []Attr{
				{"long_name", "Total Precipitation"},
				{"units", "kg m**-2"},
				{"GRIB_shortName", "tp"},
			},
		},
	})
}
