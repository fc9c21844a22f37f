// Package netcdf reads and writes the NetCDF artifacts of a cycle: accumulated
// raster layers, model-native window files and the georeferenced time steps
// published to the map server.
package netcdf

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

// Attr is one ordered attribute.
type Attr struct {
	Key   string
	Value any
}

// attrMap builds an attribute map preserving the given order.
func attrMap(attrs ...Attr) (api.AttributeMap, error) {
	keys := make([]string, 0, len(attrs))
	vals := make(map[string]any, len(attrs))
	for _, a := range attrs {
		if _, dup := vals[a.Key]; !dup {
			keys = append(keys, a.Key)
		}
		vals[a.Key] = a.Value
	}
	om, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return nil, fmt.Errorf("build attributes: %w", err)
	}
	return om, nil
}

// attrList flattens an attribute map, skipping the named keys.
func attrList(am api.AttributeMap, skip ...string) []Attr {
	if am == nil {
		return nil
	}
	var out []Attr
keys:
	for _, k := range am.Keys() {
		for _, s := range skip {
			if k == s {
				continue keys
			}
		}
		v, ok := am.Get(k)
		if !ok {
			continue
		}
		out = append(out, Attr{Key: k, Value: v})
	}
	return out
}

func stringAttr(am api.AttributeMap, key string) (string, bool) {
	if am == nil {
		return "", false
	}
	v, ok := am.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float64s flattens numeric variable values of up to three dimensions.
func Float64s(values any) ([]float64, error) {
	switch v := values.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case [][]float32:
		var out []float64
		for _, row := range v {
			for _, x := range row {
				out = append(out, float64(x))
			}
		}
		return out, nil
	case [][]float64:
		var out []float64
		for _, row := range v {
			out = append(out, row...)
		}
		return out, nil
	case [][][]float32:
		var out []float64
		for _, plane := range v {
			for _, row := range plane {
				for _, x := range row {
					out = append(out, float64(x))
				}
			}
		}
		return out, nil
	case [][][]float64:
		var out []float64
		for _, plane := range v {
			for _, row := range plane {
				out = append(out, row...)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported variable type %T", values)
	}
}

func toFloat32(g [][]float64) [][]float32 {
	out := make([][]float32, len(g))
	for i, row := range g {
		r := make([]float32, len(row))
		for j, v := range row {
			r[j] = float32(v)
		}
		out[i] = r
	}
	return out
}

func toFloat64(g [][]float32) [][]float64 {
	out := make([][]float64, len(g))
	for i, row := range g {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = float64(v)
		}
		out[i] = r
	}
	return out
}
