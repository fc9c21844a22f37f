// Package polygons loads the watershed layer of a region from an ESRI
// shapefile or a GeoJSON feature collection.
package polygons

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/ffgs-pipeline/internal/raster"
)

// IDField is the attribute identifying each watershed.
const IDField = "cat_id"

// ErrNoLayer means neither a shapefile nor a GeoJSON layer exists for a region.
var ErrNoLayer = errors.New("no polygon layer")

// Loader reads region layers from "<dir>/ffgs_<region>.{shp,geojson}".
type Loader struct {
	dir func(region string) string
}

// NewLoader resolves each region's layer directory with dir.
func NewLoader(dir func(region string) string) *Loader {
	return &Loader{dir: dir}
}

// Load returns the zones of a region. A shapefile wins over GeoJSON.
func (l *Loader) Load(region string) ([]raster.Zone, error) {
	base := filepath.Join(l.dir(region), "ffgs_"+region)
	if _, err := os.Stat(base + ".shp"); err == nil {
		return LoadShapefile(base + ".shp")
	}
	if _, err := os.Stat(base + ".geojson"); err == nil {
		return LoadGeoJSON(base + ".geojson")
	}
	return nil, fmt.Errorf("%s: %w", base, ErrNoLayer)
}

// LoadShapefile reads polygon shapes and their cat_id attribute.
func LoadShapefile(path string) ([]raster.Zone, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer r.Close()

	idField := -1
	for i, f := range r.Fields() {
		if strings.EqualFold(f.String(), IDField) {
			idField = i
			break
		}
	}
	if idField < 0 {
		return nil, fmt.Errorf("%s: no %s attribute", path, IDField)
	}

	var zones []raster.Zone
	for r.Next() {
		n, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		zones = append(zones, raster.Zone{
			ID:       strings.TrimSpace(r.ReadAttribute(n, idField)),
			Geometry: shapePolygon(poly),
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile %s: %w", path, err)
	}
	return zones, nil
}

// shapePolygon groups shapefile rings into polygons. Clockwise rings are
// outer boundaries, counter-clockwise rings are holes of the preceding outer.
func shapePolygon(p *shp.Polygon) orb.Geometry {
	var mp orb.MultiPolygon
	for k := range p.Parts {
		lo := int(p.Parts[k])
		hi := len(p.Points)
		if k+1 < len(p.Parts) {
			hi = int(p.Parts[k+1])
		}
		ring := make(orb.Ring, 0, hi-lo)
		for _, pt := range p.Points[lo:hi] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		if len(mp) == 0 || ring.Orientation() == orb.CW {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		last := len(mp) - 1
		mp[last] = append(mp[last], ring)
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}

// LoadGeoJSON reads Polygon and MultiPolygon features and their cat_id property.
func LoadGeoJSON(path string) ([]raster.Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	zones := make([]raster.Zone, 0, len(fc.Features))
	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		id, ok := propertyID(f.Properties[IDField])
		if !ok {
			return nil, fmt.Errorf("%s: feature %d has no %s", path, i, IDField)
		}
		zones = append(zones, raster.Zone{ID: id, Geometry: f.Geometry})
	}
	return zones, nil
}

func propertyID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	default:
		return "", false
	}
}
