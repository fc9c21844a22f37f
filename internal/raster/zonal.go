package raster

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Zone is one polygon of the aggregation layer.
type Zone struct {
	ID       string
	Geometry orb.Geometry // orb.Polygon or orb.MultiPolygon
}

// Stats is the aggregate of the valid pixels of one zone. Mean and Max are
// NaN when Count is zero.
type Stats struct {
	ID    string
	Count int
	Mean  float64
	Max   float64
}

// ZonalStats computes count, mean and max per zone over the non-NaN pixels
// whose centres fall inside the zone. Holes are excluded.
func ZonalStats(g *Grid, zones []Zone) []Stats {
	out := make([]Stats, len(zones))
	for k, z := range zones {
		out[k] = zoneStats(g, z)
	}
	return out
}

func zoneStats(g *Grid, z Zone) Stats {
	st := Stats{ID: z.ID, Mean: math.NaN(), Max: math.NaN()}
	if z.Geometry == nil {
		return st
	}
	r0, r1, c0, c1, ok := window(g, z.Geometry.Bound())
	if !ok {
		return st
	}

	var sum float64
	hi := math.Inf(-1)
	for i := r0; i <= r1; i++ {
		for j := c0; j <= c1; j++ {
			v := g.Values[i][j]
			if math.IsNaN(v) {
				continue
			}
			x, y := g.Transform.PixelCenter(i, j)
			if !contains(z.Geometry, orb.Point{x, y}) {
				continue
			}
			st.Count++
			sum += v
			hi = math.Max(hi, v)
		}
	}
	if st.Count > 0 {
		st.Mean = sum / float64(st.Count)
		st.Max = hi
	}
	return st
}

// window clips the pixel index range to a bounding box.
func window(g *Grid, b orb.Bound) (r0, r1, c0, c1 int, ok bool) {
	t := g.Transform
	h, w := g.Height(), g.Width()
	if h == 0 || w == 0 || t.PixelWidth == 0 || t.PixelHeight == 0 {
		return 0, 0, 0, 0, false
	}
	c0 = clamp(int(math.Floor((b.Min[0]-t.OriginX)/t.PixelWidth)), 0, w-1)
	c1 = clamp(int(math.Floor((b.Max[0]-t.OriginX)/t.PixelWidth)), 0, w-1)
	r0 = clamp(int(math.Floor((b.Max[1]-t.OriginY)/t.PixelHeight)), 0, h-1)
	r1 = clamp(int(math.Floor((b.Min[1]-t.OriginY)/t.PixelHeight)), 0, h-1)
	if c0 > c1 || r0 > r1 {
		return 0, 0, 0, 0, false
	}
	gb := g.Bounds()
	if b.Max[0] < gb.Left || b.Min[0] > gb.Right || b.Max[1] < gb.Bottom || b.Min[1] > gb.Top {
		return 0, 0, 0, 0, false
	}
	return r0, r1, c0, c1, true
}

func contains(geom orb.Geometry, p orb.Point) bool {
	switch g := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	default:
		return false
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
