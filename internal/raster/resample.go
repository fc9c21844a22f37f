package raster

import "fmt"

// Resample replicates every source cell into an m x m block. The output covers
// the same bounds, so pixel sizes shrink by m.
func Resample(g *Grid, m int) (*Grid, error) {
	if m <= 0 {
		return nil, fmt.Errorf("resample multiplier %d", m)
	}
	h, w := g.Height(), g.Width()
	out := &Grid{
		Values: make([][]float64, h*m),
		Transform: Transform{
			OriginX:     g.Transform.OriginX,
			OriginY:     g.Transform.OriginY,
			PixelWidth:  g.Transform.PixelWidth / float64(m),
			PixelHeight: g.Transform.PixelHeight / float64(m),
		},
	}
	for i := range out.Values {
		src := g.Values[i/m]
		row := make([]float64, w*m)
		for j := range row {
			row[j] = src[j/m]
		}
		out.Values[i] = row
	}
	return out, nil
}
