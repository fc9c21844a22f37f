// Package workspace owns the on-disk layout of published and working
// directories and the per-model "last completed cycle" marker.
package workspace

import "path/filepath"

// Layout resolves every path of the pipeline below two roots: the published
// tree served to the map server and the private workspace.
type Layout struct {
	PublishedRoot string
	WorkspaceRoot string
}

// ModelDir is published/<region>/<model>.
func (l Layout) ModelDir(region, model string) string {
	return filepath.Join(l.PublishedRoot, region, model)
}

// CycleDir is published/<region>/<model>/<cycle>.
func (l Layout) CycleDir(region, model, cycle string) string {
	return filepath.Join(l.ModelDir(region, model), cycle)
}

// GribDir holds raw step downloads.
func (l Layout) GribDir(region, model, cycle string) string {
	return filepath.Join(l.CycleDir(region, model, cycle), "gribs")
}

// NetCDFDir holds model-native window files.
func (l Layout) NetCDFDir(region, model, cycle string) string {
	return filepath.Join(l.CycleDir(region, model, cycle), "netcdfs")
}

// ProcessedDir holds georeferenced time steps joined by the descriptor.
func (l Layout) ProcessedDir(region, model, cycle string) string {
	return filepath.Join(l.CycleDir(region, model, cycle), "processed")
}

// DescriptorPath is the NcML aggregation file of a region/model.
func (l Layout) DescriptorPath(region, model string) string {
	return filepath.Join(l.ModelDir(region, model), DescriptorName)
}

// RegionDir is workspace/<region>.
func (l Layout) RegionDir(region string) string {
	return filepath.Join(l.WorkspaceRoot, region)
}

// RasterDir holds accumulated windows.
func (l Layout) RasterDir(region, model string) string {
	return filepath.Join(l.RegionDir(region), model+"_rasters")
}

// ResampledDir holds resampled windows.
func (l Layout) ResampledDir(region, model string) string {
	return filepath.Join(l.RegionDir(region), model+"_rasters_resampled")
}

// ShapefileDir holds the region's polygon layer.
func (l Layout) ShapefileDir(region string) string {
	return filepath.Join(l.RegionDir(region), "shapefiles")
}

// ResultsPath is the zonal statistics table.
func (l Layout) ResultsPath(region, model string) string {
	return filepath.Join(l.RegionDir(region), model+"results.csv")
}

// ColorScalesPath is the per-polygon colour-scale table.
func (l Layout) ColorScalesPath(region, model string) string {
	return filepath.Join(l.RegionDir(region), model+"colorscales.csv")
}

// BoundsPath is the display bounds document.
func (l Layout) BoundsPath(region, model string) string {
	return filepath.Join(l.RegionDir(region), model+"bounds.json")
}

// MarkerPath is workspace/<model>_timestamp.txt.
func (l Layout) MarkerPath(model string) string {
	return filepath.Join(l.WorkspaceRoot, model+"_timestamp.txt")
}

// SentinelPath marks a completed stage inside a cycle directory.
func (l Layout) SentinelPath(region, model, cycle, stage string) string {
	return filepath.Join(l.CycleDir(region, model, cycle), "_SUCCESS."+stage)
}

// DescriptorName is the file name of the aggregation descriptor.
const DescriptorName = "wms.ncml"
