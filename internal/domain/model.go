package domain

import (
	"fmt"
	"time"
)

// Accumulation describes how a model's precipitation fields relate across steps.
type Accumulation string

const (
	// AccumulationInterval means each step holds the amount for its own interval
	// and windows are formed by summing steps directly.
	AccumulationInterval Accumulation = "interval"
	// AccumulationCumulative means each step holds the total since the cycle
	// reference time; consecutive steps are differenced before windowing.
	AccumulationCumulative Accumulation = "cumulative"
)

// BBox is a lat/lon bounding box in degrees.
type BBox struct {
	Left   float64 `yaml:"left" validate:"gte=-180,lte=360"`
	Right  float64 `yaml:"right" validate:"gte=-180,lte=360,gtfield=Left"`
	Bottom float64 `yaml:"bottom" validate:"gte=-90,lte=90"`
	Top    float64 `yaml:"top" validate:"gte=-90,lte=90,gtfield=Bottom"`
}

// Width returns the longitudinal extent in degrees.
func (b BBox) Width() float64 { return b.Right - b.Left }

// Height returns the latitudinal extent in degrees.
func (b BBox) Height() float64 { return b.Top - b.Bottom }

// Region is a geographic area with its own polygon layer and bounding box.
type Region struct {
	ID          string   `yaml:"id" validate:"required"`
	DisplayName string   `yaml:"display_name"`
	BBox        BBox     `yaml:"bbox"`
	Models      []string `yaml:"models"`
}

// Parameter identifies the GRIB2 product carrying precipitation.
type Parameter struct {
	Discipline int `yaml:"discipline"`
	Category   int `yaml:"category"`
	Number     int `yaml:"number"`
}

// PrecipitationParameter is total precipitation (APCP) in the GRIB2 tables.
var PrecipitationParameter = Parameter{Discipline: 0, Category: 1, Number: 8}

// RegularGrid rebuilds coordinate arrays as min + i*step when a model's native
// coordinates are not trusted for publication.
type RegularGrid struct {
	LatMin  float64 `yaml:"lat_min"`
	LatStep float64 `yaml:"lat_step" validate:"ne=0"`
	LonMin  float64 `yaml:"lon_min"`
	LonStep float64 `yaml:"lon_step" validate:"ne=0"`
}

// BoundsVariable maps a display name to the source variable it summarizes.
type BoundsVariable struct {
	Display string `yaml:"display" validate:"required"`
	Key     string `yaml:"key" validate:"required"`
}

// Model describes one forecast model: its schedule, steps, archive and
// per-stage parameters.
type Model struct {
	ID           string           `yaml:"id" validate:"required"`
	DisplayName  string           `yaml:"display_name"`
	Schedule     []int            `yaml:"schedule" validate:"required,min=1,dive,gte=0,lte=23"`
	Lag          time.Duration    `yaml:"lag" validate:"gte=0"`
	StepHours    int              `yaml:"step_hours" validate:"gt=0"`
	FirstLead    int              `yaml:"first_lead" validate:"gte=0"`
	LastLead     int              `yaml:"last_lead" validate:"gtefield=FirstLead"`
	StepDigits   int              `yaml:"step_digits" validate:"gte=0"`
	WindowSize   int              `yaml:"window_size" validate:"gt=0"`
	Multiplier   int              `yaml:"multiplier" validate:"gt=0"`
	Accumulation Accumulation     `yaml:"accumulation" validate:"oneof=interval cumulative"`
	URLTemplate  string           `yaml:"url_template" validate:"required"`
	Parameter    *Parameter       `yaml:"parameter"`
	Grid         *RegularGrid     `yaml:"grid"`
	Bounds       []BoundsVariable `yaml:"bounds" validate:"dive"`

	// CumulativeMean adds a cum_mean column to the colour-scale table.
	CumulativeMean bool `yaml:"cumulative_mean"`
}

// Leads returns every lead hour of a cycle in ascending order.
func (m Model) Leads() []int {
	if m.StepHours <= 0 {
		return nil
	}
	leads := make([]int, 0, (m.LastLead-m.FirstLead)/m.StepHours+1)
	for h := m.FirstLead; h <= m.LastLead; h += m.StepHours {
		leads = append(leads, h)
	}
	return leads
}

// WindowHours is the duration in hours covered by one full accumulation window.
func (m Model) WindowHours() int {
	return m.StepHours * m.WindowSize
}

// PrecipParameter returns the configured GRIB selector or APCP.
func (m Model) PrecipParameter() Parameter {
	if m.Parameter != nil {
		return *m.Parameter
	}
	return PrecipitationParameter
}

// Label is the human-readable model name, falling back to the id.
func (m Model) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.ID
}

// Pair identifies a (region, model) processing unit.
type Pair struct {
	Region string
	Model  string
}

func (p Pair) String() string { return fmt.Sprintf("%s/%s", p.Region, p.Model) }
