package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
)

//go:embed registry.yaml
var defaultRegistry []byte

// Registry lists the regions and models the pipeline knows about.
type Registry struct {
	Regions []domain.Region `yaml:"regions" validate:"required,min=1,dive"`
	Models  []domain.Model  `yaml:"models" validate:"required,min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadRegistry reads a registry file, or the built-in registry when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	data := defaultRegistry
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read registry: %w", err)
		}
		data = b
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes and validates registry YAML.
func ParseRegistry(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if err := validate.Struct(r); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}
	if err := r.checkReferences(); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}
	return &r, nil
}

func (r *Registry) checkReferences() error {
	seen := make(map[string]bool, len(r.Models))
	for _, m := range r.Models {
		if seen[m.ID] {
			return fmt.Errorf("duplicate model %q", m.ID)
		}
		seen[m.ID] = true
	}
	regions := make(map[string]bool, len(r.Regions))
	for _, reg := range r.Regions {
		if regions[reg.ID] {
			return fmt.Errorf("duplicate region %q", reg.ID)
		}
		regions[reg.ID] = true
		for _, id := range reg.Models {
			if !seen[id] {
				return fmt.Errorf("region %q references unknown model %q", reg.ID, id)
			}
		}
	}
	return nil
}

// Model returns the model with the given id.
func (r *Registry) Model(id string) (domain.Model, bool) {
	for _, m := range r.Models {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Model{}, false
}

// Region returns the region with the given id.
func (r *Registry) Region(id string) (domain.Region, bool) {
	for _, reg := range r.Regions {
		if reg.ID == id {
			return reg, true
		}
	}
	return domain.Region{}, false
}

// RegionsFor returns, in registry order, the ids among regions that run model.
func (r *Registry) RegionsFor(model string, regions []string) []string {
	var out []string
	for _, reg := range r.Regions {
		if slices.Contains(regions, reg.ID) && slices.Contains(reg.Models, model) {
			out = append(out, reg.ID)
		}
	}
	return out
}

// ModelIDs returns every model id in registry order.
func (r *Registry) ModelIDs() []string {
	ids := make([]string, len(r.Models))
	for i, m := range r.Models {
		ids[i] = m.ID
	}
	return ids
}

// RegionIDs returns every region id in registry order.
func (r *Registry) RegionIDs() []string {
	ids := make([]string, len(r.Regions))
	for i, reg := range r.Regions {
		ids[i] = reg.ID
	}
	return ids
}

// Select checks that every requested id exists. Empty selections mean "all".
func (r *Registry) Select(regions, models []string) ([]string, []string, error) {
	if len(regions) == 0 {
		regions = r.RegionIDs()
	}
	if len(models) == 0 {
		models = r.ModelIDs()
	}
	var errs []error
	for _, id := range regions {
		if _, ok := r.Region(id); !ok {
			errs = append(errs, fmt.Errorf("unknown region %q", id))
		}
	}
	for _, id := range models {
		if _, ok := r.Model(id); !ok {
			errs = append(errs, fmt.Errorf("unknown model %q", id))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	return regions, models, nil
}
