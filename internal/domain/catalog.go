package domain

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one emissions-pathway window to extract from each model's file.
// Label tags output records and checkpoint keys and must be unique within a
// catalog; File is the source filename pattern with a {model} placeholder, so
// several windows can share one file. Start/End bound the extracted series,
// both inclusive.
type Scenario struct {
	Name  string    `yaml:"name"`
	Label string    `yaml:"label"`
	File  string    `yaml:"file"`
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// SourceFile renders the scenario's filename pattern for a model,
// e.g. "{model}-pr-hist.nc" → "ACCESS-CM2-pr-hist.nc".
func (s Scenario) SourceFile(model string) string {
	return strings.ReplaceAll(s.File, "{model}", model)
}

// Catalog enumerates the models and scenario windows a batch covers. It is
// injected wherever needed instead of living as package-level lists, so tests
// and partial runs can use reduced sets. Unit iteration order is models ×
// scenarios in catalog order, which fixes the deterministic batch order that
// checkpoint resume depends on.
type Catalog struct {
	Models    []string   `yaml:"models"`
	Scenarios []Scenario `yaml:"scenarios"`
}

// DefaultCatalog returns the catalog the pipeline ships with: the 19
// downscaled CMIP6 models and the historical plus two SSP windows.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Models: []string{
			"ACCESS-CM2",
			"ACCESS-ESM1-5",
			"CMCC-ESM2",
			"EC-EARTH3",
			"GFDL-CM4",
			"GFDL-ESM4",
			"HadGEM3-GC31-LL",
			"INM-CM4_8",
			"INM-CM5",
			"IPSL-CM6A-LR",
			"KACE",
			"KIOST",
			"MIROC6",
			"MPI-ESM1-2",
			"MRI-ESM2",
			"NESM3",
			"NorESM2-MM",
			"TaiESM1",
			"UKESM1-0-LL",
		},
		Scenarios: []Scenario{
			{
				Name:  "Histórico",
				Label: "Histórico",
				File:  "{model}-pr-hist.nc",
				Start: civilDate(1980, time.January, 1),
				End:   civilDate(2013, time.December, 31),
			},
			{
				Name:  "SSP245",
				Label: "SSP245_2015_2100",
				File:  "{model}-pr-ssp245.nc",
				Start: civilDate(2015, time.January, 1),
				End:   civilDate(2100, time.December, 31),
			},
			{
				Name:  "SSP585",
				Label: "SSP585_2015_2100",
				File:  "{model}-pr-ssp585.nc",
				Start: civilDate(2015, time.January, 1),
				End:   civilDate(2100, time.December, 31),
			},
		},
	}
}

// LoadCatalog reads a YAML catalog file and validates it. The file replaces
// the defaults entirely; scenarios without a label inherit their name.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i := range cat.Scenarios {
		if cat.Scenarios[i].Label == "" {
			cat.Scenarios[i].Label = cat.Scenarios[i].Name
		}
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return &cat, nil
}

// Validate checks the structural invariants unit iteration relies on.
func (c *Catalog) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("no models listed")
	}
	if len(c.Scenarios) == 0 {
		return fmt.Errorf("no scenarios listed")
	}

	labels := make(map[string]bool, len(c.Scenarios))
	for _, s := range c.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("scenario with empty name")
		}
		if labels[s.Label] {
			return fmt.Errorf("duplicate scenario label %q", s.Label)
		}
		labels[s.Label] = true
		if !strings.Contains(s.File, "{model}") {
			return fmt.Errorf("scenario %q: file pattern %q has no {model} placeholder", s.Label, s.File)
		}
		if !s.Start.IsZero() && !s.End.IsZero() && s.End.Before(s.Start) {
			return fmt.Errorf("scenario %q: end %s precedes start %s",
				s.Label, s.End.Format(time.DateOnly), s.Start.Format(time.DateOnly))
		}
	}
	return nil
}

func civilDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
