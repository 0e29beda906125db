// Package config loads the layer, template, form and slider settings from
// YAML. Every field has a built-in default, so a missing file is valid.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-critters/internal/feature"
	"github.com/joeblew999/plat-critters/internal/filter"
)

// Config is the editor configuration.
type Config struct {
	Layer     LayerConfig        `yaml:"layer" json:"layer"`
	Templates []feature.Template `yaml:"templates" json:"templates"`
	Form      []FieldConfig      `yaml:"form" json:"form"`
	Slider    SliderConfig       `yaml:"slider" json:"slider"`
	View      ViewConfig         `yaml:"view" json:"view"`
}

// LayerConfig describes the managed layer.
type LayerConfig struct {
	ID            string `yaml:"id" json:"id" doc:"Layer ID" example:"reportsLayer"`
	Title         string `yaml:"title" json:"title" doc:"Display title"`
	CategoryField string `yaml:"category_field" json:"categoryField" doc:"Category attribute"`
	TimeField     string `yaml:"time_field" json:"timeField" doc:"Timestamp attribute (epoch ms)"`
}

// FieldConfig is one field of the attribute editor form.
type FieldConfig struct {
	Name  string `yaml:"name" json:"name" doc:"Attribute name"`
	Label string `yaml:"label" json:"label" doc:"Form label"`
	Input string `yaml:"input" json:"input,omitempty" doc:"Input kind: text, textarea, datetime, category"`
}

// SliderConfig configures the time slider.
type SliderConfig struct {
	Start    time.Time     `yaml:"start" json:"start"`
	End      time.Time     `yaml:"end" json:"end"`
	Stop     time.Duration `yaml:"stop" json:"stop"`
	Window   time.Duration `yaml:"window" json:"window"`
	PlayRate time.Duration `yaml:"play_rate" json:"playRate"`
}

// ViewConfig holds map view defaults.
type ViewConfig struct {
	Center    [2]float64 `yaml:"center" json:"center"`
	Zoom      int        `yaml:"zoom" json:"zoom"`
	Tolerance float64    `yaml:"tolerance" json:"tolerance"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Layer: LayerConfig{
			ID:            "reportsLayer",
			Title:         "Critter reports",
			CategoryField: feature.FieldCategory,
			TimeField:     feature.FieldTime,
		},
		Templates: []feature.Template{
			{Name: "Fox", Attributes: feature.Attributes{feature.FieldCategory: "fox"}},
			{Name: "Deer", Attributes: feature.Attributes{feature.FieldCategory: "deer"}},
			{Name: "Coyote", Attributes: feature.Attributes{feature.FieldCategory: "coyote"}},
			{Name: "Turkey", Attributes: feature.Attributes{feature.FieldCategory: "turkey"}},
		},
		Form: []FieldConfig{
			{Name: feature.FieldCategory, Label: "Choose an animal", Input: "category"},
			{Name: feature.FieldTime, Label: "Date and time seen", Input: "datetime"},
			{Name: feature.FieldComments, Label: "Additional comments", Input: "textarea"},
		},
		Slider: SliderConfig{
			Start:    time.Date(2019, 11, 25, 0, 0, 0, 0, time.UTC),
			End:      time.Date(2019, 12, 12, 0, 0, 0, 0, time.UTC),
			Stop:     time.Hour,
			Window:   7 * 24 * time.Hour,
			PlayRate: 50 * time.Millisecond,
		},
		View: ViewConfig{
			Center:    [2]float64{-71.627158, 42.293983},
			Zoom:      15,
			Tolerance: 0.0005,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the editor relies on.
func Validate(cfg Config) error {
	var errs []error
	if cfg.Layer.ID == "" {
		errs = append(errs, errors.New("layer.id is required"))
	}
	if cfg.Layer.CategoryField == "" || cfg.Layer.TimeField == "" {
		errs = append(errs, errors.New("layer.category_field and layer.time_field are required"))
	}
	seen := map[string]bool{}
	for i, t := range cfg.Templates {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("templates[%d]: name is required", i))
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("templates[%d]: duplicate name %q", i, t.Name))
		}
		seen[t.Name] = true
	}
	if cfg.Slider.End.Before(cfg.Slider.Start) {
		errs = append(errs, errors.New("slider.end is before slider.start"))
	}
	if cfg.View.Tolerance <= 0 {
		errs = append(errs, errors.New("view.tolerance must be positive"))
	}
	return errors.Join(errs...)
}

// Template finds a template by name.
func (c Config) Template(name string) (feature.Template, bool) {
	for _, t := range c.Templates {
		if t.Name == name {
			return t, true
		}
	}
	return feature.Template{}, false
}

// Categories lists the distinct category values offered by templates.
func (c Config) Categories() []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range c.Templates {
		v := t.Attributes.String(c.Layer.CategoryField)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// SliderSettings converts to the filter package's slider config.
func (c Config) SliderSettings() filter.SliderConfig {
	return filter.SliderConfig{
		Full:     filter.Extent{Start: c.Slider.Start, End: c.Slider.End},
		Stop:     c.Slider.Stop,
		Window:   c.Slider.Window,
		PlayRate: c.Slider.PlayRate,
	}
}
