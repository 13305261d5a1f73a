// Package appconf holds application-level configuration: the runtime
// environment and the metrics-run settings loaded from a YAML file.
package appconf

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// EnvFlagToEnvironment maps the --env CLI flag to an Environment value.
// Unrecognized values fall back to Development.
func EnvFlagToEnvironment(flag string) Environment {
	switch flag {
	case "production":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Test:
		return "test"
	default:
		return "development"
	}
}

// WindowConfig is one frequency window in a run configuration. Start and End
// are GTFS clock text in service-day offset space, so windows that extend
// past midnight use hours >= 24 (e.g. "23:00:00" to "25:00:00").
type WindowConfig struct {
	Label string `yaml:"label" validate:"required"`
	Start string `yaml:"start" validate:"required"`
	End   string `yaml:"end" validate:"required"`
}

// Config holds everything a metrics run needs. The zero value is not usable;
// construct via Load or apply Defaults.
type Config struct {
	Env     Environment `yaml:"-"`
	Verbose bool        `yaml:"-"`

	// FeedSource is a URL or local path to a GTFS zip.
	FeedSource string `yaml:"feed" validate:"required"`

	// OutputDBPath is the sqlite database metric facts are written to.
	OutputDBPath string `yaml:"output_db"`

	BufferRadiusMeters float64        `yaml:"buffer_radius_meters" validate:"gte=0"`
	DayTypeBuckets     []string       `yaml:"day_type_buckets" validate:"omitempty,dive,required"`
	FrequencyWindows   []WindowConfig `yaml:"frequency_windows" validate:"omitempty,dive"`

	// PopulationSource is an optional CSV of lat,lon[,weight] points used for
	// weighted coverage.
	PopulationSource string `yaml:"population_source"`

	// FactsExportPath and GeoJSONExportPath enable file exports when set.
	// Facts are written as gzipped CSV, regions as a GeoJSON feature
	// collection. PolylinesExportPath writes region boundaries and route
	// shapes as encoded polylines for lightweight map overlays.
	FactsExportPath     string `yaml:"export_facts"`
	GeoJSONExportPath   string `yaml:"export_geojson"`
	PolylinesExportPath string `yaml:"export_polylines"`

	// LenientParse falls back to the go-gtfs parser when the strict loader
	// rejects the archive, keeping whatever survives its looser handling of
	// duplicates and malformed rows.
	LenientParse bool `yaml:"lenient_parse"`

	// StartDate/EndDate bound service-day resolution, formatted YYYYMMDD.
	// When empty, the feed's calendar validity range is used.
	StartDate string `yaml:"start_date" validate:"omitempty,len=8,numeric"`
	EndDate   string `yaml:"end_date" validate:"omitempty,len=8,numeric"`

	StaticAuthHeaderKey   string `yaml:"static_auth_header_key"`
	StaticAuthHeaderValue string `yaml:"static_auth_header_value"`
}

// DefaultBufferRadiusMeters is the walking-access radius used when the
// configuration does not set one.
const DefaultBufferRadiusMeters = 400

// ApplyDefaults fills in the documented defaults for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BufferRadiusMeters == 0 {
		c.BufferRadiusMeters = DefaultBufferRadiusMeters
	}
	if len(c.DayTypeBuckets) == 0 {
		c.DayTypeBuckets = []string{"weekday", "saturday", "sunday"}
	}
	if len(c.FrequencyWindows) == 0 {
		c.FrequencyWindows = []WindowConfig{
			{Label: "peak_am", Start: "06:00:00", End: "09:00:00"},
			{Label: "midday", Start: "09:00:00", End: "15:00:00"},
			{Label: "peak_pm", Start: "15:00:00", End: "19:00:00"},
			{Label: "evening", Start: "19:00:00", End: "24:00:00"},
		}
	}
	if c.OutputDBPath == "" {
		c.OutputDBPath = "gtfsqual.db"
	}
}

// Load reads and validates a run configuration from a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.ApplyDefaults()

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
