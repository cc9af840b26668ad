// Package config defines the configuration model for ingestion runs and loads
// it from files and environment with viper.
//
// Example (YAML, trimmed):
//
//	job: nightly
//	required_fields: [Suburb, WeeklyRent, DaysOnMarket, Bedrooms]
//	range_limits:
//	  WeeklyRent: [100, 10000]
//	header_aliases:
//	  "Weekly Rent ($NZD)": WeeklyRent
//	storage:
//	  kind: sqlite
//	  dsn: file:listings.db
package config

import (
	"time"

	"propetl/internal/report"
	"propetl/internal/storage"
	"propetl/internal/transformer/builtin"
	"propetl/pkg/records"
)

// Pipeline is the top-level configuration of a run.
type Pipeline struct {
	// Job labels metrics and log lines.
	Job string `mapstructure:"job" json:"job"`

	// Validation rules.
	RequiredFields     []string             `mapstructure:"required_fields" json:"required_fields"`
	RangeLimits        map[string][]float64 `mapstructure:"range_limits" json:"range_limits"`
	IntegerFields      []string             `mapstructure:"integer_fields" json:"integer_fields"`
	DuplicateKeyFields []string             `mapstructure:"duplicate_key_fields" json:"duplicate_key_fields"`

	// ReplaceTable clears the destination before storing.
	ReplaceTable bool `mapstructure:"replace_table" json:"replace_table"`

	// HeaderAliases maps literal source headers to logical field names.
	// Matching ignores case and surrounding whitespace.
	HeaderAliases map[string]string `mapstructure:"header_aliases" json:"header_aliases"`

	Parser  Parser  `mapstructure:"parser" json:"parser"`
	Enrich  Enrich  `mapstructure:"enrich" json:"enrich"`
	Storage Storage `mapstructure:"storage" json:"storage"`
	Report  Report  `mapstructure:"report" json:"report"`
	Source  Source  `mapstructure:"source" json:"source"`
	Runtime Runtime `mapstructure:"runtime" json:"runtime"`
	Logging Logging `mapstructure:"logging" json:"logging"`
	Metrics Metrics `mapstructure:"metrics" json:"metrics"`
}

// Parser holds loader options.
type Parser struct {
	// Delimiter is the CSV field separator; one character.
	Delimiter string `mapstructure:"delimiter" json:"delimiter"`
	// Sheet selects the XLSX sheet; empty means the first.
	Sheet string `mapstructure:"sheet" json:"sheet"`
}

// Enrich names the fields the feature derivation reads.
type Enrich struct {
	DateField      string   `mapstructure:"date_field" json:"date_field"`
	PriceField     string   `mapstructure:"price_field" json:"price_field"`
	AreaField      string   `mapstructure:"area_field" json:"area_field"`
	CategoryField  string   `mapstructure:"category_field" json:"category_field"`
	BedroomsField  string   `mapstructure:"bedrooms_field" json:"bedrooms_field"`
	BathroomsField string   `mapstructure:"bathrooms_field" json:"bathrooms_field"`
	NumericFields  []string `mapstructure:"numeric_fields" json:"numeric_fields"`
}

// Storage selects the backend.
type Storage struct {
	// Kind is one of the registered storage kinds (see storage.ListKinds).
	Kind string `mapstructure:"kind" json:"kind"`
	// DSN is the backend connection string (a Redis URL for kind "redis").
	DSN string `mapstructure:"dsn" json:"dsn"`
	// Table is the destination table, or the key prefix for Redis.
	Table           string `mapstructure:"table" json:"table"`
	AutoCreateTable bool   `mapstructure:"auto_create_table" json:"auto_create_table"`
	BatchSize       int    `mapstructure:"batch_size" json:"batch_size"`
}

// Report controls the issue report artifact.
type Report struct {
	Dir    string `mapstructure:"dir" json:"dir"`
	Format string `mapstructure:"format" json:"format"`
}

// Source configures how inputs are fetched.
type Source struct {
	// Timeout bounds one HTTP fetch attempt.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	// Retries is the number of extra HTTP attempts on transient failures.
	Retries int `mapstructure:"retries" json:"retries"`
	// MaxBytes caps the size of a fetched or read input. Zero means no cap.
	MaxBytes int64 `mapstructure:"max_bytes" json:"max_bytes"`
}

// Runtime controls concurrency of multi-input runs.
type Runtime struct {
	Workers int `mapstructure:"workers" json:"workers"`
}

// Logging selects the zap logger shape.
type Logging struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Metrics selects an optional metrics backend.
type Metrics struct {
	// Backend is "", "none", "prompush" or "datadog".
	Backend        string   `mapstructure:"backend" json:"backend"`
	PushgatewayURL string   `mapstructure:"pushgateway_url" json:"pushgateway_url"`
	DatadogAddr    string   `mapstructure:"datadog_addr" json:"datadog_addr"`
	Namespace      string   `mapstructure:"namespace" json:"namespace"`
	Tags           []string `mapstructure:"tags" json:"tags"`
}

// DefaultHeaderAliases maps the headers seen in listing exports to the
// logical field names the rules use.
func DefaultHeaderAliases() map[string]string {
	return map[string]string{
		"Weekly Rent ($NZD)": "WeeklyRent",
		"Weekly Rent":        "WeeklyRent",
		"rent_price":         "WeeklyRent",
		"Days on Market":     "DaysOnMarket",
		"Floor Area (m2)":    "FloorArea",
		"floor_area":         "FloorArea",
		"Listing Date":       "ListingDate",
	}
}

// Default returns the built-in configuration.
func Default() Pipeline {
	rules := builtin.DefaultRules()
	limits := make(map[string][]float64, len(rules.Ranges))
	for _, r := range rules.Ranges {
		limits[r.Field] = []float64{r.Min, r.Max}
	}
	en := builtin.DefaultEnrich()
	return Pipeline{
		Job:                "propetl",
		RequiredFields:     rules.Required,
		RangeLimits:        limits,
		IntegerFields:      rules.Integer,
		DuplicateKeyFields: rules.DuplicateKey,
		HeaderAliases:      DefaultHeaderAliases(),
		Parser:             Parser{Delimiter: ","},
		Enrich: Enrich{
			DateField:      en.DateField,
			PriceField:     en.PriceField,
			AreaField:      en.AreaField,
			CategoryField:  en.CategoryField,
			BedroomsField:  en.BedroomsField,
			BathroomsField: en.BathroomsField,
			NumericFields:  en.Numeric,
		},
		Storage: Storage{
			Kind:            "sqlite",
			DSN:             "file:propetl.db",
			Table:           storage.DefaultTable,
			AutoCreateTable: true,
			BatchSize:       storage.DefaultBatchSize,
		},
		Report:  Report{Dir: "reports", Format: string(report.FormatCSV)},
		Source:  Source{Timeout: 30 * time.Second, Retries: 3},
		Runtime: Runtime{Workers: 4},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Rules converts the validation settings to builtin.Rules. Range field names
// take the spelling used in the other rule lists when they match, since file
// loaders may lower-case map keys.
func (p Pipeline) Rules() builtin.Rules {
	known := make([]string, 0, len(p.RequiredFields)+len(p.IntegerFields)+len(p.DuplicateKeyFields))
	known = append(known, p.RequiredFields...)
	known = append(known, p.IntegerFields...)
	known = append(known, p.DuplicateKeyFields...)

	limits := make(map[string][2]float64, len(p.RangeLimits))
	for k, v := range p.RangeLimits {
		if len(v) != 2 {
			continue
		}
		name := k
		for _, f := range known {
			if records.SameField(f, k) {
				name = f
				break
			}
		}
		limits[name] = [2]float64{v[0], v[1]}
	}
	return builtin.Rules{
		Required:     p.RequiredFields,
		Ranges:       builtin.RangesFromMap(limits, known),
		Integer:      p.IntegerFields,
		DuplicateKey: p.DuplicateKeyFields,
	}
}

// EnrichStep converts the enrich settings to the transformer.
func (p Pipeline) EnrichStep() builtin.Enrich {
	e := p.Enrich
	return builtin.Enrich{
		DateField:      e.DateField,
		PriceField:     e.PriceField,
		AreaField:      e.AreaField,
		CategoryField:  e.CategoryField,
		BedroomsField:  e.BedroomsField,
		BathroomsField: e.BathroomsField,
		Numeric:        e.NumericFields,
	}
}

// StorageConfig converts the storage settings for storage.New.
func (p Pipeline) StorageConfig() storage.Config {
	return storage.Config{
		Kind:            p.Storage.Kind,
		DSN:             p.Storage.DSN,
		Table:           p.Storage.Table,
		AutoCreateTable: p.Storage.AutoCreateTable,
		BatchSize:       p.Storage.BatchSize,
	}
}
