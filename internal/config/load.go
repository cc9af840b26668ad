package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PROPETL_STORAGE_DSN.
const EnvPrefix = "PROPETL"

// keyDelim replaces viper's "." so header aliases may contain dots.
const keyDelim = "::"

// Load reads configuration from path (YAML, JSON or TOML by extension) and
// PROPETL_* environment variables on top of Default(). With an empty path it
// looks for propetl.{yaml,json,toml} in . and ./configs and falls back to the
// defaults when none exists.
//
// A file that sets range_limits or header_aliases replaces the default map
// as a whole.
func Load(path string) (Pipeline, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Pipeline{}, errors.Wrapf(err, "read config %s", path)
		}
	} else {
		v.SetConfigName("propetl")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return Pipeline{}, errors.Wrap(err, "read config")
			}
		}
	}

	var p Pipeline
	if err := v.Unmarshal(&p); err != nil {
		return Pipeline{}, errors.Wrap(err, "decode config")
	}
	d := Default()
	if p.RangeLimits == nil {
		p.RangeLimits = d.RangeLimits
	}
	if p.HeaderAliases == nil {
		p.HeaderAliases = d.HeaderAliases
	}
	return p, nil
}

// ConfigFile reports the file Load would read for path, or "" when only
// defaults apply.
func ConfigFile(path string) string {
	if path != "" {
		return path
	}
	v := newViper()
	v.SetConfigName("propetl")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		return ""
	}
	return v.ConfigFileUsed()
}

func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelim))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelim, "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return v
}

// setDefaults registers every scalar and list key so AutomaticEnv can
// override it. Maps are filled in by Load after decoding.
func setDefaults(v *viper.Viper, d Pipeline) {
	k := func(parts ...string) string { return strings.Join(parts, keyDelim) }

	v.SetDefault("job", d.Job)
	v.SetDefault("required_fields", d.RequiredFields)
	v.SetDefault("integer_fields", d.IntegerFields)
	v.SetDefault("duplicate_key_fields", d.DuplicateKeyFields)
	v.SetDefault("replace_table", d.ReplaceTable)

	v.SetDefault(k("parser", "delimiter"), d.Parser.Delimiter)
	v.SetDefault(k("parser", "sheet"), d.Parser.Sheet)

	v.SetDefault(k("enrich", "date_field"), d.Enrich.DateField)
	v.SetDefault(k("enrich", "price_field"), d.Enrich.PriceField)
	v.SetDefault(k("enrich", "area_field"), d.Enrich.AreaField)
	v.SetDefault(k("enrich", "category_field"), d.Enrich.CategoryField)
	v.SetDefault(k("enrich", "bedrooms_field"), d.Enrich.BedroomsField)
	v.SetDefault(k("enrich", "bathrooms_field"), d.Enrich.BathroomsField)
	v.SetDefault(k("enrich", "numeric_fields"), d.Enrich.NumericFields)

	v.SetDefault(k("storage", "kind"), d.Storage.Kind)
	v.SetDefault(k("storage", "dsn"), d.Storage.DSN)
	v.SetDefault(k("storage", "table"), d.Storage.Table)
	v.SetDefault(k("storage", "auto_create_table"), d.Storage.AutoCreateTable)
	v.SetDefault(k("storage", "batch_size"), d.Storage.BatchSize)

	v.SetDefault(k("report", "dir"), d.Report.Dir)
	v.SetDefault(k("report", "format"), d.Report.Format)

	v.SetDefault(k("source", "timeout"), d.Source.Timeout)
	v.SetDefault(k("source", "retries"), d.Source.Retries)
	v.SetDefault(k("source", "max_bytes"), d.Source.MaxBytes)

	v.SetDefault(k("runtime", "workers"), d.Runtime.Workers)

	v.SetDefault(k("logging", "level"), d.Logging.Level)
	v.SetDefault(k("logging", "format"), d.Logging.Format)

	v.SetDefault(k("metrics", "backend"), d.Metrics.Backend)
	v.SetDefault(k("metrics", "pushgateway_url"), d.Metrics.PushgatewayURL)
	v.SetDefault(k("metrics", "datadog_addr"), d.Metrics.DatadogAddr)
	v.SetDefault(k("metrics", "namespace"), d.Metrics.Namespace)
	v.SetDefault(k("metrics", "tags"), d.Metrics.Tags)
}
