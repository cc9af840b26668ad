package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"propetl/internal/report"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "range_limits.WeeklyRent"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// KnownStorageKinds lists the backends shipped in storage/all.
var KnownStorageKinds = []string{"memory", "sqlite", "postgres", "mssql", "mysql", "redis"}

// ValidatePipeline performs static validation of p without mutating it.
// Callers decide whether warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels metrics and log lines")
	}

	validateRules(p, add)

	for from, to := range p.HeaderAliases {
		if strings.TrimSpace(to) == "" {
			add(SeverityError, "header_aliases."+from, "alias target must not be empty")
		}
	}

	if n := utf8.RuneCountInString(p.Parser.Delimiter); n > 1 {
		add(SeverityError, "parser.delimiter", "delimiter must be a single character, got %q", p.Parser.Delimiter)
	} else if p.Parser.Delimiter == `"` || p.Parser.Delimiter == "\n" || p.Parser.Delimiter == "\r" {
		add(SeverityError, "parser.delimiter", "delimiter %q is not allowed", p.Parser.Delimiter)
	}

	validateStorage(p.Storage, add)

	if _, err := report.ParseFormat(p.Report.Format); err != nil {
		add(SeverityError, "report.format", "%v", err)
	}
	if strings.TrimSpace(p.Report.Dir) == "" {
		add(SeverityWarning, "report.dir", "report.dir is empty; reports go to the working directory")
	}

	if p.Source.Retries < 0 {
		add(SeverityError, "source.retries", "retries must not be negative")
	}
	if p.Source.Timeout <= 0 {
		add(SeverityWarning, "source.timeout", "no fetch timeout; HTTP sources may hang")
	}
	if p.Source.MaxBytes < 0 {
		add(SeverityError, "source.max_bytes", "max_bytes must not be negative")
	}

	if p.Runtime.Workers < 0 {
		add(SeverityError, "runtime.workers", "workers must not be negative")
	} else if p.Runtime.Workers == 0 {
		add(SeverityWarning, "runtime.workers", "workers=0; inputs will run one at a time")
	}

	switch p.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add(SeverityError, "logging.level", "invalid log level %q (must be debug, info, warn, or error)", p.Logging.Level)
	}
	switch p.Logging.Format {
	case "json", "console":
	default:
		add(SeverityError, "logging.format", "invalid log format %q (must be json or console)", p.Logging.Format)
	}

	switch p.Metrics.Backend {
	case "", "none":
	case "prompush":
		if p.Metrics.PushgatewayURL == "" {
			add(SeverityError, "metrics.pushgateway_url", "prompush backend requires pushgateway_url")
		}
	case "datadog":
		if p.Metrics.DatadogAddr == "" {
			add(SeverityError, "metrics.datadog_addr", "datadog backend requires datadog_addr")
		}
	default:
		add(SeverityError, "metrics.backend", "unknown metrics backend %q", p.Metrics.Backend)
	}
	return issues
}

func validateRules(p Pipeline, add func(IssueSeverity, string, string, ...any)) {
	if len(p.RequiredFields) == 0 {
		add(SeverityWarning, "required_fields", "no required fields; missing-column checks are disabled")
	}
	for i, f := range p.RequiredFields {
		if strings.TrimSpace(f) == "" {
			add(SeverityError, fmt.Sprintf("required_fields[%d]", i), "field name must not be empty")
		}
	}
	for name, lim := range p.RangeLimits {
		path := "range_limits." + name
		if len(lim) != 2 {
			add(SeverityError, path, "range must be [min, max], got %d values", len(lim))
			continue
		}
		if lim[0] > lim[1] {
			add(SeverityError, path, "min %v is greater than max %v", lim[0], lim[1])
		}
	}
	required := make(map[string]bool, len(p.RequiredFields))
	for _, f := range p.RequiredFields {
		required[strings.ToLower(strings.TrimSpace(f))] = true
	}
	for i, f := range p.DuplicateKeyFields {
		if !required[strings.ToLower(strings.TrimSpace(f))] {
			add(SeverityWarning, fmt.Sprintf("duplicate_key_fields[%d]", i),
				"%q is not required; batches without it skip the duplicate scan", f)
		}
	}
}

func validateStorage(s Storage, add func(IssueSeverity, string, string, ...any)) {
	if strings.TrimSpace(s.Kind) == "" {
		add(SeverityError, "storage.kind", "storage.kind must not be empty")
		return
	}
	known := false
	for _, k := range KnownStorageKinds {
		if k == s.Kind {
			known = true
			break
		}
	}
	if !known {
		add(SeverityWarning, "storage.kind", "unknown storage kind %q; ensure a matching backend is registered", s.Kind)
	}
	if s.Kind != "memory" && strings.TrimSpace(s.DSN) == "" {
		add(SeverityError, "storage.dsn", "storage.dsn must not be empty")
	}
	if s.BatchSize <= 0 {
		add(SeverityWarning, "storage.batch_size", "batch_size=%d; the backend default is used", s.BatchSize)
	}
}
