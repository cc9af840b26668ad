package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func TestValidatePipeline(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Pipeline)
		sev    IssueSeverity
		path   string
		msg    string
	}{
		{"empty job", func(p *Pipeline) { p.Job = " " }, SeverityError, "job", "must not be empty"},
		{"no required fields", func(p *Pipeline) { p.RequiredFields = nil; p.DuplicateKeyFields = nil }, SeverityWarning, "required_fields", "no required fields"},
		{"range arity", func(p *Pipeline) { p.RangeLimits["WeeklyRent"] = []float64{1, 2, 3} }, SeverityError, "range_limits.WeeklyRent", "[min, max]"},
		{"range inverted", func(p *Pipeline) { p.RangeLimits["WeeklyRent"] = []float64{10, 1} }, SeverityError, "range_limits.WeeklyRent", "greater than max"},
		{"dup key not required", func(p *Pipeline) { p.DuplicateKeyFields = []string{"Suburb", "FloorArea"} }, SeverityWarning, "duplicate_key_fields[1]", "not required"},
		{"empty alias", func(p *Pipeline) { p.HeaderAliases = map[string]string{"Rent": ""} }, SeverityError, "header_aliases.Rent", "must not be empty"},
		{"long delimiter", func(p *Pipeline) { p.Parser.Delimiter = ";;" }, SeverityError, "parser.delimiter", "single character"},
		{"quote delimiter", func(p *Pipeline) { p.Parser.Delimiter = `"` }, SeverityError, "parser.delimiter", "not allowed"},
		{"no storage kind", func(p *Pipeline) { p.Storage.Kind = "" }, SeverityError, "storage.kind", "must not be empty"},
		{"unknown storage kind", func(p *Pipeline) { p.Storage.Kind = "oracle" }, SeverityWarning, "storage.kind", "unknown storage kind"},
		{"missing dsn", func(p *Pipeline) { p.Storage.DSN = "" }, SeverityError, "storage.dsn", "must not be empty"},
		{"bad report format", func(p *Pipeline) { p.Report.Format = "xlsx" }, SeverityError, "report.format", "unknown report format"},
		{"negative retries", func(p *Pipeline) { p.Source.Retries = -1 }, SeverityError, "source.retries", "negative"},
		{"zero workers", func(p *Pipeline) { p.Runtime.Workers = 0 }, SeverityWarning, "runtime.workers", "one at a time"},
		{"bad level", func(p *Pipeline) { p.Logging.Level = "trace" }, SeverityError, "logging.level", "invalid log level"},
		{"prompush without url", func(p *Pipeline) { p.Metrics.Backend = "prompush" }, SeverityError, "metrics.pushgateway_url", "requires"},
		{"unknown metrics", func(p *Pipeline) { p.Metrics.Backend = "graphite" }, SeverityError, "metrics.backend", "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Default()
			tc.mutate(&p)
			issues := ValidatePipeline(p)
			assert.True(t, hasIssue(issues, tc.sev, tc.path, tc.msg), "got %+v", issues)
		})
	}
}

func TestValidatePipeline_MemoryNeedsNoDSN(t *testing.T) {
	p := Default()
	p.Storage = Storage{Kind: "memory", BatchSize: 10}
	assert.Empty(t, ValidatePipeline(p))
}

func TestHasErrorsAndIssueError(t *testing.T) {
	warn := Issue{Severity: SeverityWarning, Path: "a", Message: "m"}
	err := Issue{Severity: SeverityError, Path: "storage.kind", Message: "bad"}
	assert.False(t, HasErrors([]Issue{warn}))
	assert.True(t, HasErrors([]Issue{warn, err}))
	assert.Equal(t, "error at storage.kind: bad", err.Error())
}
