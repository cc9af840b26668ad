package pipeline

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"propetl/internal/transformer/builtin"
)

// StageCounts is the per-stage accounting of one run.
//
// Ingested >= ValidatedOK >= TransformedOK >= Stored and
// Duplicates <= ValidatedOK hold for every Result a Run returns.
type StageCounts struct {
	Ingested      int `json:"ingested"`
	ValidatedOK   int `json:"validated_ok"`
	Rejected      int `json:"rejected"`
	Duplicates    int `json:"duplicates"`
	TransformedOK int `json:"transformed_ok"`
	Stored        int `json:"stored"`
}

// Result is the run summary handed back to callers.
type Result struct {
	StageCounts StageCounts
	// ReportPath is set only when the run produced issues and the report was
	// written.
	ReportPath string
	Duration   time.Duration

	RunID  string
	Source string
	// Validation is the validator's own summary; its Duplicates counts
	// in-batch composite-key duplicates, which are part of Rejected.
	Validation builtin.ValidationSummary
	Issues     []builtin.RowIssue
	// StorageError and ReportError record best-effort failures that did not
	// abort the run.
	StorageError error
	ReportError  error
}

type resultJSON struct {
	StageCounts     StageCounts `json:"stage_counts"`
	ReportPath      *string     `json:"report_path"`
	DurationSeconds float64     `json:"duration_seconds"`
}

// MarshalJSON renders the caller-facing summary:
// {"stage_counts":{...},"report_path":string|null,"duration_seconds":n}.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		StageCounts:     r.StageCounts,
		DurationSeconds: r.Duration.Seconds(),
	}
	if r.ReportPath != "" {
		p := r.ReportPath
		out.ReportPath = &p
	}
	if out.DurationSeconds < 0 {
		out.DurationSeconds = 0
	}
	return json.Marshal(out)
}

// OK reports whether no best-effort step failed.
func (r *Result) OK() bool {
	return r.StorageError == nil && r.ReportError == nil
}

// IngestError is returned when the input cannot be turned into records. It
// wraps parser.ErrUnsupportedFormat, parser.ErrParse or parser.ErrNoTableFound.
type IngestError struct {
	Source string
	Err    error
}

func (e *IngestError) Error() string {
	return "ingest " + e.Source + ": " + e.Err.Error()
}

func (e *IngestError) Unwrap() error { return e.Err }

// AsIngestError extracts an *IngestError from err's chain.
func AsIngestError(err error) (*IngestError, bool) {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
