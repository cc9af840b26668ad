// Package pipeline runs one input through the ingestion stages:
//
//	START -> LOADED -> VALIDATED -> DEDUPED -> TRANSFORMED -> STORED -> DONE
//
// Loader failures abort the run. Validation issues only shrink the accepted
// set and are written to a report. Storage failures are logged and recorded
// on the Result; the run itself still succeeds.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"propetl/internal/config"
	"propetl/internal/datasource"
	"propetl/internal/dedup"
	"propetl/internal/metrics"
	"propetl/internal/parser"
	csvparser "propetl/internal/parser/csv"
	xlsxparser "propetl/internal/parser/xlsx"
	"propetl/internal/report"
	"propetl/internal/storage"
	"propetl/internal/transformer"
	"propetl/internal/transformer/builtin"
	"propetl/pkg/records"
)

// Stage names used in logs, metrics and cancellation errors.
const (
	StageLoad      = "load"
	StageValidate  = "validate"
	StageReport    = "report"
	StageDedup     = "dedup"
	StageTransform = "transform"
	StageStore     = "store"
)

// RunOptions tune a single run.
type RunOptions struct {
	// Replace clears the destination before storing.
	Replace bool
}

// Pipeline holds everything a run needs. A Pipeline is safe for concurrent
// Run calls as long as Repo is.
type Pipeline struct {
	Job string
	// Repo is created once per process and shared by runs. Nil disables the
	// cross-batch guard and the store stage.
	Repo      storage.Repository
	Validator builtin.Validator
	// Aliases maps source headers to logical field names.
	Aliases   map[string]string
	Parser    parser.Options
	Transform transformer.Chain
	Report    report.Writer
	Log       *zap.Logger

	now   func() time.Time
	runID func() string
}

// New builds a Pipeline from configuration around an open repository.
func New(cfg config.Pipeline, repo storage.Repository, log *zap.Logger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}
	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return nil, err
	}
	var comma rune
	if d := []rune(cfg.Parser.Delimiter); len(d) == 1 {
		comma = d[0]
	}
	return &Pipeline{
		Job:       cfg.Job,
		Repo:      repo,
		Validator: builtin.Validator{Rules: cfg.Rules()},
		Aliases:   cfg.HeaderAliases,
		Parser: parser.Options{
			CSV:  csvparser.Options{Comma: comma, Logger: log.Named("parser")},
			XLSX: xlsxparser.Options{Sheet: cfg.Parser.Sheet},
		},
		Transform: transformer.Chain{cfg.EnrichStep()},
		Report:    report.Writer{Dir: cfg.Report.Dir, Format: format},
		Log:       log,
	}, nil
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

func (p *Pipeline) newRunID() string {
	if p.runID != nil {
		return p.runID()
	}
	return uuid.NewString()
}

// run carries the state of one Run call.
type run struct {
	p     *Pipeline
	ctx   context.Context
	res   *Result
	log   *zap.Logger
	start time.Time
}

// checkpoint aborts the run when ctx is done.
func (r *run) checkpoint(stage string) error {
	if err := r.ctx.Err(); err != nil {
		return errors.Wrapf(err, "run canceled before %s", stage)
	}
	return nil
}

// step times fn and records it under stage.
func (r *run) step(stage string, fn func() error) error {
	t0 := time.Now()
	err := fn()
	metrics.RecordStep(r.p.Job, stage, err, time.Since(t0))
	return err
}

func (r *run) finish(status string) *Result {
	r.res.Duration = time.Since(r.start)
	c := r.res.StageCounts
	for kind, n := range map[string]int{
		"ingested":       c.Ingested,
		"validated_ok":   c.ValidatedOK,
		"rejected":       c.Rejected,
		"duplicates":     c.Duplicates,
		"transformed_ok": c.TransformedOK,
		"stored":         c.Stored,
	} {
		metrics.RecordRow(r.p.Job, kind, int64(n))
	}
	metrics.RecordRun(r.p.Job, status)

	fields := []zap.Field{
		zap.String("status", status),
		zap.Int("ingested", c.Ingested),
		zap.Int("validated_ok", c.ValidatedOK),
		zap.Int("rejected", c.Rejected),
		zap.Int("duplicates", c.Duplicates),
		zap.Int("transformed_ok", c.TransformedOK),
		zap.Int("stored", c.Stored),
		zap.String("report_path", r.res.ReportPath),
		zap.Duration("duration", r.res.Duration),
	}
	if r.res.StorageError != nil {
		fields = append(fields, zap.NamedError("storage_error", r.res.StorageError))
	}
	if r.res.ReportError != nil {
		fields = append(fields, zap.NamedError("report_error", r.res.ReportError))
	}
	r.log.Info("pipeline run", fields...)
	return r.res
}

// Run ingests one blob. It returns an *IngestError when the blob cannot be
// parsed, and the partial result with a wrapped ctx.Err() when ctx is done
// before a stage starts. Every other outcome, including storage failure, is
// a Result with a nil error.
func (p *Pipeline) Run(ctx context.Context, blob datasource.Blob, opts RunOptions) (*Result, error) {
	log := p.logger()
	res := &Result{RunID: p.newRunID(), Source: blob.Filename}
	r := &run{
		p:     p,
		ctx:   ctx,
		res:   res,
		log:   log.With(zap.String("run_id", res.RunID), zap.String("source", blob.Filename)),
		start: time.Now(),
	}
	started := p.clock()

	// LOADED
	if err := r.checkpoint(StageLoad); err != nil {
		return r.finish("canceled"), err
	}
	var batch *records.Batch
	err := r.step(StageLoad, func() error {
		var err error
		batch, err = p.load(blob)
		return err
	})
	if err != nil {
		r.finish("failed")
		return nil, err
	}
	res.StageCounts.Ingested = batch.Len()
	if batch.Skipped > 0 {
		r.log.Warn("rows skipped by parser", zap.Int("skipped", batch.Skipped))
	}
	if batch.Len() == 0 {
		return r.finish("ok"), nil
	}

	// VALIDATED
	if err := r.checkpoint(StageValidate); err != nil {
		return r.finish("canceled"), err
	}
	var accepted []records.Record
	_ = r.step(StageValidate, func() error {
		accepted, res.Issues, res.Validation = p.Validator.Validate(batch)
		return nil
	})
	res.StageCounts.ValidatedOK = len(accepted)
	res.StageCounts.Rejected = res.Validation.Rejected

	if len(res.Issues) > 0 {
		if err := r.checkpoint(StageReport); err != nil {
			return r.finish("canceled"), err
		}
		w := p.Report
		if w.Now == nil {
			w.Now = func() time.Time { return started }
		}
		err := r.step(StageReport, func() error {
			path, err := w.Write(ctx, res.RunID, res.Issues)
			res.ReportPath = path
			return err
		})
		if err != nil {
			res.ReportError = err
			r.log.Error("write issue report", zap.Error(err))
		}
	}

	// DEDUPED
	if err := r.checkpoint(StageDedup); err != nil {
		return r.finish("canceled"), err
	}
	var fresh []dedup.Candidate
	err = r.step(StageDedup, func() error {
		g := dedup.Guard{SkipStore: opts.Replace, Log: r.log}
		if p.Repo != nil {
			g.Store = p.Repo
		}
		var dups int
		var err error
		fresh, dups, err = g.FilterNew(ctx, accepted)
		res.StageCounts.Duplicates = dups
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return r.finish("canceled"), errors.Wrapf(ctx.Err(), "run canceled during %s", StageDedup)
		}
		res.StorageError = err
		r.log.Error("dedup lookup failed", zap.Error(err))
		return r.finish("ok"), nil
	}

	// TRANSFORMED
	if err := r.checkpoint(StageTransform); err != nil {
		return r.finish("canceled"), err
	}
	var transformed []records.Record
	_ = r.step(StageTransform, func() error {
		in := make([]records.Record, len(fresh))
		for i, c := range fresh {
			in[i] = c.Record
		}
		transformed = p.Transform.Apply(in)
		return nil
	})
	res.StageCounts.TransformedOK = len(transformed)

	// STORED
	if p.Repo == nil || len(transformed) == 0 {
		return r.finish("ok"), nil
	}
	if err := r.checkpoint(StageStore); err != nil {
		return r.finish("canceled"), err
	}
	mode := storage.ModeAppend
	if opts.Replace {
		mode = storage.ModeReplace
	}
	rows, err := toRows(fresh, transformed, blob.Filename)
	if err == nil {
		err = r.step(StageStore, func() error {
			sr, err := p.Repo.Save(ctx, rows, mode)
			if err != nil {
				return err
			}
			res.StageCounts.Stored = sr.Inserted
			res.StageCounts.Duplicates += len(sr.Existing)
			return nil
		})
	}
	if err != nil {
		res.StorageError = err
		r.log.Error("store records", zap.Error(err), zap.String("mode", string(mode)))
	}
	return r.finish("ok"), nil
}

// load parses blob, applies header aliases and normalizes string values.
func (p *Pipeline) load(blob datasource.Blob) (*records.Batch, error) {
	batch, err := parser.Load(blob.Data, blob.Filename, blob.ContentType, p.Parser)
	if err != nil {
		return nil, &IngestError{Source: blob.Filename, Err: err}
	}
	if skipped := batch.Rename(p.Aliases); len(skipped) > 0 {
		p.logger().Warn("header alias target already present; kept original header",
			zap.String("source", blob.Filename), zap.Strings("headers", skipped))
	}
	builtin.Normalize{}.Apply(batch.Rows)
	return batch, nil
}

// Check is the outcome of a validation-only pass.
type Check struct {
	Summary builtin.ValidationSummary `json:"summary"`
	Issues  []builtin.RowIssue        `json:"issues"`
	// Skipped counts rows the parser dropped before validation.
	Skipped int `json:"skipped"`
}

// Validate loads and validates blob without writing a report or touching
// storage.
func (p *Pipeline) Validate(blob datasource.Blob) (*Check, error) {
	batch, err := p.load(blob)
	if err != nil {
		return nil, err
	}
	_, issues, sum := p.Validator.Validate(batch)
	if issues == nil {
		issues = []builtin.RowIssue{}
	}
	return &Check{Summary: sum, Issues: issues, Skipped: batch.Skipped}, nil
}

// Melt loads blob the way Run does and reshapes it to long form. Nothing is
// validated or stored.
func (p *Pipeline) Melt(blob datasource.Blob, opt builtin.MeltOptions) (*records.Batch, error) {
	batch, err := p.load(blob)
	if err != nil {
		return nil, err
	}
	return builtin.Melt(batch, opt), nil
}

// toRows pairs each transformed record with the fingerprint of its cleaned
// form. Transform keeps order and count, so index i of both slices is the
// same listing.
func toRows(fresh []dedup.Candidate, transformed []records.Record, source string) ([]storage.Row, error) {
	if len(fresh) != len(transformed) {
		return nil, errors.Newf("transform changed record count: %d -> %d", len(fresh), len(transformed))
	}
	rows := make([]storage.Row, len(transformed))
	for i, rec := range transformed {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "encode record %s", fresh[i].Fingerprint)
		}
		rows[i] = storage.Row{
			Fingerprint: string(fresh[i].Fingerprint),
			Data:        data,
			Source:      source,
		}
	}
	return rows, nil
}
