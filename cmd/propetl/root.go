package main

import (
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"propetl/internal/config"
	"propetl/internal/datasource"
	"propetl/internal/datasource/file"
	"propetl/internal/datasource/httpds"
	"propetl/internal/logging"
	"propetl/internal/pipeline"
	"propetl/internal/storage"

	// register all backends with the storage factory.
	_ "propetl/internal/storage/all"
)

// app holds state shared by the subcommands of one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer

	cfgPath   string
	logLevel  string
	logFormat string

	cfg config.Pipeline
	log *zap.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:   "propetl",
		Short: "Ingest property-listing tables into a deduplicated store",
		Long: `propetl loads CSV, XLSX and HTML listing tables, validates every row,
skips content it has already stored, derives listing features and saves the
result. Each run prints a JSON summary with per-stage counts and the path of
the issue report, if any.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	f := root.PersistentFlags()
	f.StringVarP(&a.cfgPath, "config", "c", "", "config file (default: propetl.{yaml,json,toml} in . or ./configs)")
	f.StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	f.StringVar(&a.logFormat, "log-format", "", "override logging.format (json, console)")

	root.AddCommand(
		a.newRunCmd(),
		a.newValidateCmd(),
		a.newWatchCmd(),
		a.newProbeCmd(),
		a.newMeltCmd(),
		a.newConfigCmd(),
	)
	return root
}

// init loads configuration and builds the logger.
func (a *app) init() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	log, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: a.errOut,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// checkConfig fails when the loaded configuration has errors. Warnings are
// logged.
func (a *app) checkConfig() error {
	issues := config.ValidatePipeline(a.cfg)
	var msgs []string
	for _, is := range issues {
		if is.Severity == config.SeverityError {
			msgs = append(msgs, is.Error())
			continue
		}
		a.log.Warn("config", zap.String("path", is.Path), zap.String("message", is.Message))
	}
	if len(msgs) > 0 {
		return errors.Newf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}
	return nil
}

// env is the runtime wiring for commands that ingest.
type env struct {
	pipe     *pipeline.Pipeline
	repo     storage.Repository
	http     *httpds.Client
	maxBytes int64
	log      *zap.Logger
	closers  []func()
}

// open validates the configuration, installs the metrics backend and opens
// the store. withStore=false builds a validation-only pipeline.
func (a *app) open(ctx context.Context, withStore bool) (*env, error) {
	if err := a.checkConfig(); err != nil {
		return nil, err
	}
	e := &env{
		maxBytes: a.cfg.Source.MaxBytes,
		log:      a.log,
		http: httpds.NewClient(httpds.Config{
			Timeout:    a.cfg.Source.Timeout,
			MaxRetries: a.cfg.Source.Retries,
			UserAgent:  "propetl",
			Logger:     a.log.Named("http"),
		}),
	}

	if withStore {
		stopMetrics, err := setupMetrics(a.cfg, a.log.Named("metrics"))
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, stopMetrics)

		sc := a.cfg.StorageConfig()
		sc.Logger = a.log.Named("storage")
		repo, err := storage.New(ctx, sc)
		if err != nil {
			e.Close()
			return nil, errors.Wrapf(err, "open storage.kind=%s", sc.Kind)
		}
		e.repo = repo
		e.closers = append(e.closers, repo.Close)
	}

	p, err := pipeline.New(a.cfg, e.repo, a.log.Named("pipeline"))
	if err != nil {
		e.Close()
		return nil, err
	}
	e.pipe = p
	return e, nil
}

// Close releases resources in reverse order of acquisition.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// source picks the datasource for a CLI argument.
func (e *env) source(target string) datasource.Source {
	if httpds.IsURL(target) {
		return httpds.NewURL(e.http, target, e.maxBytes)
	}
	return file.NewLocal(target, e.maxBytes)
}

// runLine is one line of `propetl run` output.
type runLine struct {
	Input    string           `json:"input"`
	RunID    string           `json:"run_id,omitempty"`
	Result   *pipeline.Result `json:"result,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ingest fetches target and runs it through the pipeline.
func (e *env) ingest(ctx context.Context, target string, replace bool) runLine {
	line := runLine{Input: target}
	blob, err := e.source(target).Fetch(ctx)
	if err != nil {
		e.log.Error("fetch input", zap.String("input", target), zap.Error(err))
		line.Error = err.Error()
		return line
	}
	res, err := e.pipe.Run(ctx, blob, pipeline.RunOptions{Replace: replace})
	if res != nil {
		line.RunID = res.RunID
		line.Result = res
		if res.StorageError != nil {
			line.Warnings = append(line.Warnings, "storage: "+res.StorageError.Error())
		}
		if res.ReportError != nil {
			line.Warnings = append(line.Warnings, "report: "+res.ReportError.Error())
		}
	}
	if err != nil {
		line.Error = err.Error()
	}
	return line
}
