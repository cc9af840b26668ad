package main

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"propetl/internal/datasource/file"
)

func (a *app) newRunCmd() *cobra.Command {
	var (
		replace bool
		list    string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "run [files|urls...]",
		Short: "Ingest inputs and print one JSON summary per input",
		Long: `run ingests each input (a local path or an http(s) URL) and prints one JSON
line per input, in argument order:

  {"input":"a.csv","run_id":"...","result":{"stage_counts":{...},"report_path":null,"duration_seconds":0.01}}

Inputs run concurrently, bounded by runtime.workers. With --replace the first
input replaces the destination and the remaining inputs are appended.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := append([]string(nil), args...)
			if list != "" {
				more, err := file.ReadList(list)
				if err != nil {
					return err
				}
				targets = append(targets, more...)
			}
			if len(targets) == 0 {
				return errors.New("no inputs: pass files, URLs or --list")
			}
			if workers <= 0 {
				workers = a.cfg.Runtime.Workers
			}

			e, err := a.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.Close()

			lines := e.runAll(cmd.Context(), targets, replace || a.cfg.ReplaceTable, workers)

			enc := json.NewEncoder(cmd.OutOrStdout())
			failed := 0
			for _, l := range lines {
				if err := enc.Encode(l); err != nil {
					return errors.Wrap(err, "write summary")
				}
				if l.Error != "" {
					failed++
				}
			}
			if failed > 0 {
				return errors.Newf("%d of %d inputs failed", failed, len(targets))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&replace, "replace", false, "replace the destination instead of appending (also: replace_table)")
	f.StringVar(&list, "list", "", "file with one input per line")
	f.IntVar(&workers, "workers", 0, "concurrent inputs (default: runtime.workers)")
	return cmd
}

// runAll ingests targets with at most workers runs in flight and returns the
// lines in target order. A replacing run goes first and alone.
func (e *env) runAll(ctx context.Context, targets []string, replace bool, workers int) []runLine {
	lines := make([]runLine, len(targets))
	start := 0
	if replace {
		lines[0] = e.ingest(ctx, targets[0], true)
		start = 1
	}

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := start; i < len(targets); i++ {
		g.Go(func() error {
			lines[i] = e.ingest(ctx, targets[i], false)
			return nil
		})
	}
	_ = g.Wait()
	return lines
}
