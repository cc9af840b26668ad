package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"propetl/internal/parser"
)

func (a *app) newWatchCmd() *cobra.Command {
	var (
		settle   time.Duration
		existing bool
	)
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Ingest listing files as they appear in DIR until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.Close()

			w := &inbox{
				env:      e,
				dir:      args[0],
				settle:   settle,
				existing: existing,
				workers:  a.cfg.Runtime.Workers,
				out:      cmd.OutOrStdout(),
				log:      a.log.Named("watch"),
			}
			return w.Run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.DurationVar(&settle, "settle", 500*time.Millisecond, "quiet period after the last write before a file is ingested")
	f.BoolVar(&existing, "existing", false, "also ingest files already in DIR at startup")
	return cmd
}

// inbox ingests files created or rewritten in dir. Bursts of events for the
// same file are collapsed into one run once the file has been quiet for
// settle.
type inbox struct {
	env      *env
	dir      string
	settle   time.Duration
	existing bool
	workers  int
	out      io.Writer
	log      *zap.Logger

	mu sync.Mutex // guards out
}

// Run blocks until ctx is done or the watcher fails, then waits for in-flight
// runs.
func (w *inbox) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return errors.Wrapf(err, "watch %s", w.dir)
	}
	w.log.Info("watching", zap.String("dir", w.dir), zap.Duration("settle", w.settle))

	var g errgroup.Group
	if w.workers > 0 {
		g.SetLimit(w.workers)
	}
	defer func() { _ = g.Wait() }()

	done := make(chan struct{})
	defer close(done)
	ready := make(chan string)
	pending := map[string]*time.Timer{}
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()
	schedule := func(name string) {
		if t, ok := pending[name]; ok {
			t.Reset(w.settle)
			return
		}
		pending[name] = time.AfterFunc(w.settle, func() {
			select {
			case ready <- name:
			case <-done:
			}
		})
	}

	if w.existing {
		entries, err := os.ReadDir(w.dir)
		if err != nil {
			return errors.Wrapf(err, "read %s", w.dir)
		}
		for _, de := range entries {
			if name := filepath.Join(w.dir, de.Name()); !de.IsDir() && ingestible(name) {
				schedule(name)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch stopped", zap.String("dir", w.dir))
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if ingestible(ev.Name) {
				schedule(ev.Name)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))

		case name := <-ready:
			delete(pending, name)
			g.Go(func() error {
				w.emit(w.env.ingest(ctx, name, false))
				return nil
			})
		}
	}
}

func (w *inbox) emit(line runLine) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := json.NewEncoder(w.out).Encode(line); err != nil {
		w.log.Warn("write summary", zap.Error(err))
	}
}

// ingestible skips hidden and temporary files and anything the loader does
// not recognize by extension.
func ingestible(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") || strings.HasSuffix(base, "~") {
		return false
	}
	_, err := parser.ResolveFormat(base, "")
	return err == nil
}
