package main

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"propetl/internal/probe"
)

func (a *app) newProbeCmd() *cobra.Command {
	var (
		sniff  bool
		sample int
	)
	cmd := &cobra.Command{
		Use:   "probe FILE|URL",
		Short: "Describe the columns of an input and how they map to the configured fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			blob, err := e.source(args[0]).Fetch(cmd.Context())
			if err != nil {
				return err
			}
			opt := probe.Options{
				Parser:     e.pipe.Parser,
				Aliases:    a.cfg.HeaderAliases,
				Required:   a.cfg.RequiredFields,
				SampleRows: sample,
			}
			if sniff {
				opt.Parser.CSV.Comma = 0
			}
			rep, err := probe.Inspect(blob, opt)
			if err != nil {
				return errors.Wrapf(err, "probe %s", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&sniff, "sniff", false, "detect the CSV delimiter instead of using parser.delimiter")
	f.IntVar(&sample, "sample", 1000, "rows used for type inference; 0 means all")
	return cmd
}
