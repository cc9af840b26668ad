package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"propetl/internal/transformer/builtin"
	"propetl/pkg/records"
)

func (a *app) newMeltCmd() *cobra.Command {
	var opt builtin.MeltOptions
	cmd := &cobra.Command{
		Use:   "melt INPUT",
		Short: "Reshape a wide table to long CSV: first column as id, one row per other cell",
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
			long, err := e.pipe.Melt(blob, opt)
			if err != nil {
				return err
			}
			return writeCSV(cmd.OutOrStdout(), long)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opt.IDName, "id", "", "name of the id column (default: the first header)")
	f.StringVar(&opt.VarName, "var", "variable", "name of the column holding the original header")
	f.StringVar(&opt.ValueName, "value", "value", "name of the value column")
	f.BoolVar(&opt.Counts, "counts", false, "write values as integers, 0 when not numeric")
	return cmd
}

func writeCSV(w io.Writer, b *records.Batch) error {
	cw := csv.NewWriter(w)
	if len(b.Columns) > 0 {
		if err := cw.Write(b.Columns); err != nil {
			return errors.Wrap(err, "write csv header")
		}
	}
	line := make([]string, len(b.Columns))
	for _, r := range b.Rows {
		for i, c := range b.Columns {
			line[i] = cell(r[c])
		}
		if err := cw.Write(line); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
