package main

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"propetl/internal/pipeline"
)

// checkLine is one line of `propetl validate` output.
type checkLine struct {
	Input string `json:"input"`
	*pipeline.Check
	Error string `json:"error,omitempty"`
}

func (a *app) newValidateCmd() *cobra.Command {
	var failOnIssues bool
	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate inputs and print their issues without storing anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			failed, withIssues := 0, 0
			for _, target := range args {
				line := checkLine{Input: target}
				blob, err := e.source(target).Fetch(cmd.Context())
				if err == nil {
					line.Check, err = e.pipe.Validate(blob)
				}
				if err != nil {
					line.Error = err.Error()
					failed++
				} else if len(line.Issues) > 0 {
					withIssues++
				}
				if err := enc.Encode(line); err != nil {
					return errors.Wrap(err, "write result")
				}
			}
			switch {
			case failed > 0:
				return errors.Newf("%d of %d inputs could not be read", failed, len(args))
			case failOnIssues && withIssues > 0:
				return errors.Newf("%d of %d inputs have issues", withIssues, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnIssues, "fail-on-issues", false, "exit non-zero when any input has issues")
	return cmd
}
