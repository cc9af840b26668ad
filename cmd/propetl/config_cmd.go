package main

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"propetl/internal/config"
)

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Validate the configuration and list every issue",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				src := config.ConfigFile(a.cfgPath)
				if src == "" {
					src = "built-in defaults"
				}
				issues := config.ValidatePipeline(a.cfg)
				for _, is := range issues {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s: %s\n", is.Severity, is.Path, is.Message)
				}
				if config.HasErrors(issues) {
					return errors.Newf("configuration is invalid: %s", src)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", src)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(a.cfg)
			},
		},
	)
	return cmd
}
