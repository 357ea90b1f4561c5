package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/viant/opflow"
)

// Validate returns the validate command
func Validate() *cobra.Command {
	var location string
	cmd := &cobra.Command{
		Use:   "validate --config <file>",
		Short: "Validate a config without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := opflow.LoadConfig(cmd.Context(), location)
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			if err = config.Validate(); err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d operation(s), %d configuration(s)\n", location, len(config.Operations), len(config.Configurations))
			return err
		},
	}
	cmd.Flags().StringVarP(&location, "config", "c", "", "config URL (any afs supported storage)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
