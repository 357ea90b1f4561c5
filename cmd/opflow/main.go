package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "opflow",
	Short: "opflow runs ordered operations across many configurations",
	Long: `opflow runs a fixed, ordered list of operations across a set of
independent configurations, capping the parallelism of every operation and
retrying failures up to an error tolerance.  Runs resume from completion
markers left behind by earlier runs.
`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(Run())
	rootCmd.AddCommand(Validate())
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if asExitError(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(exitFatal)
	}
}
