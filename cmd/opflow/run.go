package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/opflow"
	"gopkg.in/yaml.v3"
)

// Process exit codes
const (
	exitOK        = 0
	exitFailedOut = 1
	exitFatal     = 2
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func asExitError(err error, target **exitError) bool {
	return errors.As(err, target)
}

type runFlags struct {
	config    string
	poll      time.Duration
	tolerance int
	order     string
	logFile   string
	logLevel  string
}

// Run returns the run command
func Run() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run --config <file>",
		Short: "Run all configurations through the operations",
		Example: `  opflow run --config opflow.yaml
  opflow run --config s3://bucket/opflow.yaml --poll 30s --tolerance 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runE(ctx, flags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "config URL (any afs supported storage)")
	cmd.Flags().DurationVar(&flags.poll, "poll", 0, "poll interval, overrides pollInterval")
	cmd.Flags().IntVar(&flags.tolerance, "tolerance", 0, "error tolerance, overrides errorTolerance")
	cmd.Flags().StringVar(&flags.order, "order", "", "configuration order, overrides order")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "rotating log file, overrides log.file")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level, overrides log.level")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func loadConfig(ctx context.Context, flags *runFlags) (*opflow.Config, error) {
	config, err := opflow.LoadConfig(ctx, flags.config)
	if err != nil {
		return nil, err
	}
	if flags.poll > 0 {
		config.PollInterval = flags.poll
	}
	if flags.tolerance > 0 {
		config.ErrorTolerance = flags.tolerance
	}
	if flags.order != "" {
		config.Order = flags.order
	}
	if flags.logFile != "" {
		config.Log.File = flags.logFile
	}
	if flags.logLevel != "" {
		config.Log.Level = flags.logLevel
	}
	return config, nil
}

func runE(ctx context.Context, flags *runFlags, out io.Writer, options ...opflow.Option) error {
	config, err := loadConfig(ctx, flags)
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}
	srv, err := opflow.New(config, options...)
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}
	defer srv.Close()
	summary, err := srv.Run(ctx)
	if summary != nil {
		if pErr := printSummary(out, summary); pErr != nil {
			return &exitError{code: exitFatal, err: pErr}
		}
	}
	if code := exitCode(summary, err); code != exitOK {
		if err == nil {
			err = fmt.Errorf("%d configuration(s) failed out: %v", len(summary.FailedOut), summary.Failed())
		}
		return &exitError{code: code, err: err}
	}
	return nil
}

func exitCode(summary *opflow.Summary, err error) int {
	switch {
	case err != nil:
		return exitFatal
	case summary != nil && summary.HasFailures():
		return exitFailedOut
	}
	return exitOK
}

func printSummary(out io.Writer, summary *opflow.Summary) error {
	encoder := yaml.NewEncoder(out)
	defer encoder.Close()
	return encoder.Encode(summary)
}
