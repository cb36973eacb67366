package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/polytest/pkg/manifest"
	"github.com/ormasoftchile/polytest/pkg/report"
	"github.com/ormasoftchile/polytest/pkg/result"
	"github.com/ormasoftchile/polytest/pkg/runtime"
)

var (
	flagConcurrency  int
	flagEnvironments []string
	flagScenarios    []string
	flagTrace        string
	flagXUnit        string
)

var runCmd = &cobra.Command{
	Use:   "run FILE_OR_GLOB...",
	Short: "Run every scenario against every environment",
	Long: `Run loads the suite and any environment manifests from the given
files or doublestar globs, then executes the scenario/environment cross
product with bounded concurrency.

The process exits 0 only when every run passed or was skipped; run
failures exit 1, and load errors exit 2.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := manifest.LoadSuite(args...)
		if err != nil {
			return exitCode(2, err)
		}

		opts := runtime.Options{
			Concurrency:  pickInt(flagConcurrency, cfg.Run.Concurrency, cmd.Flags().Changed("concurrency")),
			Environments: pickSlice(flagEnvironments, cfg.Run.Environments),
			Scenarios:    pickSlice(flagScenarios, cfg.Run.Scenarios),
		}

		tracePath := pickString(flagTrace, cfg.Run.Trace, cmd.Flags().Changed("trace"))
		if tracePath != "" {
			tw, err := result.NewTraceWriter(tracePath)
			if err != nil {
				return exitCode(2, err)
			}
			defer tw.Close()
			opts.Trace = tw
		}

		sr, err := runtime.RunSuite(cmd.Context(), doc, opts)
		if err != nil {
			return exitCode(2, err)
		}

		report.Render(os.Stdout, sr, flagVerbose)

		if xunitPath := pickString(flagXUnit, cfg.Run.XUnit, cmd.Flags().Changed("xunit")); xunitPath != "" {
			f, err := os.Create(xunitPath)
			if err != nil {
				return exitCode(2, fmt.Errorf("create xunit file: %w", err))
			}
			defer f.Close()
			if err := result.WriteXUnit(f, sr); err != nil {
				return exitCode(2, err)
			}
		}

		if !sr.Summary.OK() {
			return exitCode(1, fmt.Errorf("%d of %d runs did not pass",
				sr.Summary.Total-sr.Summary.Passed-sr.Summary.Skipped, sr.Summary.Total))
		}
		return nil
	},
}

// codedError carries a process exit code alongside the cause.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func exitCode(code int, err error) error {
	return &codedError{code: code, err: err}
}

// Flag/config precedence helpers: an explicitly set flag wins, then the
// config file, then the flag default.
func pickInt(flag, fromConfig int, flagSet bool) int {
	if flagSet || fromConfig == 0 {
		return flag
	}
	return fromConfig
}

func pickString(flag, fromConfig string, flagSet bool) string {
	if flagSet || fromConfig == "" {
		return flag
	}
	return fromConfig
}

func pickSlice(flag, fromConfig []string) []string {
	if len(flag) > 0 {
		return flag
	}
	return fromConfig
}

func init() {
	runCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "maximum concurrent runs (default 4)")
	runCmd.Flags().StringSliceVar(&flagEnvironments, "env", nil, "run only against the named environments")
	runCmd.Flags().StringSliceVar(&flagScenarios, "scenario", nil, "run only the named scenarios")
	runCmd.Flags().StringVar(&flagTrace, "trace", "", "append JSONL step events to this file")
	runCmd.Flags().StringVar(&flagXUnit, "xunit", "", "write xUnit XML results to this file")
}
