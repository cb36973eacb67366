// Command polytest runs language-sample test suites: abstract scenarios
// executed against every configured environment binding.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/polytest/pkg/logging"
	"github.com/ormasoftchile/polytest/pkg/schema"
)

// Version is set at build time via ldflags.
var version = "dev"

var (
	flagConfig  string
	flagVerbose bool
	flagQuiet   bool
	flagLogJSON bool

	cfg = &Config{}
)

var rootCmd = &cobra.Command{
	Use:     "polytest",
	Short:   "Run cross-language sample test suites",
	Version: version,
	Long: `polytest executes test scenarios against multiple language environments.

A suite defines abstract scenarios once; each environment supplies the
concrete commands via placeholder variables, so the same narrative
verifies every language implementation of a sample.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := flagConfig
		explicit := cmd.Flags().Changed("config")
		if path == "" {
			path = defaultConfigFile
		}
		loaded, err := loadConfig(path, explicit)
		if err != nil {
			return err
		}
		cfg = loaded

		verbose := cfg.Log.Verbose || flagVerbose
		quiet := cfg.Log.Quiet || flagQuiet
		logging.Setup(verbose, quiet, cfg.Log.JSON || flagLogJSON)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Validate suite files without running them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := false
		for _, path := range args {
			doc, errs := schema.ValidateFile(path)
			if schema.HasErrors(errs) {
				failed = true
				fmt.Fprintf(os.Stderr, "%s:\n", path)
				for _, e := range errs {
					fmt.Fprintf(os.Stderr, "  %s\n", e.Error())
				}
				continue
			}
			fmt.Printf("✓ %s: suite %q (%d scenarios, %d environments)\n",
				path, doc.Suite.Name, len(doc.Suite.Scenarios), len(doc.Suite.Environments))
		}
		if failed {
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export the suite JSON Schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coded *codedError
		if errors.As(err, &coded) {
			os.Exit(coded.code)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default polytest.toml if present)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging and detailed output")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "errors only")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "NDJSON log output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(genManifestCmd)
}
