package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/polytest/pkg/manifest"
)

var (
	flagGenName     string
	flagGenBasepath string
	flagGenFlat     bool
	flagGenVars     []string
	flagGenOutput   string
)

var genManifestCmd = &cobra.Command{
	Use:   "gen-manifest GLOB...",
	Short: "Generate an environment manifest from sample files on disk",
	Long: `gen-manifest scans the globbed sample files for region tags
([START tag] / [END tag] markers) and emits a manifest document mapping
each tag to its file path. YAML files are never listed as samples.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vars := make(map[string]string, len(flagGenVars))
		for _, kv := range flagGenVars {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return fmt.Errorf("--var %q: expected key=value", kv)
			}
			vars[key] = value
		}

		text, err := manifest.Generate(manifest.GenOptions{
			Name:     flagGenName,
			Basepath: flagGenBasepath,
			Vars:     vars,
			Globs:    args,
			Flat:     flagGenFlat,
		})
		if err != nil {
			return err
		}

		if flagGenOutput == "" {
			fmt.Print(text)
			return nil
		}
		return os.WriteFile(flagGenOutput, []byte(text), 0o644)
	},
}

func init() {
	genManifestCmd.Flags().StringVar(&flagGenName, "name", "", "environment name (required)")
	genManifestCmd.Flags().StringVar(&flagGenBasepath, "basepath", "", "prefix joined to each sample path")
	genManifestCmd.Flags().BoolVar(&flagGenFlat, "flat", false, "inline tags in the entry instead of a base anchor")
	genManifestCmd.Flags().StringArrayVar(&flagGenVars, "var", nil, "environment variable as key=value (repeatable)")
	genManifestCmd.Flags().StringVarP(&flagGenOutput, "output", "o", "", "write to this file instead of stdout")
	genManifestCmd.MarkFlagRequired("name")
}
