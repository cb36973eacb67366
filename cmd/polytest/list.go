package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/polytest/pkg/manifest"
	"github.com/ormasoftchile/polytest/pkg/schema"
)

var listCmd = &cobra.Command{
	Use:   "list FILE_OR_GLOB...",
	Short: "List the scenarios and environments of a suite",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := manifest.LoadSuite(args...)
		if err != nil {
			return exitCode(2, err)
		}

		fmt.Printf("suite: %s\n", doc.Suite.Name)
		fmt.Printf("scenarios (%d):\n", len(doc.Suite.Scenarios))
		for _, scn := range doc.Suite.Scenarios {
			fmt.Printf("  %s (%d steps)\n", scn.Name, len(scn.Steps))
		}
		fmt.Printf("environments (%d):\n", len(doc.Suite.Environments))
		for _, env := range doc.Suite.Environments {
			isolation := env.Isolation
			if isolation == "" {
				isolation = schema.IsolationPerRun
			}
			fmt.Printf("  %s (%s, %d vars)\n", env.Name, isolation, len(env.Vars))
		}
		return nil
	},
}
