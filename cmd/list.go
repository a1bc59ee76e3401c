package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

func newListCmd() *cobra.Command {
	var suitesDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available test suites",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := testsuite.List(suitesDir)
			if err != nil {
				return fmt.Errorf("failed to list test suites: %w", err)
			}

			if len(names) == 0 {
				fmt.Println("No test suites found.")
				return nil
			}

			fmt.Printf("Available test suites:\n\n")
			for _, name := range names {
				suite, err := testsuite.Load(name, suitesDir)
				if err != nil {
					fmt.Printf("  - %s (error loading: %v)\n", name, err)
					continue
				}
				strategies := suite.Strategies
				if len(strategies) == 0 {
					strategies = testsuite.DefaultStrategies
				}
				fmt.Printf("  - %s (%s)\n", suite.Name, name)
				fmt.Printf("    Description: %s\n", suite.Description)
				fmt.Printf("    Version: %s\n", suite.Version)
				fmt.Printf("    Strategies: %s\n", strings.Join(strategies, ", "))
				fmt.Printf("    Questions: %d (%d sampled per run)\n\n",
					len(suite.Questions), len(testsuite.Sample(suite.Questions, suite.Sampling)))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&suitesDir, "suites-dir", "", "External test suites directory")

	return cmd
}
