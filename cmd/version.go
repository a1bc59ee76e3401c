package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/strategy-eval/internal/scorer"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of strategy-eval",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "strategy-eval version %s\n", rootCmd.Version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", buildCommit)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", buildDate)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  metric: %s\n", scorer.Metric)
		},
	}
}
