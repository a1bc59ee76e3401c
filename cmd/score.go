package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/strategy-eval/internal/scorer"
)

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score <results-file>...",
		Short: "Re-score strategy results files",
		Long: `Recompute the score of every answer in one or more strategy results files
(<run-id>/<strategy>.json) and write <strategy>_scores.json next to each.

Scoring is deterministic: the same answers always produce the same scores.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, resultsFile := range args {
				if _, err := os.Stat(resultsFile); os.IsNotExist(err) {
					return fmt.Errorf("results file not found: %s", resultsFile)
				}

				output, err := scorer.ScoreFile(resultsFile)
				if err != nil {
					return err
				}

				scoresFile, err := scorer.WriteScoreFile(output, resultsFile)
				if err != nil {
					return err
				}

				o := output.Summary.Overall
				fmt.Printf("%s (%s, %s)\n", resultsFile, output.Metadata.Strategy, output.Metadata.Model)
				fmt.Printf("  Mean Score: %.4f over %d answers (min %.4f, max %.4f)\n", o.MeanScore, o.Count, o.MinScore, o.MaxScore)
				if o.Ungradable > 0 || o.Failed > 0 {
					fmt.Printf("  Ungradable: %d  Failed: %d\n", o.Ungradable, o.Failed)
				}
				fmt.Printf("  Scores written to: %s\n", scoresFile)
			}
			return nil
		},
	}

	return cmd
}
