package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/strategy-eval/internal/scorer"
)

func newEvaluateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "evaluate <gold-answer> <candidate-answer>",
		Short: "Score a single answer against a gold answer",
		Long: `Score one candidate answer with the normalized edit-distance metric.
A gold answer containing commas is treated as a list of entities, each matched
against the closest span of the candidate.`,
		Example: `  strategy-eval evaluate "Beijing, London" "The cities were London and Beijing."`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := scorer.Score(args[0], args[1])
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "score: %.4f\n", res.Value)
			if res.Enumerated {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enumerated: %d entities\n", res.Items)
			}
			if !res.Gradable {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "warning: gold answer is empty after normalization")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}
