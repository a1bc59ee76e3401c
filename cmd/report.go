package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/strategy-eval/internal/store"
)

func newReportCmd() *cobra.Command {
	var (
		strategy    string
		showAnswers bool
		deleteRun   bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show runs stored in the results database",
		Long: `Without arguments, list stored runs newest first. With a run ID, show its
per-strategy summary and optionally every graded answer.

Requires DB_DRIVER (sqlite or postgres) and optionally DB_DSN.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to open results store: %w", err)
			}
			if st == nil {
				return fmt.Errorf("no results store configured, set DB_DRIVER")
			}
			defer st.Close()

			out := cmd.OutOrStdout()

			if len(args) == 0 {
				runs, err := st.ListRuns(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeIndentedJSON(out, runs)
				}
				printRuns(out, runs)
				return nil
			}

			runID := args[0]
			if deleteRun {
				if err := st.DeleteRun(ctx, runID); err != nil {
					return fmt.Errorf("failed to delete run %s: %w", runID, err)
				}
				_, _ = fmt.Fprintf(out, "Deleted run %s\n", runID)
				return nil
			}

			run, err := st.GetRun(ctx, runID)
			if err != nil {
				return fmt.Errorf("failed to load run %s: %w", runID, err)
			}
			var answers []store.Answer
			if showAnswers || asJSON {
				answers, err = st.Answers(ctx, runID, strategy)
				if err != nil {
					return err
				}
			}
			if asJSON {
				return writeIndentedJSON(out, map[string]interface{}{"run": run, "answers": answers})
			}
			printRun(out, run, strategy)
			if showAnswers {
				printAnswers(out, answers)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Only show this strategy")
	cmd.Flags().BoolVar(&showAnswers, "answers", false, "Show every graded answer")
	cmd.Flags().BoolVar(&deleteRun, "delete", false, "Delete the run instead of showing it")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No stored runs.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN ID\tSUITE\tMODEL\tWHEN\tSTRATEGY MEANS")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Suite, r.Model, r.Timestamp.Format(time.DateTime), strategyMeans(r))
	}
	_ = tw.Flush()
}

func strategyMeans(r store.Run) string {
	var parts []string
	for _, n := range sortedStrategies(r) {
		parts = append(parts, fmt.Sprintf("%s=%.4f", n, r.Strategies[n].Overall.MeanScore))
	}
	return strings.Join(parts, " ")
}

func sortedStrategies(r store.Run) []string {
	names := make([]string, 0, len(r.Strategies))
	for n := range r.Strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func printRun(w io.Writer, r store.Run, only string) {
	_, _ = fmt.Fprintf(w, "Run %s\n  Suite: %s\n  Model: %s\n  When: %s\n  Duration: %s\n\n",
		r.ID, r.Suite, r.Model, r.Timestamp.Format(time.DateTime), r.Duration)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STRATEGY\tGROUP\tCOUNT\tMEAN SCORE\tVARIANCE\tMEAN WORDS")
	for _, n := range sortedStrategies(r) {
		if only != "" && n != only {
			continue
		}
		sum := r.Strategies[n]
		o := sum.Overall
		_, _ = fmt.Fprintf(tw, "%s\tall\t%d\t%.4f\t%.4f\t%.2f\n", n, o.Count, o.MeanScore, o.Variance, o.MeanWords)

		groups := make([]string, 0, len(sum.ByComplexity))
		for g := range sum.ByComplexity {
			groups = append(groups, g)
		}
		sort.Strings(groups)
		for _, g := range groups {
			s := sum.ByComplexity[g]
			_, _ = fmt.Fprintf(tw, "\t%s\t%d\t%.4f\t%.4f\t%.2f\n", g, s.Count, s.MeanScore, s.Variance, s.MeanWords)
		}
	}
	_ = tw.Flush()
}

func printAnswers(w io.Writer, answers []store.Answer) {
	_, _ = fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STRATEGY\tQUESTION\tTYPE\tSCORE\tGOLD\tANSWER")
	for _, a := range answers {
		score := fmt.Sprintf("%.4f", a.Score)
		switch {
		case a.Error != "":
			score = "error"
		case !a.Gradable:
			score = "n/a"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", a.Strategy, a.QuestionID, a.AnswerType, score, a.Gold, truncate(a.Answer, 60))
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
