package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

func newSurveyCmd() *cobra.Command {
	var (
		suitesDir     string
		questionsFile string
		top           int
		sampled       bool
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "survey [test-suite]",
		Short: "Describe the answer types, complexities and longest gold answers of a question set",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var questions []testsuite.Question
			switch {
			case questionsFile != "":
				q, err := testsuite.LoadQuestionsFile(questionsFile)
				if err != nil {
					return err
				}
				questions = q
			case len(args) == 1:
				suite, err := testsuite.Load(args[0], suitesDir)
				if err != nil {
					return fmt.Errorf("failed to load test suite: %w", err)
				}
				questions = suite.Questions
				if sampled {
					questions = testsuite.Sample(questions, suite.Sampling)
				}
			default:
				return fmt.Errorf("either a test suite or --questions-file is required")
			}

			survey := testsuite.SurveyQuestions(questions, top)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(survey)
			}
			printSurvey(cmd.OutOrStdout(), survey)
			return nil
		},
	}

	cmd.Flags().StringVar(&suitesDir, "suites-dir", "", "External test suites directory")
	cmd.Flags().StringVar(&questionsFile, "questions-file", "", "Survey a Mintaka JSON or CSV file instead of a suite")
	cmd.Flags().IntVar(&top, "top", 5, "Number of longest gold answers to show")
	cmd.Flags().BoolVar(&sampled, "sampled", false, "Survey the sampled subset a run would use")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the survey as JSON")

	return cmd
}

func printSurvey(w io.Writer, s testsuite.Survey) {
	_, _ = fmt.Fprintf(w, "Questions: %d\n\n", s.Total)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	writeCounts(tw, "ANSWER TYPE", s.AnswerTypes)
	_, _ = fmt.Fprintln(tw)
	writeCounts(tw, "COMPLEXITY", s.Complexities)
	_ = tw.Flush()

	if len(s.Longest) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\nLongest gold answers:\n")
	for _, a := range s.Longest {
		_, _ = fmt.Fprintf(w, "  %3d words  [%s] %s\n             %s\n", a.Words, a.AnswerType, a.Answer, a.Question)
	}
}

func writeCounts(w io.Writer, header string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintf(w, "%s\tCOUNT\n", header)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", k, counts[k])
	}
}
