package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/strategy-eval/internal/runner"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

func newRunCmd() *cobra.Command {
	var (
		strategies    []string
		model         string
		endpoint      string
		apiKey        string
		temperature   float64
		outputDir     string
		suitesDir     string
		questionsFile string
		timeout       time.Duration
		concurrency   int
		retrievalTopK int
		deployURI     string
		gpuCount      int
		served        bool
		inCluster     bool
	)

	cmd := &cobra.Command{
		Use:   "run <test-suite>",
		Short: "Answer a test suite under each prompting strategy and score the answers",
		Long: `Sample questions from a test suite, answer each one under every strategy
(chain of thought and pyramid of thought by default), and score the answers
against the gold answers.

Results are written to <output-dir>/<run-id>/ as one JSON results file and one
transcript per strategy plus a resultset.json manifest. When DB_DRIVER is set
the run is also stored in the results database.

With --served the model already served on the cluster under --model is used.
With --deploy-uri the model is served on the cluster for the duration of the run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			suite, err := testsuite.Load(args[0], suitesDir)
			if err != nil {
				return fmt.Errorf("failed to load test suite: %w", err)
			}
			if questionsFile != "" {
				suite.Questions, err = testsuite.LoadQuestionsFile(questionsFile)
				if err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("retrieval-top-k") {
				suite.Retrieval.TopK = retrievalTopK
			}

			names := strategies
			if len(names) == 0 {
				names = suite.Strategies
			}
			if len(names) == 0 {
				names = testsuite.DefaultStrategies
			}
			evalStrategies, err := runner.ParseStrategies(names...)
			if err != nil {
				return err
			}

			m := testsuite.Model{Name: model, ModelURI: deployURI, GPUCount: gpuCount}
			if cmd.Flags().Changed("temperature") {
				m.Temperature = &temperature
			}

			client := newLLMClient(cfg, endpoint, apiKey)
			r := runner.NewRunner(client, evalStrategies, outputDir)
			r.SetConcurrency(concurrency)
			if suite.Retrieval.TopK > 0 {
				r.SetEmbedder(client)
			}

			if deployURI != "" || served {
				if model == "" {
					return fmt.Errorf("--model is required with --deploy-uri or --served")
				}
				host := newModelHost(ctx, cmd, inCluster)
				if host == nil {
					return fmt.Errorf("a reachable cluster with KServe installed is required for cluster-served models")
				}
				r.SetClientForModelFunc(host.ClientForModel)
				r.SetAfterModelFunc(host.Release)
			}

			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to open results store: %w", err)
			}
			if st != nil {
				defer st.Close()
				r.SetRecorder(st)
			}

			r.SetProgressFunc(func(strategy string, idx, total int) {
				fmt.Fprintf(os.Stderr, "\r  [%s] Answered %d/%d questions...", strategy, idx, total)
			})

			fmt.Printf("Test Suite: %s\n", suite.Name)
			fmt.Printf("Description: %s\n", suite.Description)
			fmt.Printf("Strategies: %v\n", names)
			if suite.Retrieval.TopK > 0 {
				fmt.Printf("Retrieval: top %d context sentences\n", suite.Retrieval.TopK)
			}
			fmt.Println()

			run, err := r.Run(ctx, suite, m)
			if run == nil {
				return err
			}
			if err != nil {
				slog.Warn("run finished but was not recorded", "error", err)
			}

			fmt.Fprintf(os.Stderr, "\n")
			fmt.Printf("\nRun ID: %s\n", run.ID)
			fmt.Printf("Model: %s\n", run.Model)
			fmt.Printf("Duration: %s\n\n", run.Duration.Round(time.Millisecond))
			printRunSummary(cmd.OutOrStdout(), run)

			slog.Info("test run complete", "run_id", run.ID)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&strategies, "strategies", nil, "Strategies to compare, e.g. cot,pot (default: from suite config)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (overrides suite config and LLM_MODEL)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "LLM API endpoint URL (overrides OPENAI_BASE_URL)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or set OPENAI_API_KEY)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.0, "Temperature for generation (default: from suite config)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "results", "Directory for test results")
	cmd.Flags().StringVar(&suitesDir, "suites-dir", "", "External test suites directory")
	cmd.Flags().StringVar(&questionsFile, "questions-file", "", "Mintaka JSON or CSV questions file replacing the suite's questions")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall timeout for the test run (e.g. 30m, 1h). 0 means no timeout")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Questions answered in parallel per strategy")
	cmd.Flags().IntVar(&retrievalTopK, "retrieval-top-k", 0, "Context sentences kept per question, 0 disables retrieval (default: from suite config)")
	cmd.Flags().StringVar(&deployURI, "deploy-uri", "", "Serve the model from this storage URI on the cluster during the run")
	cmd.Flags().IntVar(&gpuCount, "gpu-count", 1, "GPUs for a model served with --deploy-uri")
	cmd.Flags().BoolVar(&served, "served", false, "Use the model already served on the cluster under --model")
	cmd.Flags().BoolVar(&inCluster, "in-cluster", false, "Use in-cluster Kubernetes authentication")

	return cmd
}

// printRunSummary writes one row per strategy and answer type.
func printRunSummary(w io.Writer, run *testsuite.TestRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STRATEGY\tANSWER TYPE\tCOUNT\tMEAN SCORE\tMEAN WORDS\tFAILED")
	for _, sr := range run.Strategies {
		o := sr.Summary.Overall
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%.4f\t%.2f\t%d\n", sr.Strategy, "all", o.Count, o.MeanScore, o.MeanWords, o.Failed)

		types := make([]string, 0, len(sr.Summary.ByAnswerType))
		for t := range sr.Summary.ByAnswerType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			s := sr.Summary.ByAnswerType[t]
			_, _ = fmt.Fprintf(tw, "\t%s\t%d\t%.4f\t%.2f\t%d\n", t, s.Count, s.MeanScore, s.MeanWords, s.Failed)
		}
	}
	_ = tw.Flush()

	for _, sr := range run.Strategies {
		_, _ = fmt.Fprintf(w, "\n%s results: %s\n", sr.Strategy, sr.ResultsFile)
	}
}
