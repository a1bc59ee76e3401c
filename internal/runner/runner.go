package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/strategy-eval/internal/llm"
	"github.com/giantswarm/strategy-eval/internal/retrieval"
	"github.com/giantswarm/strategy-eval/internal/scorer"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

// ProgressFunc is called to report progress during test execution.
type ProgressFunc func(strategy string, questionIndex, totalQuestions int)

// ClientForModelFunc returns an LLM client configured for the given model.
// It is called once per run, before any question is asked. This enables the
// deploy -> test -> teardown lifecycle for cluster-hosted models.
type ClientForModelFunc func(ctx context.Context, model testsuite.Model) (llm.Client, error)

// AfterModelFunc is called after the run completes (or fails).
// Use this to tear down resources like hosted model services.
type AfterModelFunc func(ctx context.Context, model testsuite.Model) error

// modelNamer is implemented by clients that know their default model.
type modelNamer interface {
	Model() string
}

// Recorder persists a finished run, e.g. into a database.
type Recorder interface {
	Record(ctx context.Context, run *testsuite.TestRun) error
}

// Runner puts every sampled question of a suite to the model under each
// strategy, scores the answers and writes the results.
type Runner struct {
	client         llm.Client         // default client (used when clientForModel is nil)
	clientForModel ClientForModelFunc // optional: per-model client factory
	afterModel     AfterModelFunc     // optional: teardown hook
	embedder       llm.Embedder       // optional: enables context retrieval
	recorder       Recorder           // optional
	strategies     []EvaluationStrategy
	outputDir      string
	progress       ProgressFunc
	concurrency    int
}

// NewRunner creates a new runner with a default LLM client.
func NewRunner(client llm.Client, strategies []EvaluationStrategy, outputDir string) *Runner {
	return &Runner{
		client:      client,
		strategies:  strategies,
		outputDir:   outputDir,
		concurrency: 1,
	}
}

// SetProgressFunc sets the progress callback.
func (r *Runner) SetProgressFunc(fn ProgressFunc) {
	r.progress = fn
}

// SetClientForModelFunc sets the per-model client factory.
func (r *Runner) SetClientForModelFunc(fn ClientForModelFunc) {
	r.clientForModel = fn
}

// SetAfterModelFunc sets the post-run callback.
func (r *Runner) SetAfterModelFunc(fn AfterModelFunc) {
	r.afterModel = fn
}

// SetEmbedder enables narrowing of question contexts to the suite's top_k
// most relevant sentences.
func (r *Runner) SetEmbedder(e llm.Embedder) {
	r.embedder = e
}

// SetRecorder sets where finished runs are persisted besides the output directory.
func (r *Runner) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// SetConcurrency sets how many questions are in flight at once. Values below 1 are ignored.
func (r *Runner) SetConcurrency(n int) {
	if n >= 1 {
		r.concurrency = n
	}
}

// Run executes the suite under every configured strategy and writes results.
// Strategies are processed sequentially; questions within a strategy may run
// concurrently.
func (r *Runner) Run(ctx context.Context, suite *testsuite.TestSuite, model testsuite.Model) (*testsuite.TestRun, error) {
	if len(r.strategies) == 0 {
		return nil, fmt.Errorf("no strategies specified for test run")
	}

	questions := testsuite.Sample(suite.Questions, suite.Sampling)
	if len(questions) == 0 {
		return nil, fmt.Errorf("test suite %q has no questions to run", suite.Name)
	}

	if model.Name == "" {
		model.Name = suite.Model
	}
	if model.Temperature == nil {
		model.Temperature = suite.Temperature
	}

	timestamp := time.Now()
	sanitizedName := strings.ReplaceAll(suite.Name, " ", "_")
	runID := fmt.Sprintf("%s_%s", sanitizedName, timestamp.Format("20060102-150405"))

	outputPath := filepath.Join(r.outputDir, runID)
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	client := r.client
	if r.clientForModel != nil {
		var err error
		client, err = r.clientForModel(ctx, model)
		if err != nil {
			slog.Error("failed to get client for model", "model", model.Name, "error", err)
			if r.afterModel != nil {
				_ = r.afterModel(ctx, model)
			}
			return nil, fmt.Errorf("failed to prepare model %s: %w", model.Name, err)
		}
	}
	// Without a name the client picks its configured model; record that one.
	if model.Name == "" {
		if n, ok := client.(modelNamer); ok {
			model.Name = n.Model()
		}
	}
	defer func() {
		if r.afterModel != nil {
			if err := r.afterModel(ctx, model); err != nil {
				slog.Error("after-model hook failed", "model", model.Name, "error", err)
			}
		}
	}()

	run := &testsuite.TestRun{
		ID:         runID,
		Suite:      suite.Name,
		Model:      model.Name,
		Timestamp:  timestamp,
		Strategies: make([]testsuite.StrategyRun, 0, len(r.strategies)),
	}

	contexts := r.narrowContexts(ctx, suite, questions)

	for _, strategy := range r.strategies {
		if err := ctx.Err(); err != nil {
			slog.Warn("test run cancelled before strategy", "strategy", strategy.Name())
			break
		}

		slog.Info("running strategy",
			"strategy", strategy.Name(),
			"model", model.Name,
			"questions", len(questions),
		)

		stratStart := time.Now()
		results := r.runStrategy(ctx, client, strategy, model, questions, contexts)

		sr, err := writeStrategyResults(outputPath, run, strategy, results)
		if err != nil {
			return nil, err
		}
		sr.Duration = time.Since(stratStart)
		run.Strategies = append(run.Strategies, sr)

		slog.Info("strategy complete",
			"strategy", strategy.Name(),
			"answered", len(results),
			"mean_score", sr.Summary.Overall.MeanScore,
			"duration", sr.Duration,
		)
	}

	run.Duration = time.Since(timestamp)

	if err := writeRunMetadata(outputPath, run); err != nil {
		return nil, fmt.Errorf("failed to write run metadata: %w", err)
	}

	if r.recorder != nil {
		if err := r.recorder.Record(ctx, run); err != nil {
			return run, fmt.Errorf("failed to record run: %w", err)
		}
	}

	return run, nil
}

// narrowContexts retrieves context once per question so that every strategy
// sees the same sentences. Failures fall back to no context.
func (r *Runner) narrowContexts(ctx context.Context, suite *testsuite.TestSuite, questions []testsuite.Question) [][]string {
	out := make([][]string, len(questions))
	if r.embedder == nil || suite.Retrieval.TopK <= 0 {
		return out
	}
	ret := retrieval.New(r.embedder, suite.Retrieval.TopK)
	for i, q := range questions {
		if q.Context == "" {
			continue
		}
		sentences, err := ret.Narrow(ctx, q.Text, q.Context)
		if err != nil {
			slog.Warn("context retrieval failed, continuing without context",
				"question_id", q.ID,
				"error", err,
			)
			continue
		}
		out[i] = sentences
	}
	return out
}

func (r *Runner) runStrategy(ctx context.Context, client llm.Client, strategy EvaluationStrategy, model testsuite.Model, questions []testsuite.Question, contexts [][]string) []*testsuite.Result {
	results := make([]*testsuite.Result, len(questions))

	var (
		mu   sync.Mutex
		done int
	)

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i, q := range questions {
		if ctx.Err() != nil {
			slog.Warn("test run cancelled", "strategy", strategy.Name(), "scheduled", i, "total", len(questions))
			break
		}
		g.Go(func() error {
			results[i] = r.answer(ctx, client, strategy, Request{
				Model:       model.Name,
				Temperature: model.Temperature,
				Question:    q,
				Context:     contexts[i],
			})
			if r.progress != nil {
				mu.Lock()
				done++
				r.progress(strategy.Name(), done, len(questions))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*testsuite.Result, 0, len(results))
	for _, res := range results {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}

// answer runs one question and scores it. Errors are recorded on the result
// rather than aborting the run.
func (r *Runner) answer(ctx context.Context, client llm.Client, strategy EvaluationStrategy, req Request) *testsuite.Result {
	result, err := strategy.Execute(ctx, client, req)
	if err != nil {
		slog.Error("question execution failed",
			"strategy", strategy.Name(),
			"question_id", req.Question.ID,
			"error", err,
		)
		return &testsuite.Result{
			Question: req.Question,
			Strategy: strategy.Name(),
			Context:  req.Context,
			Gradable: scorer.Gradable(req.Question.Answer),
			Error:    err.Error(),
		}
	}

	s := scorer.Score(req.Question.Answer, result.Answer)
	result.Score = s.Value
	result.Enumerated = s.Enumerated
	result.Gradable = s.Gradable
	result.WordCount = len(strings.Fields(result.Answer))
	return result
}

// resultsEnvelope is the JSON layout of a per-strategy results file.
type resultsEnvelope struct {
	RunID    string              `json:"run_id"`
	Suite    string              `json:"suite"`
	Strategy string              `json:"strategy"`
	Model    string              `json:"model"`
	Results  []*testsuite.Result `json:"results"`
}

func writeStrategyResults(outputPath string, run *testsuite.TestRun, strategy EvaluationStrategy, results []*testsuite.Result) (testsuite.StrategyRun, error) {
	name := sanitizeFilename(strategy.Name())

	data, err := json.MarshalIndent(resultsEnvelope{
		RunID:    run.ID,
		Suite:    run.Suite,
		Strategy: strategy.Name(),
		Model:    run.Model,
		Results:  results,
	}, "", "    ")
	if err != nil {
		return testsuite.StrategyRun{}, fmt.Errorf("failed to encode results for strategy %s: %w", strategy.Name(), err)
	}
	resultsFile := filepath.Join(outputPath, name+".json")
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return testsuite.StrategyRun{}, fmt.Errorf("failed to write results for strategy %s: %w", strategy.Name(), err)
	}

	transcriptFile := filepath.Join(outputPath, name+".txt")
	if err := os.WriteFile(transcriptFile, []byte(strategy.FormatResults(results)), 0o644); err != nil {
		return testsuite.StrategyRun{}, fmt.Errorf("failed to write transcript for strategy %s: %w", strategy.Name(), err)
	}

	return testsuite.StrategyRun{
		Strategy:       strategy.Name(),
		ResultsFile:    resultsFile,
		TranscriptFile: transcriptFile,
		Summary:        scorer.Summarize(ScoredEntries(results)),
		Results:        results,
	}, nil
}

// ScoredEntries converts results into the scorer's summary input.
func ScoredEntries(results []*testsuite.Result) []scorer.Scored {
	out := make([]scorer.Scored, 0, len(results))
	for _, res := range results {
		out = append(out, scorer.Scored{
			AnswerType: res.Question.AnswerType,
			Complexity: res.Question.Complexity,
			Score:      res.Score,
			Words:      res.WordCount,
			Gradable:   res.Gradable,
			Failed:     res.Error != "",
		})
	}
	return out
}

// sanitizeFilename replaces characters unsafe for filenames with underscores.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}

func writeRunMetadata(outputPath string, run *testsuite.TestRun) error {
	strategies := make([]map[string]interface{}, 0, len(run.Strategies))
	for _, s := range run.Strategies {
		strategies = append(strategies, map[string]interface{}{
			"strategy":        s.Strategy,
			"duration":        s.Duration.Seconds(),
			"results_file":    s.ResultsFile,
			"transcript_file": s.TranscriptFile,
			"summary":         s.Summary,
		})
	}

	metadata := map[string]interface{}{
		"id":            run.ID,
		"suite":         run.Suite,
		"model":         run.Model,
		"timestamp":     run.Timestamp,
		"full_duration": run.Duration.Seconds(),
		"strategies":    strategies,
	}

	data, err := json.MarshalIndent(metadata, "", "    ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(outputPath, "resultset.json"), data, 0o644)
}
