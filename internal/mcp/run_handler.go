package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/strategy-eval/internal/llm"
	"github.com/giantswarm/strategy-eval/internal/runner"
	"github.com/giantswarm/strategy-eval/internal/scorer"
	"github.com/giantswarm/strategy-eval/internal/server"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

type strategySummary struct {
	Strategy    string         `json:"strategy"`
	ResultsFile string         `json:"results_file"`
	Duration    string         `json:"duration"`
	Summary     scorer.Summary `json:"summary"`
}

type runSummary struct {
	RunID      string            `json:"run_id"`
	Suite      string            `json:"suite"`
	Model      string            `json:"model"`
	Duration   string            `json:"duration"`
	Strategies []strategySummary `json:"strategies"`
	Warning    string            `json:"warning,omitempty"`
}

func handleRunTestSuite(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	suiteName, ok := args["test_suite"].(string)
	if !ok || suiteName == "" {
		return mcp.NewToolResultError("test_suite is required"), nil
	}

	suite, err := testsuite.Load(suiteName, sc.SuitesDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load test suite: %v", err)), nil
	}

	names := suite.Strategies
	if s, ok := args["strategies"].(string); ok && s != "" {
		names = []string{s}
	}
	if len(names) == 0 {
		names = testsuite.DefaultStrategies
	}
	strategies, err := runner.ParseStrategies(names...)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported strategy: %v", err)), nil
	}

	var model testsuite.Model
	model.Name, _ = args["model"].(string)
	if t, ok := args["temperature"].(float64); ok {
		model.Temperature = llm.Float64Ptr(t)
	}
	model.ModelURI, _ = args["model_uri"].(string)
	if g, ok := args["gpu_count"].(float64); ok && g > 0 {
		model.GPUCount = int(g)
	}
	if model.ModelURI != "" && model.Name == "" {
		return mcp.NewToolResultError("model is required when model_uri is set"), nil
	}

	client := sc.LLMClient
	endpoint, _ := args["endpoint"].(string)
	deploy := model.ModelURI != ""

	switch {
	case endpoint != "":
		// Explicit endpoint overrides everything.
		client = llm.NewOpenAIClient(llm.WithBaseURL(endpoint))
	case deploy && sc.ModelHost == nil:
		return mcp.NewToolResultError("model host is not configured, cannot deploy model_uri"), nil
	case !deploy && sc.ModelHost != nil && model.Name != "":
		ep, err := sc.ModelHost.Get(ctx, model.Name)
		if err == nil && ep.Ready {
			slog.Info("auto-discovered served model endpoint", "model", model.Name, "endpoint", ep.URL)
			client = llm.NewOpenAIClient(llm.WithBaseURL(ep.URL), llm.WithAPIKey("not-needed"))
		}
	}
	if client == nil && !deploy {
		return mcp.NewToolResultError("LLM client is not configured"), nil
	}

	r := runner.NewRunner(client, strategies, sc.OutputDir)
	if deploy && endpoint == "" {
		r.SetClientForModelFunc(sc.ModelHost.ClientForModel)
		r.SetAfterModelFunc(sc.ModelHost.Release)
	}
	if sc.Embedder != nil {
		r.SetEmbedder(sc.Embedder)
	}
	if sc.Store != nil {
		r.SetRecorder(sc.Store)
	}
	concurrency := sc.Concurrency
	if c, ok := args["concurrency"].(float64); ok && c >= 1 {
		concurrency = int(c)
	}
	r.SetConcurrency(concurrency)

	run, err := r.Run(ctx, suite, model)
	if run == nil {
		return mcp.NewToolResultError(fmt.Sprintf("test run failed: %v", err)), nil
	}

	summary := runSummary{
		RunID:      run.ID,
		Suite:      run.Suite,
		Model:      run.Model,
		Duration:   run.Duration.String(),
		Strategies: make([]strategySummary, 0, len(run.Strategies)),
	}
	if err != nil {
		// The run finished but could not be recorded.
		summary.Warning = err.Error()
	}
	for _, s := range run.Strategies {
		summary.Strategies = append(summary.Strategies, strategySummary{
			Strategy:    s.Strategy,
			ResultsFile: s.ResultsFile,
			Duration:    s.Duration.String(),
			Summary:     s.Summary,
		})
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
