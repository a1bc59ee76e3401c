package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/strategy-eval/internal/server"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

func registerTestSuiteTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// list_test_suites
	listTool := mcp.NewTool("list_test_suites",
		mcp.WithDescription("List available benchmark suites with their strategies and answer type breakdown"),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListTestSuites(ctx, request, sc)
	})

	// run_test_suite
	runTool := mcp.NewTool("run_test_suite",
		mcp.WithDescription("Answer every sampled question of a suite under each prompting strategy and score the answers. Models served on the cluster are discovered automatically."),
		mcp.WithString("test_suite",
			mcp.Required(),
			mcp.Description("Name of the test suite to run (e.g. 'mintaka-sample')"),
		),
		mcp.WithString("strategies",
			mcp.Description("Comma-separated strategies to compare (default: from suite config, e.g. 'cot,pot')"),
		),
		mcp.WithString("model",
			mcp.Description("Model name to test (overrides suite config)"),
		),
		mcp.WithString("endpoint",
			mcp.Description("OpenAI-compatible endpoint URL (overrides auto-discovery)"),
		),
		mcp.WithNumber("temperature",
			mcp.Description("Temperature for generation (default: from suite config)"),
		),
		mcp.WithString("model_uri",
			mcp.Description("Storage URI to deploy the model from before the run; it is torn down afterwards"),
		),
		mcp.WithNumber("gpu_count",
			mcp.Description("Number of GPUs when deploying (default: 1)"),
		),
		mcp.WithNumber("concurrency",
			mcp.Description("Questions answered in parallel per strategy (default: server setting)"),
		),
	)
	s.AddTool(runTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRunTestSuite(ctx, request, sc)
	})

	// get_results
	getResultsTool := mcp.NewTool("get_results",
		mcp.WithDescription("Retrieve summaries and scores of past benchmark runs"),
		mcp.WithString("run_id",
			mcp.Description("Specific run ID to retrieve (optional, lists all if omitted)"),
		),
		mcp.WithString("strategy",
			mcp.Description("Only return answers of this strategy (stored runs only)"),
		),
	)
	s.AddTool(getResultsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetResults(ctx, request, sc)
	})

	return nil
}

type suiteInfo struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Version       string         `json:"version"`
	Strategies    []string       `json:"strategies"`
	QuestionCount int            `json:"question_count"`
	SampledCount  int            `json:"sampled_count"`
	AnswerTypes   map[string]int `json:"answer_types"`
}

func handleListTestSuites(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	names, err := testsuite.List(sc.SuitesDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list test suites: %v", err)), nil
	}

	suites := make([]suiteInfo, 0, len(names))
	for _, name := range names {
		suite, err := testsuite.Load(name, sc.SuitesDir)
		if err != nil {
			slog.Warn("skipping unloadable test suite", "suite", name, "error", err)
			continue
		}
		strategies := suite.Strategies
		if len(strategies) == 0 {
			strategies = testsuite.DefaultStrategies
		}
		suites = append(suites, suiteInfo{
			Name:          suite.Name,
			Description:   suite.Description,
			Version:       suite.Version,
			Strategies:    strategies,
			QuestionCount: len(suite.Questions),
			SampledCount:  len(testsuite.Sample(suite.Questions, suite.Sampling)),
			AnswerTypes:   testsuite.SurveyQuestions(suite.Questions, 0).AnswerTypes,
		})
	}

	data, err := json.MarshalIndent(suites, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal test suites: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
