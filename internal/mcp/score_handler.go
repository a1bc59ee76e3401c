package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/strategy-eval/internal/scorer"
	"github.com/giantswarm/strategy-eval/internal/server"
)

const (
	runMetadataFile = "resultset.json"
	scoresSuffix    = "_scores.json"
)

func registerScoringTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// evaluate_answer
	evaluateTool := mcp.NewTool("evaluate_answer",
		mcp.WithDescription("Score one candidate answer against a gold answer with the normalized edit-distance metric. Commas in the gold answer separate entities."),
		mcp.WithString("gold",
			mcp.Required(),
			mcp.Description("Gold answer mention (e.g. 'Beijing, London')"),
		),
		mcp.WithString("answer",
			mcp.Required(),
			mcp.Description("Candidate answer text"),
		),
	)
	s.AddTool(evaluateTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleEvaluateAnswer(ctx, request, sc)
	})

	// score_results
	scoreTool := mcp.NewTool("score_results",
		mcp.WithDescription("Re-score the results of a completed run and write *_scores.json files next to them"),
		mcp.WithString("run_id",
			mcp.Description("Run whose strategy results files are all scored"),
		),
		mcp.WithString("results_file",
			mcp.Description("Single results file, relative to the output directory"),
		),
	)
	s.AddTool(scoreTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleScoreResults(ctx, request, sc)
	})

	return nil
}

func handleEvaluateAnswer(_ context.Context, request mcp.CallToolRequest, _ *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	gold, ok := args["gold"].(string)
	if !ok {
		return mcp.NewToolResultError("gold is required"), nil
	}
	answer, ok := args["answer"].(string)
	if !ok {
		return mcp.NewToolResultError("answer is required"), nil
	}

	data, err := json.MarshalIndent(scorer.Score(gold, answer), "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal score: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

type fileScore struct {
	ResultsFile string         `json:"results_file"`
	ScoresFile  string         `json:"scores_file"`
	Strategy    string         `json:"strategy"`
	Summary     scorer.Summary `json:"summary"`
}

func handleScoreResults(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	resultsFile, _ := args["results_file"].(string)
	runID, _ := args["run_id"].(string)

	if resultsFile == "" && runID == "" {
		return mcp.NewToolResultError("either 'run_id' or 'results_file' is required"), nil
	}

	if runID != "" {
		return scoreByRunID(sc.OutputDir, runID)
	}

	path, err := resolveResultFilePath(sc.OutputDir, resultsFile)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid results_file: %v", err)), nil
	}
	fs, err := scoreFile(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(fs)
}

func scoreFile(path string) (fileScore, error) {
	output, err := scorer.ScoreFile(path)
	if err != nil {
		return fileScore{}, fmt.Errorf("scoring failed for %s: %w", filepath.Base(path), err)
	}
	scoresFile, err := scorer.WriteScoreFile(output, path)
	if err != nil {
		return fileScore{}, fmt.Errorf("failed to write scores for %s: %w", filepath.Base(path), err)
	}
	return fileScore{
		ResultsFile: path,
		ScoresFile:  scoresFile,
		Strategy:    output.Metadata.Strategy,
		Summary:     output.Summary,
	}, nil
}

// scoreByRunID scores every strategy results file of a run.
func scoreByRunID(outputDir, runID string) (*mcp.CallToolResult, error) {
	runPath, err := resolveRunPath(outputDir, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid run_id: %v", err)), nil
	}

	files, err := strategyResultFiles(runPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run %q not found: %v", runID, err)), nil
	}
	if len(files) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no result files found in run %q", runID)), nil
	}

	scored := make([]fileScore, 0, len(files))
	for _, f := range files {
		fs, err := scoreFile(f)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		scored = append(scored, fs)
	}

	return marshalResult(map[string]interface{}{
		"run_id": runID,
		"scored": scored,
	})
}

// strategyResultFiles lists the per-strategy JSON results of a run,
// skipping run metadata and earlier score files.
func strategyResultFiles(runPath string) ([]string, error) {
	entries, err := os.ReadDir(runPath)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		if name == runMetadataFile || strings.HasSuffix(name, scoresSuffix) {
			continue
		}
		files = append(files, joinRunFile(runPath, name))
	}
	slices.Sort(files)
	return files, nil
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
