package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/strategy-eval/internal/server"
	"github.com/giantswarm/strategy-eval/internal/store"
)

func handleGetResults(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	runID, _ := args["run_id"].(string)
	strategy, _ := args["strategy"].(string)

	if sc.Store != nil {
		if runID == "" {
			runs, err := sc.Store.ListRuns(ctx)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
			}
			if runs == nil {
				runs = []store.Run{}
			}
			return marshalResult(runs)
		}

		res, err := getStoredRun(ctx, sc.Store, runID, strategy)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		// Runs made before the store was configured only exist on disk.
	}

	if runID != "" {
		return getSpecificRun(sc.OutputDir, runID)
	}
	return listRuns(sc.OutputDir)
}

func getStoredRun(ctx context.Context, s server.RunStore, runID, strategy string) (*mcp.CallToolResult, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	answers, err := s.Answers(ctx, runID, strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers of run %q: %w", runID, err)
	}
	return marshalResult(map[string]interface{}{
		"run":     run,
		"answers": answers,
	})
}

func listRuns(outputDir string) (*mcp.CallToolResult, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return mcp.NewToolResultText("[]"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to read results directory: %v", err)), nil
	}

	var runs []map[string]interface{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		runPath := joinRunFile(outputDir, e.Name())
		metadata, err := readRunMetadata(runPath)
		if err != nil {
			continue
		}
		metadata["score_files"] = scoreFiles(runPath)
		runs = append(runs, metadata)
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("[]"), nil
	}

	return marshalResult(runs)
}

func getSpecificRun(outputDir, runID string) (*mcp.CallToolResult, error) {
	runPath, err := resolveRunPath(outputDir, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid run_id: %v", err)), nil
	}

	metadata, err := readRunMetadata(runPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run %q not found: %v", runID, err)), nil
	}

	scores := make(map[string]interface{})
	for _, name := range scoreFiles(runPath) {
		data, err := os.ReadFile(joinRunFile(runPath, name))
		if err != nil {
			continue
		}
		var scoreObj interface{}
		if json.Unmarshal(data, &scoreObj) == nil {
			scores[name] = scoreObj
		}
	}
	if len(scores) > 0 {
		metadata["scores"] = scores
	}

	return marshalResult(metadata)
}

func readRunMetadata(runPath string) (map[string]interface{}, error) {
	data, err := os.ReadFile(filepath.Join(runPath, runMetadataFile))
	if err != nil {
		return nil, err
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse run metadata: %w", err)
	}
	return metadata, nil
}

func scoreFiles(runPath string) []string {
	files, _ := os.ReadDir(runPath)
	out := []string{}
	for _, f := range files {
		if strings.HasSuffix(f.Name(), scoresSuffix) {
			out = append(out, f.Name())
		}
	}
	return out
}
