package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/giantswarm/strategy-eval/internal/modelhost"
	"github.com/giantswarm/strategy-eval/internal/server"
	"github.com/giantswarm/strategy-eval/internal/store"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
	"github.com/giantswarm/strategy-eval/internal/testutil"
)

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error), sc *server.ServerContext, args map[string]interface{}) (string, bool) {
	t.Helper()
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args

	result, err := handler(context.Background(), request, sc)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	return result.Content[0].(mcp.TextContent).Text, result.IsError
}

// fakeStore records runs in memory.
type fakeStore struct {
	recorded []*testsuite.TestRun
	runs     map[string]store.Run
	answers  map[string][]store.Answer
}

func (f *fakeStore) Record(_ context.Context, run *testsuite.TestRun) error {
	f.recorded = append(f.recorded, run)
	return nil
}

func (f *fakeStore) ListRuns(context.Context) ([]store.Run, error) {
	out := make([]store.Run, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) GetRun(_ context.Context, id string) (store.Run, error) {
	r, ok := f.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) Answers(_ context.Context, runID, strategy string) ([]store.Answer, error) {
	var out []store.Answer
	for _, a := range f.answers[runID] {
		if strategy == "" || a.Strategy == strategy {
			out = append(out, a)
		}
	}
	return out, nil
}

func newFakeModelHost(objects ...runtime.Object) *modelhost.Host {
	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			{Group: "serving.kserve.io", Version: "v1beta1", Resource: "inferenceservices"}: "InferenceServiceList",
		},
		objects...,
	)
	return modelhost.NewWithClient(client, "evals")
}

func TestHandleListTestSuites(t *testing.T) {
	text, isErr := callTool(t, handleListTestSuites, &server.ServerContext{}, nil)
	require.False(t, isErr, text)
	assert.Contains(t, text, "Mintaka Sample")

	var suites []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &suites))
	require.GreaterOrEqual(t, len(suites), 1)

	s := suites[0]
	for _, key := range []string{"name", "description", "version", "strategies", "question_count", "sampled_count", "answer_types"} {
		assert.Contains(t, s, key)
	}
	assert.Equal(t, []interface{}{"cot", "pot"}, s["strategies"])
	assert.EqualValues(t, 12, s["question_count"])
	assert.EqualValues(t, 11, s["sampled_count"])
}

func TestHandleRunTestSuiteArgumentErrors(t *testing.T) {
	tests := []struct {
		name    string
		sc      *server.ServerContext
		args    map[string]interface{}
		wantErr string
	}{
		{
			name:    "missing suite",
			sc:      &server.ServerContext{},
			args:    map[string]interface{}{},
			wantErr: "test_suite is required",
		},
		{
			name:    "unknown suite",
			sc:      &server.ServerContext{},
			args:    map[string]interface{}{"test_suite": "nonexistent-suite"},
			wantErr: "failed to load test suite",
		},
		{
			name:    "unknown strategy",
			sc:      &server.ServerContext{LLMClient: &testutil.MockLLMClient{}},
			args:    map[string]interface{}{"test_suite": "mintaka-sample", "strategies": "cot,tot"},
			wantErr: "unsupported strategy",
		},
		{
			name:    "deploy without host",
			sc:      &server.ServerContext{LLMClient: &testutil.MockLLMClient{}},
			args:    map[string]interface{}{"test_suite": "mintaka-sample", "model": "m", "model_uri": "hf://org/m"},
			wantErr: "model host is not configured",
		},
		{
			name:    "deploy without model name",
			sc:      &server.ServerContext{},
			args:    map[string]interface{}{"test_suite": "mintaka-sample", "model_uri": "hf://org/m"},
			wantErr: "model is required",
		},
		{
			name:    "no client",
			sc:      &server.ServerContext{},
			args:    map[string]interface{}{"test_suite": "mintaka-sample"},
			wantErr: "LLM client is not configured",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := callTool(t, handleRunTestSuite, tt.sc, tt.args)
			assert.True(t, isErr)
			assert.Contains(t, text, tt.wantErr)
		})
	}
}

func TestHandleRunTestSuiteThenScore(t *testing.T) {
	outputDir := t.TempDir()
	client := &testutil.MockLLMClient{DefaultResponse: "Step one.\n### Conclusion\nMount Lucania"}
	rec := &fakeStore{}
	sc := &server.ServerContext{
		LLMClient:   client,
		Store:       rec,
		OutputDir:   outputDir,
		Concurrency: 4,
	}

	text, isErr := callTool(t, handleRunTestSuite, sc, map[string]interface{}{
		"test_suite":  "mintaka-sample",
		"strategies":  "cot",
		"model":       "test-model",
		"temperature": 0.0,
	})
	require.False(t, isErr, text)

	var summary runSummary
	require.NoError(t, json.Unmarshal([]byte(text), &summary))
	assert.Equal(t, "Mintaka Sample", summary.Suite)
	assert.Equal(t, "test-model", summary.Model)
	require.Len(t, summary.Strategies, 1)
	assert.Equal(t, "cot", summary.Strategies[0].Strategy)
	assert.Equal(t, 11, summary.Strategies[0].Summary.Overall.Count)
	assert.Empty(t, summary.Warning)

	assert.Equal(t, 11, client.Calls())
	require.NotNil(t, client.LastRequest().Temperature)
	assert.Equal(t, 0.0, *client.LastRequest().Temperature)
	require.Len(t, rec.recorded, 1)
	assert.Equal(t, summary.RunID, rec.recorded[0].ID)

	text, isErr = callTool(t, handleScoreResults, sc, map[string]interface{}{"run_id": summary.RunID})
	require.False(t, isErr, text)
	assert.Contains(t, text, "cot_scores.json")
	assert.FileExists(t, filepath.Join(outputDir, summary.RunID, "cot_scores.json"))

	// Scoring again must not pick up the score file as input.
	text, isErr = callTool(t, handleScoreResults, sc, map[string]interface{}{"run_id": summary.RunID})
	require.False(t, isErr, text)
	var rescored struct {
		Scored []fileScore `json:"scored"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &rescored))
	require.Len(t, rescored.Scored, 1)
	assert.Equal(t, "cot", rescored.Scored[0].Strategy)
	assert.Equal(t, summary.Strategies[0].Summary, rescored.Scored[0].Summary)

	text, isErr = callTool(t, handleScoreResults, sc, map[string]interface{}{
		"results_file": filepath.Join(summary.RunID, "cot.json"),
	})
	require.False(t, isErr, text)
	assert.Contains(t, text, "cot_scores.json")
}

func TestHandleEvaluateAnswer(t *testing.T) {
	text, isErr := callTool(t, handleEvaluateAnswer, &server.ServerContext{}, map[string]interface{}{
		"gold":   "Beijing, London",
		"answer": "Beijing",
	})
	require.False(t, isErr, text)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &res))
	assert.Equal(t, 0.5, res["score"])
	assert.Equal(t, true, res["enumerated"])
	assert.Equal(t, true, res["gradable"])

	text, isErr = callTool(t, handleEvaluateAnswer, &server.ServerContext{}, map[string]interface{}{"gold": "x"})
	assert.True(t, isErr)
	assert.Contains(t, text, "answer is required")
}

func TestHandleScoreResultsErrors(t *testing.T) {
	outputDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(outputDir, "empty-run"), 0o755))
	sc := &server.ServerContext{OutputDir: outputDir}

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr string
	}{
		{"no arguments", map[string]interface{}{}, "either 'run_id' or 'results_file' is required"},
		{"run id traversal", map[string]interface{}{"run_id": "../etc"}, "path separators are not allowed"},
		{"missing run", map[string]interface{}{"run_id": "missing"}, "not found"},
		{"run without results", map[string]interface{}{"run_id": "empty-run"}, "no result files found"},
		{"file outside output", map[string]interface{}{"results_file": "../outside.json"}, "within output directory"},
		{"transcript file", map[string]interface{}{"results_file": "run/cot.txt"}, "must be a .json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := callTool(t, handleScoreResults, sc, tt.args)
			assert.True(t, isErr)
			assert.Contains(t, text, tt.wantErr)
		})
	}
}

func TestHandleGetResultsEmptyDir(t *testing.T) {
	text, isErr := callTool(t, handleGetResults, &server.ServerContext{OutputDir: t.TempDir()}, map[string]interface{}{})
	assert.False(t, isErr)
	assert.Equal(t, "[]", text)
}

func TestHandleGetResultsNonexistentDir(t *testing.T) {
	text, _ := callTool(t, handleGetResults, &server.ServerContext{OutputDir: "/nonexistent/directory"}, map[string]interface{}{})
	assert.Equal(t, "[]", text)
}

func TestHandleGetResultsSpecificRun(t *testing.T) {
	tmpDir := t.TempDir()
	runDir := filepath.Join(tmpDir, "test-run")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "resultset.json"), []byte(`{"id": "test-run", "suite": "test"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "cot_scores.json"), []byte(`{"summary": {}}`), 0o644))

	sc := &server.ServerContext{OutputDir: tmpDir}

	text, isErr := callTool(t, handleGetResults, sc, map[string]interface{}{"run_id": "test-run"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "test-run")
	assert.Contains(t, text, "cot_scores.json")

	text, _ = callTool(t, handleGetResults, sc, map[string]interface{}{})
	assert.Contains(t, text, `"score_files"`)

	text, isErr = callTool(t, handleGetResults, sc, map[string]interface{}{"run_id": "../test-run"})
	assert.True(t, isErr)
	assert.Contains(t, text, "invalid run_id")
}

func TestHandleGetResultsFromStore(t *testing.T) {
	fs := &fakeStore{
		runs: map[string]store.Run{
			"run-1": {ID: "run-1", Suite: "Mintaka Sample", Model: "m"},
		},
		answers: map[string][]store.Answer{
			"run-1": {
				{RunID: "run-1", Strategy: "cot", QuestionID: "q1", Score: 1},
				{RunID: "run-1", Strategy: "pot", QuestionID: "q1", Score: 0.5},
			},
		},
	}
	sc := &server.ServerContext{Store: fs, OutputDir: t.TempDir()}

	text, isErr := callTool(t, handleGetResults, sc, map[string]interface{}{})
	require.False(t, isErr, text)
	assert.Contains(t, text, "run-1")

	text, isErr = callTool(t, handleGetResults, sc, map[string]interface{}{"run_id": "run-1", "strategy": "pot"})
	require.False(t, isErr, text)
	var got struct {
		Run     store.Run      `json:"run"`
		Answers []store.Answer `json:"answers"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, "Mintaka Sample", got.Run.Suite)
	require.Len(t, got.Answers, 1)
	assert.Equal(t, "pot", got.Answers[0].Strategy)

	// Unknown to the store and absent on disk.
	text, isErr = callTool(t, handleGetResults, sc, map[string]interface{}{"run_id": "run-2"})
	assert.True(t, isErr)
	assert.Contains(t, text, "not found")
}

func TestModelToolsWithoutHost(t *testing.T) {
	handlers := map[string]func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error){
		"deploy":   handleDeployModel,
		"teardown": handleTeardownModel,
		"list":     handleListModels,
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			text, isErr := callTool(t, h, &server.ServerContext{}, map[string]interface{}{
				"model_name": "test",
				"model_uri":  "hf://org/model",
			})
			assert.True(t, isErr)
			assert.Contains(t, text, "model host is not configured")
		})
	}
}

func TestModelToolsWithHost(t *testing.T) {
	sc := &server.ServerContext{ModelHost: newFakeModelHost()}

	text, isErr := callTool(t, handleListModels, sc, nil)
	require.False(t, isErr, text)
	assert.Equal(t, "[]", text)

	text, isErr = callTool(t, handleDeployModel, sc, map[string]interface{}{"model_uri": "hf://org/model"})
	assert.True(t, isErr)
	assert.Contains(t, text, "model_name is required")

	text, isErr = callTool(t, handleDeployModel, sc, map[string]interface{}{
		"model_name":   "m",
		"model_uri":    "hf://org/m",
		"runtime_args": []interface{}{"--max-model-len=4096", 7},
	})
	assert.True(t, isErr)
	assert.Contains(t, text, "array of strings")

	text, isErr = callTool(t, handleTeardownModel, sc, map[string]interface{}{"model_name": "gone"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "no longer served")
}

func TestRuntimeArgs(t *testing.T) {
	args, err := runtimeArgs([]interface{}{" --max-model-len=4096 ", "--dtype=half"})
	require.NoError(t, err)
	assert.Equal(t, []string{"--max-model-len=4096", "--dtype=half"}, args)

	args, err = runtimeArgs(nil)
	require.NoError(t, err)
	assert.Nil(t, args)

	_, err = runtimeArgs([]interface{}{"  "})
	assert.Error(t, err)
}

func TestResolveRunPath(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		runID   string
		wantErr string
	}{
		{"Mintaka_Sample_20250101-120000", ""},
		{"", "run_id is required"},
		{"a/b", "path separators"},
		{`a\b`, "path separators"},
		{"..", "path traversal"},
		{".", "path traversal"},
	}
	for _, tt := range tests {
		t.Run(tt.runID, func(t *testing.T) {
			got, err := resolveRunPath(base, tt.runID)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(base, tt.runID), got)
		})
	}
}

func TestResolveResultFilePath(t *testing.T) {
	base := t.TempDir()

	got, err := resolveResultFilePath(base, "run/pot.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "run", "pot.json"), got)

	got, err = resolveResultFilePath(base, filepath.Join(base, "run", "cot.json"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "run", "cot.json"), got)

	for _, bad := range []string{"", "run/resultset.json", "run/cot_scores.json", "../x.json", "/etc/passwd.json"} {
		_, err := resolveResultFilePath(base, bad)
		assert.Error(t, err, bad)
	}
}
