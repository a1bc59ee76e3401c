package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/strategy-eval/internal/llm"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
	"github.com/giantswarm/strategy-eval/internal/testutil"
)

func mustStrategies(t *testing.T, names string) []EvaluationStrategy {
	t.Helper()
	s, err := ParseStrategies(names)
	require.NoError(t, err)
	return s
}

func testSuite() *testsuite.TestSuite {
	return &testsuite.TestSuite{
		Name:  "test suite",
		Model: "suite-model",
		Questions: []testsuite.Question{
			{ID: "1", Text: "What is the capital of France?", Answer: "Paris", AnswerType: "entity", Complexity: "simple"},
			{ID: "2", Text: "Which cities hosted the Olympics in 2008 and 2012?", Answer: "Beijing, London", AnswerType: "entity", Complexity: "multihop"},
		},
	}
}

type fakeRecorder struct {
	runs []*testsuite.TestRun
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, run *testsuite.TestRun) error {
	f.runs = append(f.runs, run)
	return f.err
}

func TestRunnerExecutesSuite(t *testing.T) {
	tmpDir := t.TempDir()

	client := &testutil.MockLLMClient{Contains: map[string]string{
		"capital of France":      "It is Paris.\n### Conclusion\nParis",
		"hosted the Olympics in": "### Conclusion\nBeijing",
	}}

	r := NewRunner(client, mustStrategies(t, "cot"), tmpDir)
	run, err := r.Run(context.Background(), testSuite(), testsuite.Model{})
	require.NoError(t, err)

	assert.Equal(t, "test suite", run.Suite)
	assert.Equal(t, "suite-model", run.Model)
	assert.True(t, strings.HasPrefix(run.ID, "test_suite_"))
	require.Len(t, run.Strategies, 1)

	sr := run.Strategies[0]
	assert.Equal(t, "cot", sr.Strategy)
	require.Len(t, sr.Results, 2)
	assert.Equal(t, "Paris", sr.Results[0].Answer)
	assert.InDelta(t, 1.0, sr.Results[0].Score, 1e-9)
	assert.True(t, sr.Results[1].Enumerated)
	assert.InDelta(t, 0.5, sr.Results[1].Score, 1e-9)
	assert.Equal(t, 1, sr.Results[1].WordCount)
	assert.Equal(t, 2, client.Calls())

	assert.Equal(t, 2, sr.Summary.Overall.Count)
	assert.InDelta(t, 0.75, sr.Summary.Overall.MeanScore, 1e-9)

	assert.Equal(t, filepath.Join(tmpDir, run.ID, "cot.json"), sr.ResultsFile)
	assert.Equal(t, filepath.Join(tmpDir, run.ID, "cot.txt"), sr.TranscriptFile)
	assert.FileExists(t, sr.TranscriptFile)
	assert.FileExists(t, filepath.Join(tmpDir, run.ID, "resultset.json"))

	data, err := os.ReadFile(sr.ResultsFile)
	require.NoError(t, err)
	var envelope struct {
		RunID    string `json:"run_id"`
		Strategy string `json:"strategy"`
		Model    string `json:"model"`
		Results  []struct {
			Answer   string `json:"answer"`
			Question struct {
				ID     string `json:"id"`
				Answer string `json:"answer"`
			} `json:"question"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, run.ID, envelope.RunID)
	assert.Equal(t, "cot", envelope.Strategy)
	assert.Equal(t, "suite-model", envelope.Model)
	require.Len(t, envelope.Results, 2)
	assert.Equal(t, "Beijing, London", envelope.Results[1].Question.Answer)
}

func TestRunnerBothStrategies(t *testing.T) {
	tmpDir := t.TempDir()
	client := &testutil.MockLLMClient{DefaultResponse: "### Conclusion\nParis"}

	r := NewRunner(client, mustStrategies(t, "cot,pot"), tmpDir)
	run, err := r.Run(context.Background(), testSuite(), testsuite.Model{Name: "m"})
	require.NoError(t, err)

	require.Len(t, run.Strategies, 2)
	assert.Equal(t, "cot", run.Strategies[0].Strategy)
	assert.Equal(t, "pot", run.Strategies[1].Strategy)
	// 2 questions: one call each for cot, four each for pot.
	assert.Equal(t, 2+8, client.Calls())
	assert.Len(t, run.Strategies[1].Results[0].Stages, 4)

	data, err := os.ReadFile(filepath.Join(tmpDir, run.ID, "resultset.json"))
	require.NoError(t, err)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "m", meta["model"])
	assert.Len(t, meta["strategies"], 2)
}

func TestRunnerModelFallbacks(t *testing.T) {
	client := &testutil.MockLLMClient{}
	suite := testSuite()
	suite.Model = ""
	suite.Temperature = llm.Float64Ptr(0.2)

	r := NewRunner(client, mustStrategies(t, "cot"), t.TempDir())
	run, err := r.Run(context.Background(), suite, testsuite.Model{})
	require.NoError(t, err)
	assert.Empty(t, run.Model)

	req := client.LastRequest()
	assert.Empty(t, req.Model, "the client chooses the model when none is named")
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.2, *req.Temperature)
}

func TestRunnerUsesClientModel(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		sent = append(sent, body.Model)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"### Conclusion\nParis"}}]}`))
	}))
	defer srv.Close()

	suite := testSuite()
	suite.Model = ""
	client := llm.NewOpenAIClient(llm.WithBaseURL(srv.URL+"/v1"), llm.WithModel("gpt-4o"))

	r := NewRunner(client, mustStrategies(t, "cot"), t.TempDir())
	run, err := r.Run(context.Background(), suite, testsuite.Model{})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", run.Model)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o"}, sent)
}

func TestRunnerRecordsFailures(t *testing.T) {
	client := &testutil.MockLLMClient{Err: assert.AnError}
	r := NewRunner(client, mustStrategies(t, "cot"), t.TempDir())

	run, err := r.Run(context.Background(), testSuite(), testsuite.Model{Name: "m"})
	require.NoError(t, err)

	results := run.Strategies[0].Results
	require.Len(t, results, 2)
	for _, res := range results {
		assert.NotEmpty(t, res.Error)
		assert.Empty(t, res.Answer)
	}
	assert.Equal(t, 2, run.Strategies[0].Summary.Overall.Failed)

	content, err := os.ReadFile(run.Strategies[0].TranscriptFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "ERROR:")
}

func TestRunnerProgressCallback(t *testing.T) {
	client := &testutil.MockLLMClient{}
	r := NewRunner(client, mustStrategies(t, "cot"), t.TempDir())

	var progressCalls []int
	r.SetProgressFunc(func(strategy string, idx, total int) {
		assert.Equal(t, "cot", strategy)
		assert.Equal(t, 2, total)
		progressCalls = append(progressCalls, idx)
	})

	_, err := r.Run(context.Background(), testSuite(), testsuite.Model{Name: "m"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, progressCalls)
}

func TestRunnerConcurrentKeepsOrder(t *testing.T) {
	suite := &testsuite.TestSuite{Name: "concurrent"}
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		suite.Questions = append(suite.Questions, testsuite.Question{ID: id, Text: "Question " + id, Answer: id})
	}

	client := &testutil.MockLLMClient{}
	r := NewRunner(client, mustStrategies(t, "cot"), t.TempDir())
	r.SetConcurrency(4)

	var (
		mu    sync.Mutex
		calls int
	)
	r.SetProgressFunc(func(string, int, int) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	run, err := r.Run(context.Background(), suite, testsuite.Model{Name: "m"})
	require.NoError(t, err)

	results := run.Strategies[0].Results
	require.Len(t, results, 20)
	for i, res := range results {
		assert.Equal(t, suite.Questions[i].ID, res.Question.ID)
	}
	assert.Equal(t, 20, calls)
	assert.Equal(t, 20, client.Calls())
}

func TestRunnerRetrievesContext(t *testing.T) {
	question := "Where is the Eiffel Tower?"
	suite := &testsuite.TestSuite{
		Name:      "retrieval",
		Retrieval: testsuite.Retrieval{TopK: 1},
		Questions: []testsuite.Question{{
			ID:      "1",
			Text:    question,
			Answer:  "Paris",
			Context: "The Eiffel Tower stands in Paris. Berlin has the Brandenburg Gate.",
		}},
	}

	client := &testutil.MockLLMClient{Vectors: map[string][]float32{
		question:                            {1, 0, 0},
		"The Eiffel Tower stands in Paris.": {0.9, 0.1, 0},
		"Berlin has the Brandenburg Gate.":  {0, 1, 0},
	}}

	r := NewRunner(client, mustStrategies(t, "cot,pot"), t.TempDir())
	r.SetEmbedder(client)

	run, err := r.Run(context.Background(), suite, testsuite.Model{Name: "m"})
	require.NoError(t, err)

	// Context is narrowed once and shared by both strategies.
	assert.Equal(t, 1, client.EmbedCalls())
	for _, sr := range run.Strategies {
		assert.Equal(t, []string{"The Eiffel Tower stands in Paris."}, sr.Results[0].Context)
	}
	first := client.Requests()[0].UserMessage
	assert.Contains(t, first, "- The Eiffel Tower stands in Paris.")
	assert.NotContains(t, first, "Brandenburg")
}

func TestRunnerWithoutEmbedderSkipsContext(t *testing.T) {
	suite := testSuite()
	suite.Retrieval.TopK = 2
	suite.Questions[0].Context = "Paris is in France."

	client := &testutil.MockLLMClient{}
	r := NewRunner(client, mustStrategies(t, "cot"), t.TempDir())

	run, err := r.Run(context.Background(), suite, testsuite.Model{Name: "m"})
	require.NoError(t, err)
	assert.Nil(t, run.Strategies[0].Results[0].Context)
	assert.NotContains(t, client.Requests()[0].UserMessage, "[Context]")
}

func TestRunnerModelHooks(t *testing.T) {
	perModel := &testutil.MockLLMClient{DefaultResponse: "### Conclusion\nParis"}
	var prepared, tornDown []string

	r := NewRunner(&testutil.MockLLMClient{}, mustStrategies(t, "cot"), t.TempDir())
	r.SetClientForModelFunc(func(_ context.Context, m testsuite.Model) (llm.Client, error) {
		prepared = append(prepared, m.Name)
		return perModel, nil
	})
	r.SetAfterModelFunc(func(_ context.Context, m testsuite.Model) error {
		tornDown = append(tornDown, m.Name)
		return nil
	})

	_, err := r.Run(context.Background(), testSuite(), testsuite.Model{Name: "hosted"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hosted"}, prepared)
	assert.Equal(t, []string{"hosted"}, tornDown)
	assert.Equal(t, 2, perModel.Calls())
}

func TestRunnerClientForModelError(t *testing.T) {
	var tornDown int
	r := NewRunner(&testutil.MockLLMClient{}, mustStrategies(t, "cot"), t.TempDir())
	r.SetClientForModelFunc(func(context.Context, testsuite.Model) (llm.Client, error) {
		return nil, assert.AnError
	})
	r.SetAfterModelFunc(func(context.Context, testsuite.Model) error {
		tornDown++
		return nil
	})

	_, err := r.Run(context.Background(), testSuite(), testsuite.Model{Name: "m"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, tornDown)
}

func TestRunnerRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	r := NewRunner(&testutil.MockLLMClient{}, mustStrategies(t, "cot"), t.TempDir())
	r.SetRecorder(rec)

	run, err := r.Run(context.Background(), testSuite(), testsuite.Model{Name: "m"})
	require.NoError(t, err)
	require.Len(t, rec.runs, 1)
	assert.Same(t, run, rec.runs[0])

	rec.err = assert.AnError
	run, err = r.Run(context.Background(), testSuite(), testsuite.Model{Name: "m"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotNil(t, run)
}

func TestRunnerSamplesQuestions(t *testing.T) {
	suite := testSuite()
	suite.Questions = append(suite.Questions, testsuite.Question{ID: "3", Text: "Is it?", Answer: "Yes", AnswerType: "boolean"})
	suite.Sampling = testsuite.Sampling{PerAnswerType: map[string]int{"boolean": 1}}

	client := &testutil.MockLLMClient{}
	r := NewRunner(client, mustStrategies(t, "cot"), t.TempDir())
	run, err := r.Run(context.Background(), suite, testsuite.Model{Name: "m"})
	require.NoError(t, err)

	require.Len(t, run.Strategies[0].Results, 1)
	assert.Equal(t, "3", run.Strategies[0].Results[0].Question.ID)
}

func TestRunnerErrors(t *testing.T) {
	r := NewRunner(&testutil.MockLLMClient{}, nil, t.TempDir())
	_, err := r.Run(context.Background(), testSuite(), testsuite.Model{})
	assert.Error(t, err)

	r = NewRunner(&testutil.MockLLMClient{}, mustStrategies(t, "cot"), t.TempDir())
	_, err = r.Run(context.Background(), &testsuite.TestSuite{Name: "empty"}, testsuite.Model{})
	assert.Error(t, err)
}

func TestRunnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &testutil.MockLLMClient{}
	r := NewRunner(client, mustStrategies(t, "cot"), t.TempDir())
	run, err := r.Run(ctx, testSuite(), testsuite.Model{Name: "m"})
	require.NoError(t, err)
	assert.Empty(t, run.Strategies)
	assert.Equal(t, 0, client.Calls())
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "org_model_v1", sanitizeFilename("org/model:v1"))
}
