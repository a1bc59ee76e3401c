package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/strategy-eval/internal/scorer"
	"github.com/giantswarm/strategy-eval/internal/store"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

type fakeStore struct {
	runs    []store.Run
	answers []store.Answer
}

func (f *fakeStore) Record(context.Context, *testsuite.TestRun) error { return nil }

func (f *fakeStore) ListRuns(context.Context) ([]store.Run, error) { return f.runs, nil }

func (f *fakeStore) GetRun(_ context.Context, id string) (store.Run, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return store.Run{}, store.ErrNotFound
}

func (f *fakeStore) Answers(_ context.Context, runID, strategy string) ([]store.Answer, error) {
	var out []store.Answer
	for _, a := range f.answers {
		if a.RunID == runID && (strategy == "" || a.Strategy == strategy) {
			out = append(out, a)
		}
	}
	return out, nil
}

func newTestRouter(s RunStore) http.Handler {
	return NewRouter(&ServerContext{Store: s}, RouterOptions{})
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestEvaluateEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantScore  float64
		wantEnum   bool
	}{
		{"exact", `{"gold":"Mount Lucania","answer":"The answer is Mount Lucania."}`, http.StatusOK, 1, false},
		{"enumerated half", `{"gold":"London, Paris","answer":"London"}`, http.StatusOK, 0.5, true},
		{"missing gold", `{"answer":"x"}`, http.StatusBadRequest, 0, false},
		{"bad json", `{`, http.StatusBadRequest, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", strings.NewReader(tt.body))
			newTestRouter(nil).ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var res scorer.Result
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.InDelta(t, tt.wantScore, res.Value, 1e-9)
			assert.Equal(t, tt.wantEnum, res.Enumerated)
			assert.True(t, res.Gradable)
		})
	}
}

func TestRunsEndpointsWithoutStore(t *testing.T) {
	for _, path := range []string{"/api/v1/runs", "/api/v1/runs/x"} {
		rec := httptest.NewRecorder()
		newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestRunsEndpoints(t *testing.T) {
	s := &fakeStore{
		runs: []store.Run{{ID: "run-1", Suite: "s", Model: "m", Timestamp: time.Unix(0, 0).UTC()}},
		answers: []store.Answer{
			{RunID: "run-1", Strategy: "cot", QuestionID: "q1", Score: 1},
			{RunID: "run-1", Strategy: "pot", QuestionID: "q1", Score: 0.5},
		},
	}
	h := newTestRouter(s)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs []store.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, "run-1", list.Runs[0].ID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1?strategy=pot", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Run     store.Run      `json:"run"`
		Answers []store.Answer `json:"answers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "m", detail.Run.Model)
	require.Len(t, detail.Answers, 1)
	assert.Equal(t, "pot", detail.Answers[0].Strategy)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSuitesEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/suites", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mintaka-sample")
}

func TestProtectWrapsAPIButNotHealthz(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	mcp := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := NewRouter(&ServerContext{}, RouterOptions{MCPEndpoint: "/mcp", MCPHandler: mcp, Protect: deny})

	for path, want := range map[string]int{
		"/healthz":       http.StatusOK,
		"/mcp":           http.StatusUnauthorized,
		"/api/v1/suites": http.StatusUnauthorized,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestServeUntilDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	stop := make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		errc <- ServeUntilDone(ctx,
			func() error {
				close(started)
				<-stop
				return http.ErrServerClosed
			},
			func(context.Context) error {
				close(stop)
				return nil
			},
		)
	}()

	<-started
	cancel()
	assert.NoError(t, <-errc)
}

func TestServeUntilDoneStartError(t *testing.T) {
	err := ServeUntilDone(context.Background(),
		func() error { return assert.AnError },
		func(context.Context) error { return nil },
	)
	assert.ErrorIs(t, err, assert.AnError)
}
