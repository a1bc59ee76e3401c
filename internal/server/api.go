package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/giantswarm/strategy-eval/internal/scorer"
	"github.com/giantswarm/strategy-eval/internal/store"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// MCPEndpoint and MCPHandler mount the MCP transport. Both optional.
	MCPEndpoint string
	MCPHandler  http.Handler
	// Protect wraps every route except /healthz, e.g. with token validation.
	Protect func(http.Handler) http.Handler
	// AllowedOrigins for CORS. Defaults to any origin.
	AllowedOrigins []string
}

// NewRouter builds the HTTP surface: health check, MCP endpoint and the REST API.
func NewRouter(sc *ServerContext, opts RouterOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"Content-Length", "Mcp-Session-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(pr chi.Router) {
		if opts.Protect != nil {
			pr.Use(opts.Protect)
		}

		if opts.MCPHandler != nil && opts.MCPEndpoint != "" {
			pr.Handle(opts.MCPEndpoint, opts.MCPHandler)
		}

		pr.Route("/api/v1", func(ar chi.Router) {
			ar.Use(middleware.Timeout(30 * time.Second))
			ar.Post("/evaluate", EvaluateHandler())
			ar.Get("/suites", ListSuitesHandler(sc.SuitesDir))
			ar.Get("/runs", ListRunsHandler(sc.Store))
			ar.Get("/runs/{runID}", GetRunHandler(sc.Store))
		})
	})

	return r
}

// EvaluateRequest is the body of POST /api/v1/evaluate.
type EvaluateRequest struct {
	Gold   string `json:"gold"`
	Answer string `json:"answer"`
}

// EvaluateHandler scores one candidate answer against a gold mention.
func EvaluateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EvaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Gold) == "" {
			http.Error(w, "gold is required", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, scorer.Score(req.Gold, req.Answer))
	}
}

func ListSuitesHandler(suitesDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names, err := testsuite.List(suitesDir)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suites": names})
	}
}

func ListRunsHandler(s RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s == nil {
			http.Error(w, "no result store configured", http.StatusServiceUnavailable)
			return
		}
		runs, err := s.ListRuns(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []store.Run{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	}
}

// GetRunHandler returns a run with its answers, optionally filtered by
// ?strategy=.
func GetRunHandler(s RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s == nil {
			http.Error(w, "no result store configured", http.StatusServiceUnavailable)
			return
		}
		runID := chi.URLParam(r, "runID")
		run, err := s.GetRun(r.Context(), runID)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		answers, err := s.Answers(r.Context(), runID, strings.TrimSpace(r.URL.Query().Get("strategy")))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if answers == nil {
			answers = []store.Answer{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"run": run, "answers": answers})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
