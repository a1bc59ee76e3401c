package server

import (
	"context"

	"github.com/giantswarm/strategy-eval/internal/llm"
	"github.com/giantswarm/strategy-eval/internal/modelhost"
	"github.com/giantswarm/strategy-eval/internal/runner"
	"github.com/giantswarm/strategy-eval/internal/store"
)

// RunStore is the persistence used by the server surfaces.
type RunStore interface {
	runner.Recorder
	ListRuns(ctx context.Context) ([]store.Run, error)
	GetRun(ctx context.Context, id string) (store.Run, error)
	Answers(ctx context.Context, runID, strategy string) ([]store.Answer, error)
}

// ServerContext holds shared dependencies for MCP tool and REST handlers.
type ServerContext struct {
	ModelHost   *modelhost.Host // nil when no cluster is reachable
	LLMClient   llm.Client
	Embedder    llm.Embedder // optional: enables context retrieval
	Store       RunStore     // optional
	Namespace   string
	OutputDir   string
	SuitesDir   string // external test suites directory (optional)
	Concurrency int
}
