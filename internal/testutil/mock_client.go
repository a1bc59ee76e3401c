// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/giantswarm/strategy-eval/internal/llm"
)

// MockLLMClient is a configurable mock for llm.Client and llm.Embedder used
// across test packages. It is safe for concurrent use.
type MockLLMClient struct {
	// Responses maps user messages to canned responses.
	Responses map[string]string

	// Contains maps substrings of the user message to canned responses.
	// It is consulted when Responses has no exact match.
	Contains map[string]string

	// DefaultResponse is returned when nothing else matches.
	DefaultResponse string

	// Err, when set, is returned by every ChatCompletion call.
	Err error

	// Vectors maps embedding inputs to vectors. Unknown inputs embed to {0, 0, 1}.
	Vectors map[string][]float32

	mu          sync.Mutex
	calls       int
	embedCalls  int
	lastRequest llm.ChatRequest
	requests    []llm.ChatRequest
}

func (m *MockLLMClient) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastRequest = req
	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}

	if resp, ok := m.Responses[req.UserMessage]; ok {
		return &llm.ChatResponse{Content: resp}, nil
	}

	for sub, resp := range m.Contains {
		if strings.Contains(req.UserMessage, sub) {
			return &llm.ChatResponse{Content: resp}, nil
		}
	}

	if m.DefaultResponse != "" {
		return &llm.ChatResponse{Content: m.DefaultResponse}, nil
	}

	return &llm.ChatResponse{Content: "mock response"}, nil
}

func (m *MockLLMClient) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.embedCalls++
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v, ok := m.Vectors[in]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

// Calls returns the number of ChatCompletion invocations.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// EmbedCalls returns the number of Embed invocations.
func (m *MockLLMClient) EmbedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls
}

// LastRequest returns the most recent ChatRequest.
func (m *MockLLMClient) LastRequest() llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// Requests returns a copy of every ChatRequest received so far.
func (m *MockLLMClient) Requests() []llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.ChatRequest(nil), m.requests...)
}
