package runner

import (
	"context"
	"strings"

	"github.com/giantswarm/strategy-eval/internal/llm"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

// systemMessage is sent with every prompt of every strategy.
const systemMessage = "You are a helpful assistant."

// Request carries everything a strategy needs to answer one question.
type Request struct {
	Model       string
	Temperature *float64
	Question    testsuite.Question
	// Context holds retrieved supporting sentences, if any.
	Context []string
}

// EvaluationStrategy defines how a question is put to the model.
// Different strategies prompt differently (single-shot chain of thought,
// staged pyramid of thought) but all end in a final answer to be scored.
type EvaluationStrategy interface {
	// Name returns the strategy identifier (e.g. "cot").
	Name() string

	// Execute runs a single question against the LLM and returns the result
	// with the final answer already extracted.
	Execute(ctx context.Context, client llm.Client, req Request) (*testsuite.Result, error)

	// FormatResults converts results into the output text format.
	FormatResults(results []*testsuite.Result) string
}

// GetStrategy returns an EvaluationStrategy for the given strategy name.
func GetStrategy(name string) (EvaluationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cot":
		return &CoTStrategy{}, nil
	case "pot":
		return &PoTStrategy{}, nil
	default:
		return nil, &UnsupportedStrategyError{Name: name}
	}
}

// ParseStrategies resolves a list of names, which may themselves be
// comma-separated, into strategies. Duplicates are dropped.
func ParseStrategies(names ...string) ([]EvaluationStrategy, error) {
	seen := make(map[string]bool)
	var out []EvaluationStrategy
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := GetStrategy(part)
			if err != nil {
				return nil, err
			}
			if seen[s.Name()] {
				continue
			}
			seen[s.Name()] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, &UnsupportedStrategyError{Name: strings.Join(names, ",")}
	}
	return out, nil
}

// UnsupportedStrategyError is returned when an unknown strategy is requested.
type UnsupportedStrategyError struct {
	Name string
}

func (e *UnsupportedStrategyError) Error() string {
	return "unsupported evaluation strategy: " + e.Name
}
