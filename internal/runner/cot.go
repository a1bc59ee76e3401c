package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/giantswarm/strategy-eval/internal/llm"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

// CoTStrategy asks the question once with step-by-step instructions and
// reads the answer from the conclusion section.
type CoTStrategy struct{}

func (s *CoTStrategy) Name() string {
	return "cot"
}

func (s *CoTStrategy) Execute(ctx context.Context, client llm.Client, req Request) (*testsuite.Result, error) {
	start := time.Now()
	prompt := cotPrompt(req.Question.Text, req.Context)

	resp, err := client.ChatCompletion(ctx, llm.ChatRequest{
		Model:         req.Model,
		SystemMessage: systemMessage,
		UserMessage:   prompt,
		Temperature:   req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get completion for question %s: %w", req.Question.ID, err)
	}

	return &testsuite.Result{
		Question:  req.Question,
		Strategy:  s.Name(),
		Answer:    ExtractConclusion(resp.Content),
		RawAnswer: resp.Content,
		Context:   req.Context,
		Duration:  time.Since(start),
	}, nil
}

func (s *CoTStrategy) FormatResults(results []*testsuite.Result) string {
	var b strings.Builder
	for _, r := range results {
		writeResultHeader(&b, r)
		fmt.Fprintf(&b, "RESPONSE:\n%s\n", r.RawAnswer)
		writeResultFooter(&b, r)
	}
	return b.String()
}

func writeResultHeader(b *strings.Builder, r *testsuite.Result) {
	fmt.Fprintf(b, "---\n")
	fmt.Fprintf(b, "NO. %s - %s/%s\n", r.Question.ID, r.Question.AnswerType, r.Question.Complexity)
	fmt.Fprintf(b, "QUESTION: %s\n", r.Question.Text)
	for _, c := range r.Context {
		fmt.Fprintf(b, "CONTEXT: %s\n", c)
	}
}

func writeResultFooter(b *strings.Builder, r *testsuite.Result) {
	fmt.Fprintf(b, "EXPECTED ANSWER: %s\n", r.Question.Answer)
	if r.Error != "" {
		fmt.Fprintf(b, "ERROR: %s\n", r.Error)
		return
	}
	fmt.Fprintf(b, "ACTUAL ANSWER: %s\n", r.Answer)
	if r.Gradable {
		fmt.Fprintf(b, "SCORE: %.4f\n", r.Score)
	} else {
		fmt.Fprintf(b, "SCORE: n/a\n")
	}
}
