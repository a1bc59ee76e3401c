package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/giantswarm/strategy-eval/internal/llm"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

// Stage names of the pyramid-of-thought pipeline, in call order.
const (
	StageKnowledge   = "knowledge"
	StageReasoning   = "reasoning"
	StageFinalAnswer = "final_answer"
	StageExtraction  = "extraction"
)

// PoTStrategy answers in four calls: knowledge retrieval, structured
// reasoning, a final answer and a last call that extracts the conclusion.
// Each call sees the outputs of the earlier ones.
type PoTStrategy struct{}

func (s *PoTStrategy) Name() string {
	return "pot"
}

func (s *PoTStrategy) Execute(ctx context.Context, client llm.Client, req Request) (*testsuite.Result, error) {
	start := time.Now()
	q := req.Question
	stages := make([]testsuite.Stage, 0, 4)

	ask := func(name, prompt string) (string, error) {
		stageStart := time.Now()
		resp, err := client.ChatCompletion(ctx, llm.ChatRequest{
			Model:         req.Model,
			SystemMessage: systemMessage,
			UserMessage:   prompt,
			Temperature:   req.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("%s stage failed for question %s: %w", name, q.ID, err)
		}
		slog.Debug("pot stage complete",
			"question_id", q.ID,
			"stage", name,
			"prompt_len", len(prompt),
			"response_len", len(resp.Content),
		)
		stages = append(stages, testsuite.Stage{
			Name:     name,
			Prompt:   prompt,
			Response: resp.Content,
			Duration: time.Since(stageStart),
		})
		return resp.Content, nil
	}

	knowledge, err := ask(StageKnowledge, knowledgePrompt(q.Text, req.Context))
	if err != nil {
		return nil, err
	}
	reasoning, err := ask(StageReasoning, reasoningPrompt(q.Text, knowledge))
	if err != nil {
		return nil, err
	}
	final, err := ask(StageFinalAnswer, finalAnswerPrompt(q.Text, knowledge, reasoning, q.AnswerType))
	if err != nil {
		return nil, err
	}
	extracted, err := ask(StageExtraction, extractionPrompt(q.Text, final))
	if err != nil {
		return nil, err
	}

	return &testsuite.Result{
		Question:  q,
		Strategy:  s.Name(),
		Answer:    ExtractConclusion(extracted),
		RawAnswer: final,
		Stages:    stages,
		Context:   req.Context,
		Duration:  time.Since(start),
	}, nil
}

func (s *PoTStrategy) FormatResults(results []*testsuite.Result) string {
	var b strings.Builder
	for _, r := range results {
		writeResultHeader(&b, r)
		for _, st := range r.Stages {
			fmt.Fprintf(&b, "[%s]\n%s\n", strings.ToUpper(st.Name), st.Response)
		}
		writeResultFooter(&b, r)
	}
	return b.String()
}
