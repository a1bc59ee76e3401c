package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/giantswarm/strategy-eval/internal/llm"
)

// Retriever selects the context sentences closest to a question.
type Retriever struct {
	embedder llm.Embedder
	topK     int
}

// New creates a Retriever keeping topK sentences.
func New(embedder llm.Embedder, topK int) *Retriever {
	return &Retriever{embedder: embedder, topK: topK}
}

// Narrow returns the topK sentences of contextText most similar to question,
// in their original order. Short contexts are returned whole without calling
// the embedder.
func (r *Retriever) Narrow(ctx context.Context, question, contextText string) ([]string, error) {
	sentences := SplitSentences(contextText)
	if len(sentences) == 0 || r.topK <= 0 {
		return nil, nil
	}
	if len(sentences) <= r.topK {
		return sentences, nil
	}

	inputs := make([]string, 0, len(sentences)+1)
	inputs = append(inputs, question)
	inputs = append(inputs, sentences...)

	vectors, err := r.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to embed context: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(vectors))
	}

	ix, err := NewIndex(sentences, vectors[1:])
	if err != nil {
		return nil, err
	}

	matches := ix.Search(vectors[0], r.topK)
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Position < matches[j].Position
	})

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Text)
	}

	slog.Debug("context narrowed",
		"sentences", len(sentences),
		"kept", len(out),
	)
	return out, nil
}

// SplitSentences splits text after '.', '!' or '?' when followed by
// whitespace. Empty sentences are dropped.
func SplitSentences(text string) []string {
	var (
		sentences []string
		b         strings.Builder
	)
	runes := []rune(text)
	for i, c := range runes {
		b.WriteRune(c)
		if (c == '.' || c == '!' || c == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
