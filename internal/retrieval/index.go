// Package retrieval narrows a question's supporting context to the sentences
// most similar to the question, using exact nearest-neighbour search over
// sentence embeddings.
package retrieval

import (
	"fmt"
	"math"
	"sort"
)

// Match is one search hit.
type Match struct {
	// Position is the document's index in the order it was added.
	Position   int
	Text       string
	Similarity float64
}

// Index is a flat in-memory vector index scored by cosine similarity.
type Index struct {
	docs    []string
	vectors [][]float32
	norms   []float64
}

// NewIndex builds an index over docs and their embedding vectors.
func NewIndex(docs []string, vectors [][]float32) (*Index, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("got %d documents but %d vectors", len(docs), len(vectors))
	}
	ix := &Index{
		docs:    docs,
		vectors: vectors,
		norms:   make([]float64, len(vectors)),
	}
	for i, v := range vectors {
		if i > 0 && len(v) != len(vectors[0]) {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), len(vectors[0]))
		}
		ix.norms[i] = norm(v)
	}
	return ix, nil
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	return len(ix.docs)
}

// Search returns the k documents most similar to query, best first. Ties keep
// insertion order.
func (ix *Index) Search(query []float32, k int) []Match {
	if k <= 0 || len(ix.docs) == 0 {
		return nil
	}

	qn := norm(query)
	matches := make([]Match, len(ix.docs))
	for i, v := range ix.vectors {
		matches[i] = Match{
			Position:   i,
			Text:       ix.docs[i],
			Similarity: cosine(query, qn, v, ix.norms[i]),
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 || len(a) != len(b) {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
