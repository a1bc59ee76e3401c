package testsuite

import (
	"math/rand/v2"
	"slices"
)

// Sample draws questions per answer type according to cfg. Answer types named
// in TakeAll are kept whole, as are types with fewer questions than
// requested. When any per-type size is configured, types that are neither
// sized nor in TakeAll are dropped. The draw is deterministic for a given
// Seed and the selection keeps the input order.
func Sample(questions []Question, cfg Sampling) []Question {
	if !cfg.Enabled() {
		return questions
	}

	byType := make(map[string][]int)
	var types []string
	for i, q := range questions {
		if _, ok := byType[q.AnswerType]; !ok {
			types = append(types, q.AnswerType)
		}
		byType[q.AnswerType] = append(byType[q.AnswerType], i)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	var selected []int
	for _, t := range types {
		idx := byType[t]
		if slices.Contains(cfg.TakeAll, t) {
			selected = append(selected, idx...)
			continue
		}
		n, ok := cfg.PerAnswerType[t]
		if !ok {
			continue
		}
		if n >= len(idx) {
			selected = append(selected, idx...)
			continue
		}
		shuffled := slices.Clone(idx)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		selected = append(selected, shuffled[:n]...)
	}

	slices.Sort(selected)
	out := make([]Question, 0, len(selected))
	for _, i := range selected {
		out = append(out, questions[i])
	}
	return out
}
