package scorer

import (
	"math"
	"slices"
)

// Scored is one graded answer as seen by the aggregation.
type Scored struct {
	AnswerType string
	Complexity string
	Score      float64
	Words      int
	Gradable   bool
	Failed     bool
}

// Stats holds aggregate statistics for a group of graded answers.
// Score statistics only cover gradable answers.
type Stats struct {
	Count      int     `json:"count"`
	Ungradable int     `json:"ungradable,omitempty"`
	Failed     int     `json:"failed,omitempty"`
	MeanScore  float64 `json:"mean_score"`
	MinScore   float64 `json:"min_score"`
	MaxScore   float64 `json:"max_score"`
	Variance   float64 `json:"variance"`
	MeanWords  float64 `json:"mean_words"`
}

// Summary breaks the statistics of one strategy run down by answer type and
// by question complexity.
type Summary struct {
	Overall      Stats            `json:"overall"`
	ByAnswerType map[string]Stats `json:"by_answer_type"`
	ByComplexity map[string]Stats `json:"by_complexity"`
}

// Summarize aggregates graded answers.
func Summarize(entries []Scored) Summary {
	byType := make(map[string][]Scored)
	byComplexity := make(map[string][]Scored)
	for _, e := range entries {
		byType[e.AnswerType] = append(byType[e.AnswerType], e)
		byComplexity[e.Complexity] = append(byComplexity[e.Complexity], e)
	}

	summary := Summary{
		Overall:      calculateStatistics(entries),
		ByAnswerType: make(map[string]Stats, len(byType)),
		ByComplexity: make(map[string]Stats, len(byComplexity)),
	}
	for k, v := range byType {
		summary.ByAnswerType[k] = calculateStatistics(v)
	}
	for k, v := range byComplexity {
		summary.ByComplexity[k] = calculateStatistics(v)
	}
	return summary
}

func calculateStatistics(entries []Scored) Stats {
	var (
		stats  Stats
		scores []float64
		words  []float64
	)

	for _, e := range entries {
		switch {
		case e.Failed:
			stats.Failed++
			continue
		case !e.Gradable:
			stats.Ungradable++
		default:
			scores = append(scores, e.Score)
		}
		words = append(words, float64(e.Words))
	}

	stats.Count = len(scores)
	if len(words) > 0 {
		stats.MeanWords = roundTo(meanFloat(words), 2)
	}
	if len(scores) == 0 {
		return stats
	}

	mean := meanFloat(scores)
	stats.MeanScore = roundTo(mean, 4)
	stats.MinScore = roundTo(slices.Min(scores), 4)
	stats.MaxScore = roundTo(slices.Max(scores), 4)
	stats.Variance = roundTo(varianceFloat(scores, mean), 4)
	return stats
}

func meanFloat(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// varianceFloat calculates the population variance given a precomputed mean.
func varianceFloat(vals []float64, mean float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sumSquaredDiff := 0.0
	for _, v := range vals {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return sumSquaredDiff / float64(len(vals))
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
