package scorer

import (
	"math"
	"strings"
	"unicode/utf8"
)

// ScoreSingle scores candidate against a single gold answer. Both are
// expected to be normalized already.
//
// The gold answer is compared against every window of the candidate holding
// as many tokens as the gold answer; the best window wins. A candidate too
// short to produce a window is compared as a whole. The distance is capped at
// the gold answer's length and mapped onto [0,1], so 1 is an exact match.
// An empty gold answer scores 0.
func ScoreSingle(correct, candidate string) float64 {
	maxDist := utf8.RuneCountInString(correct)
	if maxDist == 0 {
		return 0
	}

	chunks := Chunks(candidate, len(strings.Fields(correct)))

	var dist int
	if len(chunks) == 0 {
		dist = EditDistance(correct, candidate)
	} else {
		dist = math.MaxInt
		for _, chunk := range chunks {
			if d := EditDistance(correct, chunk); d < dist {
				dist = d
				if dist == 0 {
					break
				}
			}
		}
	}

	return 1 - float64(min(dist, maxDist))/float64(maxDist)
}

// ScoreEnumerated returns the mean ScoreSingle of every item against the full
// candidate. No items scores 0.
func ScoreEnumerated(items []string, candidate string) float64 {
	if len(items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range items {
		total += ScoreSingle(item, candidate)
	}
	return total / float64(len(items))
}

// IsEnumerated reports whether a raw gold answer lists several entities.
// The test is purely syntactic: any comma counts, so "Washington, D.C." is
// treated as two items.
func IsEnumerated(correctMention string) bool {
	return strings.Contains(correctMention, ",")
}

// EvaluateAnswer scores a candidate answer against a raw gold mention. It is
// the single entry point used when grading model output.
func EvaluateAnswer(correctMention, candidate string) float64 {
	return Score(correctMention, candidate).Value
}

// Result is the detailed outcome of scoring one answer.
type Result struct {
	Value      float64 `json:"score"`
	Enumerated bool    `json:"enumerated"`
	Items      int     `json:"items"`
	Gradable   bool    `json:"gradable"`
}

// Score is EvaluateAnswer with the classification details kept. A result
// that is not Gradable scored 0 because the gold answer was degenerate, not
// because the candidate missed.
func Score(correctMention, candidate string) Result {
	if IsEnumerated(correctMention) {
		items := enumeratedItems(correctMention)
		return Result{
			Value:      ScoreEnumerated(items, Normalize(candidate, true)),
			Enumerated: true,
			Items:      len(items),
			Gradable:   len(items) > 0,
		}
	}

	correct := Normalize(correctMention, true)
	return Result{
		Value:    ScoreSingle(correct, Normalize(candidate, true)),
		Items:    1,
		Gradable: correct != "",
	}
}

// Gradable reports whether a gold mention can produce a meaningful score.
func Gradable(correctMention string) bool {
	if IsEnumerated(correctMention) {
		return len(enumeratedItems(correctMention)) > 0
	}
	return Normalize(correctMention, true) != ""
}

func enumeratedItems(correctMention string) []string {
	var items []string
	for _, item := range strings.Split(Normalize(correctMention, false), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
