package testsuite

import (
	"slices"
	"strings"
)

// Survey describes the shape of a question set.
type Survey struct {
	Total        int            `json:"total"`
	AnswerTypes  map[string]int `json:"answer_types"`
	Complexities map[string]int `json:"complexities"`
	Longest      []AnswerLength `json:"longest_answers"`
}

// AnswerLength is a gold answer together with its word count.
type AnswerLength struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	AnswerType string `json:"answer_type"`
	Words      int    `json:"words"`
}

// SurveyQuestions counts questions per answer type and complexity and
// returns the topN longest gold answers by word count.
func SurveyQuestions(questions []Question, topN int) Survey {
	s := Survey{
		Total:        len(questions),
		AnswerTypes:  make(map[string]int),
		Complexities: make(map[string]int),
	}

	lengths := make([]AnswerLength, 0, len(questions))
	for _, q := range questions {
		s.AnswerTypes[q.AnswerType]++
		s.Complexities[q.Complexity]++
		lengths = append(lengths, AnswerLength{
			QuestionID: q.ID,
			Question:   q.Text,
			Answer:     q.Answer,
			AnswerType: q.AnswerType,
			Words:      len(strings.Fields(q.Answer)),
		})
	}

	slices.SortStableFunc(lengths, func(a, b AnswerLength) int {
		return b.Words - a.Words
	})
	if topN >= 0 && topN < len(lengths) {
		lengths = lengths[:topN]
	}
	s.Longest = lengths
	return s
}
