// Package scorer grades free-form model answers against gold answers with a
// normalized edit-distance metric. Grading is deterministic and does no I/O
// apart from the results file helpers in this file.
package scorer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Metric names the scoring method recorded in score files.
const Metric = "normalized-edit-distance"

// ScoreOutput is the full structured scoring output for one results file.
type ScoreOutput struct {
	Metadata ScoreMetadata   `json:"metadata"`
	Scores   []QuestionScore `json:"scores"`
	Summary  Summary         `json:"summary"`
}

// ScoreMetadata holds information about the scoring pass.
type ScoreMetadata struct {
	Timestamp   string `json:"timestamp"`
	ResultsFile string `json:"results_file"`
	Strategy    string `json:"strategy"`
	Model       string `json:"model"`
	Metric      string `json:"metric"`
}

// QuestionScore is the score of a single answer.
type QuestionScore struct {
	QuestionID string  `json:"question_id"`
	AnswerType string  `json:"answer_type"`
	Complexity string  `json:"complexity"`
	Gold       string  `json:"gold"`
	Answer     string  `json:"answer"`
	Score      float64 `json:"score"`
	Enumerated bool    `json:"enumerated"`
	Gradable   bool    `json:"gradable"`
	Words      int     `json:"words"`
	Error      string  `json:"error,omitempty"`
}

// resultsFile mirrors the parts of a strategy results file needed to
// re-score it.
type resultsFile struct {
	Strategy string `json:"strategy"`
	Model    string `json:"model"`
	Results  []struct {
		Question struct {
			ID         string `json:"id"`
			Answer     string `json:"answer"`
			AnswerType string `json:"answer_type"`
			Complexity string `json:"complexity"`
		} `json:"question"`
		Answer string `json:"answer"`
		Error  string `json:"error,omitempty"`
	} `json:"results"`
}

// ScoreFile reads a strategy results file and recomputes every score.
func ScoreFile(path string) (*ScoreOutput, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	var rf resultsFile
	if err := json.Unmarshal(content, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse results file %s: %w", path, err)
	}

	output := &ScoreOutput{
		Metadata: ScoreMetadata{
			Timestamp:   time.Now().Format(time.RFC3339),
			ResultsFile: path,
			Strategy:    rf.Strategy,
			Model:       rf.Model,
			Metric:      Metric,
		},
		Scores: make([]QuestionScore, 0, len(rf.Results)),
	}

	entries := make([]Scored, 0, len(rf.Results))
	for _, r := range rf.Results {
		qs := QuestionScore{
			QuestionID: r.Question.ID,
			AnswerType: r.Question.AnswerType,
			Complexity: r.Question.Complexity,
			Gold:       r.Question.Answer,
			Answer:     r.Answer,
			Words:      len(strings.Fields(r.Answer)),
			Error:      r.Error,
		}
		if r.Error == "" {
			res := Score(r.Question.Answer, r.Answer)
			qs.Score = res.Value
			qs.Enumerated = res.Enumerated
			qs.Gradable = res.Gradable
		}
		output.Scores = append(output.Scores, qs)
		entries = append(entries, Scored{
			AnswerType: qs.AnswerType,
			Complexity: qs.Complexity,
			Score:      qs.Score,
			Words:      qs.Words,
			Gradable:   qs.Gradable,
			Failed:     qs.Error != "",
		})
	}

	output.Summary = Summarize(entries)

	slog.Info("results scored",
		"file", path,
		"strategy", rf.Strategy,
		"answers", output.Summary.Overall.Count,
		"mean_score", output.Summary.Overall.MeanScore,
	)

	return output, nil
}

// WriteScoreFile writes the score output as JSON next to the results file.
func WriteScoreFile(output *ScoreOutput, resultsFile string) (string, error) {
	scoresFile := strings.TrimSuffix(resultsFile, ".json") + "_scores.json"

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal scores: %w", err)
	}

	if err := os.WriteFile(scoresFile, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write scores file: %w", err)
	}

	return scoresFile, nil
}
