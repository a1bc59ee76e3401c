package testsuite

import (
	"time"

	"github.com/giantswarm/strategy-eval/internal/scorer"
)

// TestSuite represents a loaded benchmark suite with its configuration and questions.
// The model is not required here -- it can be provided at runtime by the user or agent.
type TestSuite struct {
	Name          string     `yaml:"name"`
	Description   string     `yaml:"description"`
	Version       string     `yaml:"version"`
	Strategies    []string   `yaml:"strategies"` // e.g. ["cot", "pot"] (default)
	Model         string     `yaml:"model"`
	Temperature   *float64   `yaml:"temperature"`
	QuestionsFile string     `yaml:"questions_file"`
	Sampling      Sampling   `yaml:"sampling"`
	Retrieval     Retrieval  `yaml:"retrieval"`
	Questions     []Question `yaml:"-"` // loaded separately from JSON or CSV
}

// Sampling selects a subset of questions per answer type.
type Sampling struct {
	// PerAnswerType maps an answer type to the number of questions drawn from it.
	PerAnswerType map[string]int `yaml:"per_answer_type"`
	// TakeAll lists answer types that are kept whole.
	TakeAll []string `yaml:"take_all"`
	Seed    uint64   `yaml:"seed"`
}

// Enabled reports whether any sampling is configured.
func (s Sampling) Enabled() bool {
	return len(s.PerAnswerType) > 0 || len(s.TakeAll) > 0
}

// Retrieval configures context narrowing before prompting.
type Retrieval struct {
	// TopK is the number of context sentences kept. 0 disables retrieval.
	TopK int `yaml:"top_k"`
}

// Model defines a model to evaluate. Models are specified at runtime, not in suite config.
// When ModelURI is set, the model can be deployed on the cluster before the run.
type Model struct {
	Name        string   `json:"name"`
	Temperature *float64 `json:"temperature,omitempty"`
	ModelURI    string   `json:"model_uri,omitempty"` // storage URI (e.g. "hf://org/model")
	GPUCount    int      `json:"gpu_count,omitempty"`
}

// Question represents a single benchmark question.
type Question struct {
	ID         string `json:"id"`
	Text       string `json:"question"`
	Answer     string `json:"answer"` // gold mention; commas separate entities
	AnswerType string `json:"answer_type"`
	Complexity string `json:"complexity"`
	Category   string `json:"category,omitempty"`
	Context    string `json:"context,omitempty"`
}

// Stage records one model call of a multi-step strategy.
type Stage struct {
	Name     string        `json:"name"`
	Prompt   string        `json:"prompt"`
	Response string        `json:"response"`
	Duration time.Duration `json:"duration"`
}

// Result represents the outcome of running a single question under one strategy.
type Result struct {
	Question   Question      `json:"question"`
	Strategy   string        `json:"strategy"`
	Answer     string        `json:"answer"`     // final answer used for scoring
	RawAnswer  string        `json:"raw_answer"` // model text before conclusion extraction
	Stages     []Stage       `json:"stages,omitempty"`
	Context    []string      `json:"context,omitempty"` // retrieved context sentences
	Score      float64       `json:"score"`
	Enumerated bool          `json:"enumerated"`
	Gradable   bool          `json:"gradable"`
	WordCount  int           `json:"word_count"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// TestRun represents metadata and results for a complete strategy comparison.
type TestRun struct {
	ID         string        `json:"id"`
	Suite      string        `json:"suite"`
	Model      string        `json:"model"`
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration"`
	Strategies []StrategyRun `json:"strategies"`
}

// StrategyRun holds results for a single strategy within a test run.
type StrategyRun struct {
	Strategy       string         `json:"strategy"`
	Duration       time.Duration  `json:"duration"`
	ResultsFile    string         `json:"results_file"`
	TranscriptFile string         `json:"transcript_file"`
	Summary        scorer.Summary `json:"summary"`
	Results        []*Result      `json:"-"`
}
