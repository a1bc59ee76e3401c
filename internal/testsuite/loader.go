package testsuite

import (
	"embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed all:testdata
var embeddedSuites embed.FS

// ErrUnsupportedFormat is returned for questions files that are neither JSON nor CSV.
var ErrUnsupportedFormat = errors.New("unsupported questions file format")

const (
	unknownAnswer = "Unknown Answer"
	unknownType   = "unknown"
)

// DefaultStrategies are compared when a suite does not list its own.
var DefaultStrategies = []string{"cot", "pot"}

// Load loads a test suite by name, searching first in the external directory
// (if provided), then in the embedded test suites.
func Load(name string, externalDir string) (*TestSuite, error) {
	// Try external directory first.
	if externalDir != "" {
		path := filepath.Join(externalDir, name)
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return loadFromFS(os.DirFS(path), name)
		}
	}

	// Fall back to embedded test suites.
	// Use path.Join (not filepath.Join) because embed.FS always uses forward slashes.
	subFS, err := fs.Sub(embeddedSuites, path.Join("testdata", name))
	if err != nil {
		return nil, fmt.Errorf("test suite %q not found: %w", name, err)
	}
	return loadFromFS(subFS, name)
}

// List returns the names of all available test suites.
func List(externalDir string) ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	entries, err := fs.ReadDir(embeddedSuites, "testdata")
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				seen[e.Name()] = true
				names = append(names, e.Name())
			}
		}
	}

	if externalDir != "" {
		entries, err := os.ReadDir(externalDir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() && !seen[e.Name()] {
					names = append(names, e.Name())
				}
			}
		}
	}

	return names, nil
}

// LoadQuestionsFile reads questions from a standalone Mintaka JSON or CSV file.
func LoadQuestionsFile(filename string) ([]Question, error) {
	return loadQuestionsFromFS(os.DirFS(filepath.Dir(filename)), filepath.Base(filename))
}

func loadFromFS(fsys fs.FS, name string) (*TestSuite, error) {
	configData, err := fs.ReadFile(fsys, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read config.yaml for suite %q: %w", name, err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(configData, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse config.yaml for suite %q: %w", name, err)
	}

	if len(suite.Strategies) == 0 {
		suite.Strategies = append([]string(nil), DefaultStrategies...)
	}
	if suite.QuestionsFile == "" {
		suite.QuestionsFile = "questions.json"
	}
	if suite.Retrieval.TopK < 0 {
		return nil, fmt.Errorf("suite %q: retrieval.top_k must not be negative", name)
	}
	for answerType, n := range suite.Sampling.PerAnswerType {
		if n < 0 {
			return nil, fmt.Errorf("suite %q: sample size for %q must not be negative", name, answerType)
		}
	}

	questions, err := loadQuestionsFromFS(fsys, suite.QuestionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for suite %q: %w", name, err)
	}
	suite.Questions = questions

	return &suite, nil
}

func loadQuestionsFromFS(fsys fs.FS, filename string) ([]Question, error) {
	f, err := fsys.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer f.Close()

	switch strings.ToLower(path.Ext(filename)) {
	case ".json":
		return readMintakaJSON(f)
	case ".csv":
		return readQuestionsCSV(f)
	default:
		return nil, fmt.Errorf("%s: %w", filename, ErrUnsupportedFormat)
	}
}

// mintakaRecord is one entry of a Mintaka-style dataset.
type mintakaRecord struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   struct {
		AnswerType string  `json:"answerType"`
		Mention    *string `json:"mention"`
	} `json:"answer"`
	Category       string `json:"category"`
	ComplexityType string `json:"complexityType"`
	Context        string `json:"context"`
}

func readMintakaJSON(r io.Reader) ([]Question, error) {
	var records []mintakaRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode questions JSON: %w", err)
	}

	questions := make([]Question, 0, len(records))
	for i, rec := range records {
		if strings.TrimSpace(rec.Question) == "" {
			return nil, fmt.Errorf("record %d has no question", i)
		}
		q := Question{
			ID:         rec.ID,
			Text:       rec.Question,
			Answer:     unknownAnswer,
			AnswerType: orDefault(rec.Answer.AnswerType, unknownType),
			Complexity: orDefault(rec.ComplexityType, unknownType),
			Category:   rec.Category,
			Context:    rec.Context,
		}
		if rec.Answer.Mention != nil {
			q.Answer = *rec.Answer.Mention
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("%d", i+1)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func readQuestionsCSV(r io.Reader) ([]Question, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // Allow variable field counts.

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}

	for _, required := range []string{"ID", "Question", "Answer"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required CSV column: %s", required)
		}
	}

	field := func(record []string, col string) string {
		idx, ok := colIndex[col]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	var questions []Question
	for lineNum := 2; ; lineNum++ { // lineNum starts at 2 (1-indexed, after header).
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", lineNum, err)
		}
		if colIndex["Question"] >= len(record) {
			return nil, fmt.Errorf("CSV row %d has %d columns, missing Question", lineNum, len(record))
		}

		questions = append(questions, Question{
			ID:         field(record, "ID"),
			Text:       field(record, "Question"),
			Answer:     orDefault(field(record, "Answer"), unknownAnswer),
			AnswerType: orDefault(field(record, "AnswerType"), unknownType),
			Complexity: orDefault(field(record, "Complexity"), unknownType),
			Category:   field(record, "Category"),
			Context:    field(record, "Context"),
		})
	}

	return questions, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
