package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/strategy-eval/internal/scorer"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Run is a stored benchmark run with one summary per strategy.
type Run struct {
	ID         string                    `json:"id"`
	Suite      string                    `json:"suite"`
	Model      string                    `json:"model"`
	Timestamp  time.Time                 `json:"timestamp"`
	Duration   time.Duration             `json:"duration"`
	Strategies map[string]scorer.Summary `json:"strategies"`
}

// Answer is one graded answer of a stored run.
type Answer struct {
	ID         string        `json:"id"`
	RunID      string        `json:"run_id"`
	Strategy   string        `json:"strategy"`
	QuestionID string        `json:"question_id"`
	AnswerType string        `json:"answer_type"`
	Complexity string        `json:"complexity"`
	Gold       string        `json:"gold"`
	Answer     string        `json:"answer"`
	Score      float64       `json:"score"`
	Enumerated bool          `json:"enumerated"`
	Gradable   bool          `json:"gradable"`
	WordCount  int           `json:"word_count"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

type SQLStore struct {
	db     *sql.DB
	driver Driver
}

func NewSQLStore(db *sql.DB, driver Driver) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Record saves a finished run and all of its answers in one transaction.
// Recording a run again replaces its answers.
func (s *SQLStore) Record(ctx context.Context, run *testsuite.TestRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveRun(ctx, tx, run); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE run_id=$1`, run.ID); err != nil {
		return err
	}
	for _, sr := range run.Strategies {
		if err := saveAnswers(ctx, tx, run.ID, sr.Strategy, sr.Results); err != nil {
			return fmt.Errorf("failed to save %s answers: %w", sr.Strategy, err)
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveRun(ctx context.Context, db execer, run *testsuite.TestRun) error {
	summaries := make(map[string]scorer.Summary, len(run.Strategies))
	for _, sr := range run.Strategies {
		summaries[sr.Strategy] = sr.Summary
	}
	sj, err := json.Marshal(summaries)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO runs (id,suite,model,created_at,duration_ms,summary_json)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET suite=EXCLUDED.suite, model=EXCLUDED.model, duration_ms=EXCLUDED.duration_ms, summary_json=EXCLUDED.summary_json`,
		run.ID, run.Suite, run.Model, run.Timestamp.Unix(), run.Duration.Milliseconds(), string(sj))
	return err
}

func saveAnswers(ctx context.Context, db execer, runID, strategy string, results []*testsuite.Result) error {
	for i, r := range results {
		_, err := db.ExecContext(ctx, `INSERT INTO answers
			(id,run_id,strategy,position,question_id,answer_type,complexity,gold,answer,score,enumerated,gradable,word_count,error,duration_ms)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			uuid.NewString(), runID, strategy, i,
			r.Question.ID, r.Question.AnswerType, r.Question.Complexity, r.Question.Answer,
			r.Answer, r.Score, boolToInt(r.Enumerated), boolToInt(r.Gradable), r.WordCount, r.Error,
			r.Duration.Milliseconds())
		if err != nil {
			return err
		}
	}
	return nil
}

// ListRuns returns stored runs, newest first.
func (s *SQLStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,suite,model,created_at,duration_ms,summary_json FROM runs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns a single run, or ErrNotFound.
func (s *SQLStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,suite,model,created_at,duration_ms,summary_json FROM runs WHERE id=$1`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// Answers returns the answers of a run in question order. An empty strategy
// returns the answers of every strategy.
func (s *SQLStore) Answers(ctx context.Context, runID, strategy string) ([]Answer, error) {
	query := `SELECT id,run_id,strategy,question_id,answer_type,complexity,gold,answer,score,enumerated,gradable,word_count,error,duration_ms
		FROM answers WHERE run_id=$1`
	args := []any{runID}
	if strategy != "" {
		query += ` AND strategy=$2`
		args = append(args, strategy)
	}
	query += ` ORDER BY strategy, position`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Answer
	for rows.Next() {
		var (
			a                    Answer
			enumerated, gradable int
			durationMs           int64
		)
		if err := rows.Scan(&a.ID, &a.RunID, &a.Strategy, &a.QuestionID, &a.AnswerType, &a.Complexity,
			&a.Gold, &a.Answer, &a.Score, &enumerated, &gradable, &a.WordCount, &a.Error, &durationMs); err != nil {
			return nil, err
		}
		a.Enumerated = enumerated != 0
		a.Gradable = gradable != 0
		a.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its answers.
func (s *SQLStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE run_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r          Run
		createdAt  int64
		durationMs int64
		sj         string
	)
	if err := row.Scan(&r.ID, &r.Suite, &r.Model, &createdAt, &durationMs, &sj); err != nil {
		return Run{}, err
	}
	r.Timestamp = time.Unix(createdAt, 0).UTC()
	r.Duration = time.Duration(durationMs) * time.Millisecond
	if err := json.Unmarshal([]byte(sj), &r.Strategies); err != nil {
		return Run{}, fmt.Errorf("failed to decode summaries of run %s: %w", r.ID, err)
	}
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
