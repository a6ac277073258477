package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	internaldb "qbank/internal/db"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionNotFound = errors.New("question not found")
)

type Service struct {
	db          *sql.DB
	suggestions *Suggestions
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// RowError describes one rejected row of a bulk or spreadsheet import.
type RowError struct {
	Row   int    `json:"row"`
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

// BulkError is returned when any row of a bulk create is invalid; nothing is stored.
type BulkError struct {
	Rows []RowError
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("%d invalid rows", len(e.Rows))
}

func (e *BulkError) Is(target error) bool {
	return target == ErrInvalidInput
}

const questionColumns = `id, subject, academic_year, difficulty, topic, prompt, options,
	correct_answer, explanation, is_active, created_by, created_at, updated_at`

func NewService(db *sql.DB, suggestions *Suggestions) *Service {
	if suggestions == nil {
		suggestions = NewSuggestions(nil, 0, nil)
	}
	s := &Service{db: db, suggestions: suggestions}
	suggestions.compute = s.computeSuggestions
	return s
}

func (s *Service) CreateQuestion(ctx context.Context, actorID int64, in QuestionInput) (*Question, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}
	q, err := insertQuestion(ctx, s.db, actorID, in, true)
	if err != nil {
		return nil, err
	}
	s.suggestions.Invalidate(ctx)
	return q, nil
}

func (s *Service) BulkCreate(ctx context.Context, actorID int64, items []QuestionInput) ([]Question, error) {
	if len(items) == 0 {
		return nil, invalid("questions", "at least one question is required")
	}

	normalized := make([]QuestionInput, 0, len(items))
	var rowErrs []RowError
	for i, item := range items {
		n, err := normalizeInput(item)
		if err != nil {
			re := RowError{Row: i + 1, Error: err.Error()}
			var ve *ValidationError
			if errors.As(err, &ve) {
				re.Field = ve.Field
				re.Error = ve.Message
			}
			rowErrs = append(rowErrs, re)
			continue
		}
		normalized = append(normalized, n)
	}
	if len(rowErrs) > 0 {
		return nil, &BulkError{Rows: rowErrs}
	}

	out := make([]Question, 0, len(normalized))
	err := internaldb.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, in := range normalized {
			q, err := insertQuestion(ctx, tx, actorID, in, true)
			if err != nil {
				return err
			}
			out = append(out, *q)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.suggestions.Invalidate(ctx)
	return out, nil
}

func insertQuestion(ctx context.Context, db rowQueryer, actorID int64, in QuestionInput, active bool) (*Question, error) {
	promptRaw, err := json.Marshal(in.Prompt)
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}
	optionsRaw, err := json.Marshal(in.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	row := db.QueryRowContext(ctx, `
		INSERT INTO questions (
			subject, academic_year, difficulty, topic, prompt, prompt_text, options,
			correct_answer, explanation, is_active, created_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5::jsonb, $6, $7::jsonb, $8, $9, $11, NULLIF($10::bigint, 0), now(), now()
		)
		RETURNING `+questionColumns,
		in.Subject, in.AcademicYear, string(in.Difficulty), in.Topic, promptRaw, in.Prompt.Body(),
		optionsRaw, in.CorrectAnswer, in.Explanation, actorID, active)

	q, err := scanQuestion(row)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return q, nil
}

func (s *Service) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question: %w", err)
	}
	return q, nil
}

// GetQuestionsByIDs returns the questions in the order of ids. Missing ids are skipped.
func (s *Service) GetQuestionsByIDs(ctx context.Context, ids []int64) ([]Question, error) {
	if len(ids) == 0 {
		return []Question{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE id = ANY($1::bigint[])
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query questions by id: %w", err)
	}
	byID, err := collectQuestions(rows)
	if err != nil {
		return nil, err
	}

	index := make(map[int64]Question, len(byID))
	for _, q := range byID {
		index[q.ID] = q
	}
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := index[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *Service) ListQuestions(ctx context.Context, f ListFilter) ([]Question, error) {
	f = normalizeListFilter(f)

	query := `SELECT ` + questionColumns + ` FROM questions WHERE 1=1`
	args := make([]any, 0, 8)
	add := func(cond string, v any) {
		args = append(args, v)
		query += " AND " + strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args)))
	}
	if !f.IncludeInactive {
		query += ` AND is_active = TRUE`
	}
	if f.Subject != "" {
		add("subject = ?", f.Subject)
	}
	if f.AcademicYear != "" {
		add("academic_year = ?", f.AcademicYear)
	}
	if f.Difficulty != "" {
		add("difficulty = ?", string(f.Difficulty))
	}
	if f.Topic != "" {
		add("topic = ?", f.Topic)
	}
	if f.Search != "" {
		add("prompt_text ILIKE ?", "%"+escapeLike(f.Search)+"%")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	return collectQuestions(rows)
}

// ListPool returns every active question of a subject and academic year,
// restricted to Topics when any are given.
func (s *Service) ListPool(ctx context.Context, f PoolFilter) ([]Question, error) {
	query := `
		SELECT ` + questionColumns + `
		FROM questions
		WHERE is_active = TRUE AND subject = $1 AND academic_year = $2
	`
	args := []any{strings.TrimSpace(f.Subject), strings.TrimSpace(f.AcademicYear)}
	if len(f.Topics) > 0 {
		query += ` AND topic = ANY($3::text[])`
		args = append(args, f.Topics)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query question pool: %w", err)
	}
	return collectQuestions(rows)
}

func (s *Service) UpdateQuestion(ctx context.Context, id int64, in QuestionInput) (*Question, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	in, err := normalizeInput(in)
	if err != nil {
		return nil, err
	}
	promptRaw, err := json.Marshal(in.Prompt)
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}
	optionsRaw, err := json.Marshal(in.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE questions
		SET subject = $2, academic_year = $3, difficulty = $4, topic = $5,
			prompt = $6::jsonb, prompt_text = $7, options = $8::jsonb,
			correct_answer = $9, explanation = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+questionColumns,
		id, in.Subject, in.AcademicYear, string(in.Difficulty), in.Topic,
		promptRaw, in.Prompt.Body(), optionsRaw, in.CorrectAnswer, in.Explanation)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("update question: %w", err)
	}
	s.suggestions.Invalidate(ctx)
	return q, nil
}

// DeactivateQuestion is the only delete: the row stays for tests that reference it.
func (s *Service) DeactivateQuestion(ctx context.Context, id int64) error {
	return s.setActive(ctx, id, false)
}

func (s *Service) RestoreQuestion(ctx context.Context, id int64) error {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) error {
	if id <= 0 {
		return ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE questions SET is_active = $2, updated_at = now() WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("set question active: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrQuestionNotFound
	}
	s.suggestions.Invalidate(ctx)
	return nil
}

func scanQuestion(row rowScanner) (*Question, error) {
	var q Question
	var difficulty string
	var promptRaw, optionsRaw []byte
	var createdBy sql.NullInt64
	if err := row.Scan(
		&q.ID,
		&q.Subject,
		&q.AcademicYear,
		&difficulty,
		&q.Topic,
		&promptRaw,
		&optionsRaw,
		&q.CorrectAnswer,
		&q.Explanation,
		&q.IsActive,
		&createdBy,
		&q.CreatedAt,
		&q.UpdatedAt,
	); err != nil {
		return nil, err
	}
	q.Difficulty = Difficulty(difficulty)
	if err := json.Unmarshal(promptRaw, &q.Prompt); err != nil {
		return nil, fmt.Errorf("decode prompt of question %d: %w", q.ID, err)
	}
	if err := json.Unmarshal(optionsRaw, &q.Options); err != nil {
		return nil, fmt.Errorf("decode options of question %d: %w", q.ID, err)
	}
	if createdBy.Valid {
		q.CreatedBy = &createdBy.Int64
	}
	return &q, nil
}

func collectQuestions(rows *sql.Rows) ([]Question, error) {
	defer rows.Close()
	items := make([]Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		items = append(items, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return items, nil
}

func escapeLike(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(v)
}
