package testseries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	internaldb "qbank/internal/db"
	"qbank/internal/question"
)

type questionSource interface {
	ListPool(ctx context.Context, f question.PoolFilter) ([]question.Question, error)
	GetQuestionsByIDs(ctx context.Context, ids []int64) ([]question.Question, error)
}

// GenerationRecorder receives one call per generation attempt.
type GenerationRecorder interface {
	IncTestsGenerated()
	IncGenerationFailures()
}

type ServiceConfig struct {
	DefaultTotalQuestions  int
	DefaultDurationMinutes int
	Presets                *PresetStore
	Generator              *Generator
	Recorder               GenerationRecorder
	Logger                 *zap.Logger
}

type Service struct {
	db        *sql.DB
	questions questionSource
	gen       *Generator
	presets   *PresetStore
	recorder  GenerationRecorder
	logger    *zap.Logger
	insert    func(ctx context.Context, t *Test) error

	defaultTotal    int
	defaultDuration int
}

type noopRecorder struct{}

func (noopRecorder) IncTestsGenerated()     {}
func (noopRecorder) IncGenerationFailures() {}

const testColumns = `t.id, t.subject, t.academic_year, t.duration_minutes, t.total_questions,
	t.difficulty_distribution, t.topics, t.is_published, t.share_code::text, t.created_by, t.created_at,
	COALESCE((
		SELECT json_agg(tq.question_id ORDER BY tq.seq_no)
		FROM test_questions tq
		WHERE tq.test_id = t.id
	), '[]'::json)`

func NewService(db *sql.DB, questions questionSource, cfg ServiceConfig) *Service {
	if cfg.DefaultTotalQuestions <= 0 {
		cfg.DefaultTotalQuestions = 20
	}
	if cfg.DefaultDurationMinutes <= 0 {
		cfg.DefaultDurationMinutes = 60
	}
	if cfg.Presets == nil {
		cfg.Presets = NewPresetStore()
	}
	if cfg.Generator == nil {
		cfg.Generator = NewGenerator(nil)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Service{
		db:              db,
		questions:       questions,
		gen:             cfg.Generator,
		presets:         cfg.Presets,
		recorder:        cfg.Recorder,
		logger:          cfg.Logger,
		defaultTotal:    cfg.DefaultTotalQuestions,
		defaultDuration: cfg.DefaultDurationMinutes,
	}
	s.insert = s.insertTest
	return s
}

const maxTotalQuestions = 10000

type generationPlan struct {
	subject      string
	academicYear string
	total        int
	duration     int
	distribution Distribution
	topics       TopicFilter
}

func (s *Service) plan(req GenerateRequest) (generationPlan, error) {
	p := generationPlan{
		subject:      strings.TrimSpace(req.Subject),
		academicYear: strings.TrimSpace(req.AcademicYear),
		total:        req.TotalQuestions,
		duration:     req.DurationMinutes,
		topics:       req.Topics,
	}
	rawDist := req.DifficultyDistribution
	mode := req.DistributionMode

	if p.subject == "" {
		return p, invalid("subject", "is required")
	}
	if p.academicYear == "" {
		return p, invalid("academic_year", "is required")
	}

	if name := strings.TrimSpace(req.Preset); name != "" {
		preset, err := s.presets.Lookup(name)
		if err != nil {
			return p, invalid("preset", fmt.Sprintf("unknown preset %q", name))
		}
		if len(rawDist) == 0 {
			rawDist = preset.Distribution
			mode = preset.Mode
		}
		if p.total == 0 {
			p.total = preset.TotalQuestions
		}
		if p.duration == 0 {
			p.duration = preset.DurationMinutes
		}
	}

	if p.total == 0 {
		p.total = s.defaultTotal
	}
	if p.total < 0 {
		return p, invalid("total_questions", "must be positive")
	}
	if p.total > maxTotalQuestions {
		return p, invalid("total_questions", fmt.Sprintf("must not exceed %d", maxTotalQuestions))
	}
	if p.duration == 0 {
		p.duration = s.defaultDuration
	}
	if p.duration < 0 {
		return p, invalid("duration_minutes", "must be positive")
	}

	dist, err := resolveDistribution(rawDist, mode, p.total)
	if err != nil {
		return p, err
	}
	p.distribution = dist
	return p, nil
}

// Generate builds and stores a new test. Nothing is written unless a full set
// of questions was selected.
func (s *Service) Generate(ctx context.Context, actorID int64, req GenerateRequest) (*Test, error) {
	p, err := s.plan(req)
	if err != nil {
		return nil, err
	}

	t, err := s.generate(ctx, actorID, p)
	if err != nil {
		s.recorder.IncGenerationFailures()
		return nil, err
	}
	s.recorder.IncTestsGenerated()
	s.logger.Info("test generated",
		zap.Int64("test_id", t.ID),
		zap.String("subject", t.Subject),
		zap.String("academic_year", t.AcademicYear),
		zap.Int("total_questions", t.TotalQuestions),
	)
	return t, nil
}

func (s *Service) generate(ctx context.Context, actorID int64, p generationPlan) (*Test, error) {
	filter := question.PoolFilter{Subject: p.subject, AcademicYear: p.academicYear}
	if p.topics.Restricted() {
		filter.Topics = p.topics.Topics
	}
	pool, err := s.questions.ListPool(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}

	if len(pool) < p.total && len(filter.Topics) > 0 {
		s.logger.Info("relaxing topic filter",
			zap.String("subject", p.subject),
			zap.String("academic_year", p.academicYear),
			zap.Strings("topics", filter.Topics),
			zap.Int("available", len(pool)),
			zap.Int("requested", p.total),
		)
		filter.Topics = nil
		pool, err = s.questions.ListPool(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("load relaxed question pool: %w", err)
		}
	}
	if len(pool) < p.total {
		return nil, &InsufficientQuestionsError{Available: len(pool), Requested: p.total}
	}

	picked, err := s.gen.Select(pool, p.total, p.distribution)
	if err != nil {
		return nil, err
	}

	t := &Test{
		Subject:                p.subject,
		AcademicYear:           p.academicYear,
		DurationMinutes:        p.duration,
		TotalQuestions:         len(picked),
		QuestionIDs:            make([]int64, 0, len(picked)),
		DifficultyDistribution: p.distribution,
		Topics:                 p.topics,
		Questions:              picked,
	}
	for _, q := range picked {
		t.QuestionIDs = append(t.QuestionIDs, q.ID)
	}
	if actorID > 0 {
		t.CreatedBy = &actorID
	}

	if err := s.insert(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// insertTest writes the test row and its ordered question references in one
// transaction.
func (s *Service) insertTest(ctx context.Context, t *Test) error {
	distRaw, err := json.Marshal(t.DifficultyDistribution)
	if err != nil {
		return fmt.Errorf("marshal distribution: %w", err)
	}
	topicsRaw, err := json.Marshal(t.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}

	return internaldb.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		var createdBy int64
		if t.CreatedBy != nil {
			createdBy = *t.CreatedBy
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO tests (
				subject, academic_year, duration_minutes, total_questions,
				difficulty_distribution, topics, is_published, created_by, created_at
			) VALUES (
				$1, $2, $3, $4, $5::jsonb, $6::jsonb, FALSE, NULLIF($7::bigint, 0), now()
			)
			RETURNING id, created_at
		`, t.Subject, t.AcademicYear, t.DurationMinutes, t.TotalQuestions, distRaw, topicsRaw, createdBy).Scan(&t.ID, &t.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert test: %w", err)
		}

		for i, qid := range t.QuestionIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO test_questions (test_id, question_id, seq_no)
				VALUES ($1, $2, $3)
			`, t.ID, qid, i+1); err != nil {
				return fmt.Errorf("insert test question: %w", err)
			}
		}
		return nil
	})
}

// GetTest returns the test with its questions in stored order.
func (s *Service) GetTest(ctx context.Context, id int64) (*Test, error) {
	if id <= 0 {
		return nil, ErrTestNotFound
	}
	t, err := scanTest(s.db.QueryRowContext(ctx, `
		SELECT `+testColumns+`
		FROM tests t
		WHERE t.id = $1
	`, id))
	if err != nil {
		return nil, err
	}
	if err := s.resolveQuestions(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) ListTests(ctx context.Context, f ListFilter) ([]Test, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := `SELECT ` + testColumns + ` FROM tests t WHERE 1=1`
	args := make([]any, 0, 5)
	add := func(cond string, v any) {
		args = append(args, v)
		query += " AND " + strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args)))
	}
	if v := strings.TrimSpace(f.Subject); v != "" {
		add("t.subject = ?", v)
	}
	if v := strings.TrimSpace(f.AcademicYear); v != "" {
		add("t.academic_year = ?", v)
	}
	if f.Published != nil {
		add("t.is_published = ?", *f.Published)
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY t.created_at DESC, t.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	out := make([]Test, 0, f.Limit)
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tests: %w", err)
	}
	return out, nil
}

// Publish marks the test visible through its share code. The code is
// assigned on first publish and kept across unpublish/publish cycles.
func (s *Service) Publish(ctx context.Context, id int64) (*Test, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tests
		SET is_published = TRUE,
			share_code = COALESCE(share_code, $2::uuid)
		WHERE id = $1
	`, id, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("publish test: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrTestNotFound
	}
	return s.GetTest(ctx, id)
}

func (s *Service) Unpublish(ctx context.Context, id int64) (*Test, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tests
		SET is_published = FALSE
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("unpublish test: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrTestNotFound
	}
	return s.GetTest(ctx, id)
}

// GetPublishedByCode returns the student view of a published test.
// Unpublished and unknown codes are indistinguishable.
func (s *Service) GetPublishedByCode(ctx context.Context, code string) (*PublicTest, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(code))
	if err != nil {
		return nil, ErrTestNotFound
	}
	t, err := scanTest(s.db.QueryRowContext(ctx, `
		SELECT `+testColumns+`
		FROM tests t
		WHERE t.share_code = $1::uuid AND t.is_published = TRUE
	`, parsed.String()))
	if err != nil {
		return nil, err
	}
	if err := s.resolveQuestions(ctx, t); err != nil {
		return nil, err
	}
	return publicView(t), nil
}

func (s *Service) Presets() []Preset {
	return s.presets.All()
}

func (s *Service) resolveQuestions(ctx context.Context, t *Test) error {
	qs, err := s.questions.GetQuestionsByIDs(ctx, t.QuestionIDs)
	if err != nil {
		return fmt.Errorf("resolve test questions: %w", err)
	}
	t.Questions = qs
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTest(row rowScanner) (*Test, error) {
	var (
		t         Test
		distRaw   []byte
		topicsRaw []byte
		idsRaw    []byte
		shareCode sql.NullString
		createdBy sql.NullInt64
	)
	if err := row.Scan(
		&t.ID, &t.Subject, &t.AcademicYear, &t.DurationMinutes, &t.TotalQuestions,
		&distRaw, &topicsRaw, &t.IsPublished, &shareCode, &createdBy, &t.CreatedAt, &idsRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("scan test: %w", err)
	}
	if err := json.Unmarshal(distRaw, &t.DifficultyDistribution); err != nil {
		return nil, fmt.Errorf("decode distribution: %w", err)
	}
	if err := json.Unmarshal(topicsRaw, &t.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	if err := json.Unmarshal(idsRaw, &t.QuestionIDs); err != nil {
		return nil, fmt.Errorf("decode question ids: %w", err)
	}
	if shareCode.Valid {
		t.ShareCode = &shareCode.String
	}
	if createdBy.Valid {
		t.CreatedBy = &createdBy.Int64
	}
	return &t, nil
}
