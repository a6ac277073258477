package question

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"qbank/internal/cache"
)

const suggestionsKey = "question_suggestions"

// SuggestionSet is the autocomplete projection for the admin search boxes.
type SuggestionSet struct {
	Subjects      []string `json:"subjects"`
	AcademicYears []string `json:"academic_years"`
	Topics        []string `json:"topics"`
}

type jsonCache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Suggestions is recomputed from the question table on demand and held in
// Redis for ttl. Without a cache every call goes to the database.
type Suggestions struct {
	cache   jsonCache
	ttl     time.Duration
	logger  *zap.Logger
	compute func(ctx context.Context) (*SuggestionSet, error)
}

func NewSuggestions(c jsonCache, ttl time.Duration, logger *zap.Logger) *Suggestions {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suggestions{cache: c, ttl: ttl, logger: logger}
}

func (s *Suggestions) Get(ctx context.Context) (*SuggestionSet, error) {
	if s.compute == nil {
		return nil, errors.New("suggestions source not configured")
	}
	if s.cache != nil {
		var cached SuggestionSet
		err := s.cache.GetJSON(ctx, suggestionsKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("suggestions cache read failed", zap.Error(err))
		}
	}

	set, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, suggestionsKey, set, s.ttl); err != nil {
			s.logger.Warn("suggestions cache write failed", zap.Error(err))
		}
	}
	return set, nil
}

func (s *Suggestions) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, suggestionsKey); err != nil {
		s.logger.Warn("suggestions cache invalidate failed", zap.Error(err))
	}
}

func (s *Service) Suggestions(ctx context.Context) (*SuggestionSet, error) {
	return s.suggestions.Get(ctx)
}

func (s *Service) computeSuggestions(ctx context.Context) (*SuggestionSet, error) {
	out := &SuggestionSet{}
	var err error
	if out.Subjects, err = s.distinct(ctx, "subject"); err != nil {
		return nil, err
	}
	if out.AcademicYears, err = s.distinct(ctx, "academic_year"); err != nil {
		return nil, err
	}
	if out.Topics, err = s.distinct(ctx, "topic"); err != nil {
		return nil, err
	}
	return out, nil
}

// distinct only accepts the fixed column names above.
func (s *Service) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT `+column+`
		FROM questions
		WHERE is_active = TRUE AND `+column+` <> ''
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query distinct %s: %w", column, err)
	}
	defer rows.Close()

	items := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct %s: %w", column, err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct %s: %w", column, err)
	}
	return items, nil
}
