package report

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"qbank/internal/question"
)

// Coverage summarises the bank for one subject and academic year so editors
// can see which distributions a generation request can satisfy.
type Coverage struct {
	Subject      string                      `json:"subject"`
	AcademicYear string                      `json:"academic_year"`
	Active       int                         `json:"active"`
	Inactive     int                         `json:"inactive"`
	ByDifficulty map[question.Difficulty]int `json:"by_difficulty"`
	Topics       []TopicCount                `json:"topics"`
}

type TopicCount struct {
	Topic  string `json:"topic"`
	Active int    `json:"active"`
}

type Filter struct {
	Subject      string
	AcademicYear string
}

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type coverageRow struct {
	subject      string
	academicYear string
	difficulty   question.Difficulty
	topic        string
	active       int
	inactive     int
}

func (s *Service) Coverage(ctx context.Context, f Filter) ([]Coverage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject, academic_year, difficulty, topic,
		       COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE NOT is_active)
		FROM questions
		WHERE ($1 = '' OR subject = $1)
		  AND ($2 = '' OR academic_year = $2)
		GROUP BY subject, academic_year, difficulty, topic
	`, strings.TrimSpace(f.Subject), strings.TrimSpace(f.AcademicYear))
	if err != nil {
		return nil, fmt.Errorf("query coverage: %w", err)
	}
	defer rows.Close()

	var items []coverageRow
	for rows.Next() {
		var r coverageRow
		if err := rows.Scan(&r.subject, &r.academicYear, &r.difficulty, &r.topic, &r.active, &r.inactive); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coverage: %w", err)
	}
	return summarize(items), nil
}

func summarize(items []coverageRow) []Coverage {
	type groupKey struct{ subject, year string }
	groups := make(map[groupKey]*Coverage)
	topics := make(map[groupKey]map[string]int)

	for _, r := range items {
		k := groupKey{r.subject, r.academicYear}
		c, ok := groups[k]
		if !ok {
			c = &Coverage{Subject: r.subject, AcademicYear: r.academicYear, ByDifficulty: make(map[question.Difficulty]int)}
			for _, d := range question.Difficulties {
				c.ByDifficulty[d] = 0
			}
			groups[k] = c
			topics[k] = make(map[string]int)
		}
		c.Active += r.active
		c.Inactive += r.inactive
		c.ByDifficulty[r.difficulty] += r.active
		if r.topic != "" && r.active > 0 {
			topics[k][r.topic] += r.active
		}
	}

	out := make([]Coverage, 0, len(groups))
	for k, c := range groups {
		c.Topics = make([]TopicCount, 0, len(topics[k]))
		for t, n := range topics[k] {
			c.Topics = append(c.Topics, TopicCount{Topic: t, Active: n})
		}
		sort.Slice(c.Topics, func(i, j int) bool { return c.Topics[i].Topic < c.Topics[j].Topic })
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subject != out[j].Subject {
			return out[i].Subject < out[j].Subject
		}
		return out[i].AcademicYear < out[j].AcademicYear
	})
	return out
}
