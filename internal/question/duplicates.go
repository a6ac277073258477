package question

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// duplicatePrefixRunes is how much of a question's text is compared against
// the other question of a pair.
const duplicatePrefixRunes = 20

type DuplicateGroup struct {
	Subject      string     `json:"subject"`
	AcademicYear string     `json:"academic_year"`
	Difficulty   Difficulty `json:"difficulty"`
}

type DuplicateRef struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// DuplicatePair is a candidate for human review, not a verdict.
type DuplicatePair struct {
	Group  DuplicateGroup `json:"group"`
	First  DuplicateRef   `json:"first"`
	Second DuplicateRef   `json:"second"`
}

type DuplicateFilter struct {
	Subject      string
	AcademicYear string
}

func (s *Service) FindDuplicates(ctx context.Context, f DuplicateFilter) ([]DuplicatePair, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE is_active = TRUE`
	args := make([]any, 0, 2)
	if v := strings.TrimSpace(f.Subject); v != "" {
		args = append(args, v)
		query += fmt.Sprintf(" AND subject = $%d", len(args))
	}
	if v := strings.TrimSpace(f.AcademicYear); v != "" {
		args = append(args, v)
		query += fmt.Sprintf(" AND academic_year = $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query duplicate candidates: %w", err)
	}
	items, err := collectQuestions(rows)
	if err != nil {
		return nil, err
	}
	return DetectDuplicates(items), nil
}

// DetectDuplicates groups active questions by subject, academic year and
// difficulty and flags a pair when the case-folded text of one contains the
// case-folded first 20 runes of the other.
func DetectDuplicates(items []Question) []DuplicatePair {
	type entry struct {
		id     int64
		text   string
		folded string
		prefix string
	}

	fold := cases.Fold()
	groups := make(map[DuplicateGroup][]entry)
	for _, q := range items {
		if !q.IsActive {
			continue
		}
		text := strings.TrimSpace(q.Prompt.Body())
		if text == "" {
			continue
		}
		folded := fold.String(text)
		g := DuplicateGroup{Subject: q.Subject, AcademicYear: q.AcademicYear, Difficulty: q.Difficulty}
		groups[g] = append(groups[g], entry{
			id:     q.ID,
			text:   text,
			folded: folded,
			prefix: leadingRunes(folded, duplicatePrefixRunes),
		})
	}

	keys := make([]DuplicateGroup, 0, len(groups))
	for g := range groups {
		keys = append(keys, g)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Subject != keys[j].Subject {
			return keys[i].Subject < keys[j].Subject
		}
		if keys[i].AcademicYear != keys[j].AcademicYear {
			return keys[i].AcademicYear < keys[j].AcademicYear
		}
		return difficultyRank(keys[i].Difficulty) < difficultyRank(keys[j].Difficulty)
	})

	out := make([]DuplicatePair, 0)
	for _, g := range keys {
		members := groups[g]
		sort.Slice(members, func(i, j int) bool { return members[i].id < members[j].id })
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				a, b := members[i], members[j]
				if strings.Contains(a.folded, b.prefix) || strings.Contains(b.folded, a.prefix) {
					out = append(out, DuplicatePair{
						Group:  g,
						First:  DuplicateRef{ID: a.id, Text: a.text},
						Second: DuplicateRef{ID: b.id, Text: b.text},
					})
				}
			}
		}
	}
	return out
}

func leadingRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func difficultyRank(d Difficulty) int {
	for i, v := range Difficulties {
		if v == d {
			return i
		}
	}
	return len(Difficulties)
}
