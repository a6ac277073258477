package testseries

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qbank/internal/question"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInsufficientQuestions = errors.New("insufficient questions")
	ErrTestNotFound          = errors.New("test not found")
	ErrPresetNotFound        = errors.New("preset not found")
)

// ValidationError rejects a generation request before any query runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// InsufficientQuestionsError reports a pool that stayed smaller than the
// requested size even after the topic filter was dropped.
type InsufficientQuestionsError struct {
	Available int `json:"available"`
	Requested int `json:"requested"`
}

func (e *InsufficientQuestionsError) Error() string {
	return fmt.Sprintf("insufficient questions: %d available, %d requested", e.Available, e.Requested)
}

func (e *InsufficientQuestionsError) Is(target error) bool {
	return target == ErrInsufficientQuestions
}

type DistributionMode string

const (
	ModeCount   DistributionMode = "count"
	ModePercent DistributionMode = "percent"
)

// Distribution maps a difficulty to the number of questions wanted at that level.
type Distribution map[question.Difficulty]int

// Sum adds up the requested counts.
func (d Distribution) Sum() int {
	n := 0
	for _, v := range d {
		n += v
	}
	return n
}

// TopicFilter is either the "all" sentinel or an explicit allow-list.
type TopicFilter struct {
	All    bool
	Topics []string
}

func AllTopics() TopicFilter {
	return TopicFilter{All: true}
}

func OnlyTopics(topics ...string) TopicFilter {
	clean := make([]string, 0, len(topics))
	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		clean = append(clean, t)
	}
	if len(clean) == 0 {
		return AllTopics()
	}
	return TopicFilter{Topics: clean}
}

// Restricted reports whether the filter narrows the pool at all.
func (f TopicFilter) Restricted() bool {
	return !f.All && len(f.Topics) > 0
}

func (f TopicFilter) MarshalJSON() ([]byte, error) {
	if !f.Restricted() {
		return []byte(`"all"`), nil
	}
	return json.Marshal(f.Topics)
}

func (f *TopicFilter) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = AllTopics()
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.EqualFold(strings.TrimSpace(s), "all") || strings.TrimSpace(s) == "" {
			*f = AllTopics()
			return nil
		}
		*f = OnlyTopics(s)
		return nil
	}
	var topics []string
	if err := json.Unmarshal(data, &topics); err != nil {
		return fmt.Errorf("topics must be \"all\" or a list of strings: %w", err)
	}
	*f = OnlyTopics(topics...)
	return nil
}

type GenerateRequest struct {
	Subject                string           `json:"subject"`
	AcademicYear           string           `json:"academic_year"`
	TotalQuestions         int              `json:"total_questions"`
	DifficultyDistribution map[string]int   `json:"difficulty_distribution"`
	DistributionMode       DistributionMode `json:"distribution_mode"`
	Topics                 TopicFilter      `json:"topics"`
	DurationMinutes        int              `json:"duration_minutes"`
	Preset                 string           `json:"preset"`
}

type Test struct {
	ID                     int64               `json:"id"`
	Subject                string              `json:"subject"`
	AcademicYear           string              `json:"academic_year"`
	DurationMinutes        int                 `json:"duration_minutes"`
	TotalQuestions         int                 `json:"total_questions"`
	QuestionIDs            []int64             `json:"question_ids"`
	DifficultyDistribution Distribution        `json:"difficulty_distribution"`
	Topics                 TopicFilter         `json:"topics"`
	IsPublished            bool                `json:"is_published"`
	ShareCode              *string             `json:"share_code,omitempty"`
	CreatedBy              *int64              `json:"created_by,omitempty"`
	CreatedAt              time.Time           `json:"created_at"`
	Questions              []question.Question `json:"questions,omitempty"`
}

type ListFilter struct {
	Subject      string
	AcademicYear string
	Published    *bool
	Limit        int
	Offset       int
}

// PublicTest is what a student sees through a share code. It never carries
// answers.
type PublicTest struct {
	Subject         string           `json:"subject"`
	AcademicYear    string           `json:"academic_year"`
	DurationMinutes int              `json:"duration_minutes"`
	TotalQuestions  int              `json:"total_questions"`
	Questions       []PublicQuestion `json:"questions"`
}

type PublicQuestion struct {
	Number     int                 `json:"number"`
	Difficulty question.Difficulty `json:"difficulty"`
	Topic      string              `json:"topic,omitempty"`
	Prompt     string              `json:"prompt"`
	Options    []string            `json:"options"`
}

func publicView(t *Test) *PublicTest {
	out := &PublicTest{
		Subject:         t.Subject,
		AcademicYear:    t.AcademicYear,
		DurationMinutes: t.DurationMinutes,
		TotalQuestions:  t.TotalQuestions,
		Questions:       make([]PublicQuestion, 0, len(t.Questions)),
	}
	for i, q := range t.Questions {
		out.Questions = append(out.Questions, PublicQuestion{
			Number:     i + 1,
			Difficulty: q.Difficulty,
			Topic:      q.Topic,
			Prompt:     q.Prompt.Body(),
			Options:    append([]string(nil), q.Options...),
		})
	}
	return out
}
