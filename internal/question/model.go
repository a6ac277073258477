package question

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Difficulty string

const (
	Beginner     Difficulty = "Beginner"
	Intermediate Difficulty = "Intermediate"
	Advanced     Difficulty = "Advanced"
	Expert       Difficulty = "Expert"
)

// Difficulties lists the levels in the order generation walks them.
var Difficulties = []Difficulty{Beginner, Intermediate, Advanced, Expert}

// ParseDifficulty accepts any casing of a known label.
func ParseDifficulty(v string) (Difficulty, bool) {
	v = strings.TrimSpace(v)
	for _, d := range Difficulties {
		if strings.EqualFold(v, string(d)) {
			return d, true
		}
	}
	return "", false
}

type PromptKind string

const (
	PlainText          PromptKind = "plain_text"
	QuestionAnswerPair PromptKind = "qa_pair"
)

// Prompt is the question body. Legacy rows stored either a bare string or a
// {question, answer} object; both decode into this one shape.
type Prompt struct {
	Kind     PromptKind `json:"kind"`
	Text     string     `json:"text,omitempty"`
	Question string     `json:"question,omitempty"`
	Answer   string     `json:"answer,omitempty"`
}

func PlainPrompt(text string) Prompt {
	return Prompt{Kind: PlainText, Text: strings.TrimSpace(text)}
}

func PairPrompt(question, answer string) Prompt {
	return Prompt{Kind: QuestionAnswerPair, Question: strings.TrimSpace(question), Answer: strings.TrimSpace(answer)}
}

// Body returns the question text regardless of kind.
func (p Prompt) Body() string {
	if p.Kind == QuestionAnswerPair {
		return p.Question
	}
	return p.Text
}

func (p *Prompt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = Prompt{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PlainPrompt(s)
		return nil
	}

	var obj struct {
		Kind     PromptKind `json:"kind"`
		Text     string     `json:"text"`
		Question string     `json:"question"`
		Answer   string     `json:"answer"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("prompt must be a string or an object: %w", err)
	}
	switch {
	case obj.Kind == PlainText || (obj.Kind == "" && obj.Question == "" && obj.Text != ""):
		*p = PlainPrompt(obj.Text)
	case obj.Kind == QuestionAnswerPair || obj.Question != "":
		*p = PairPrompt(obj.Question, obj.Answer)
	default:
		return fmt.Errorf("unknown prompt kind %q", obj.Kind)
	}
	return nil
}

type Question struct {
	ID            int64      `json:"id"`
	Subject       string     `json:"subject"`
	AcademicYear  string     `json:"academic_year"`
	Difficulty    Difficulty `json:"difficulty"`
	Topic         string     `json:"topic,omitempty"`
	Prompt        Prompt     `json:"prompt"`
	Options       []string   `json:"options"`
	CorrectAnswer int        `json:"correct_answer"`
	Explanation   string     `json:"explanation,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedBy     *int64     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type QuestionInput struct {
	Subject       string     `json:"subject"`
	AcademicYear  string     `json:"academic_year"`
	Difficulty    Difficulty `json:"difficulty"`
	Topic         string     `json:"topic"`
	Prompt        Prompt     `json:"prompt"`
	Options       []string   `json:"options"`
	CorrectAnswer int        `json:"correct_answer"`
	Explanation   string     `json:"explanation"`
}

type ListFilter struct {
	Subject         string
	AcademicYear    string
	Difficulty      Difficulty
	Topic           string
	Search          string
	IncludeInactive bool
	Limit           int
	Offset          int
}

// PoolFilter selects the active questions a test may draw from. An empty
// Topics slice means no topic restriction.
type PoolFilter struct {
	Subject      string
	AcademicYear string
	Topics       []string
}
