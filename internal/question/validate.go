package question

import (
	"fmt"
	"strings"
)

// ValidationError reports the first offending field of an input.
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

func normalizeInput(in QuestionInput) (QuestionInput, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.AcademicYear = strings.TrimSpace(in.AcademicYear)
	in.Topic = strings.TrimSpace(in.Topic)
	in.Explanation = strings.TrimSpace(in.Explanation)

	if in.Subject == "" {
		return in, invalid("subject", "is required")
	}
	if in.AcademicYear == "" {
		return in, invalid("academic_year", "is required")
	}
	d, ok := ParseDifficulty(string(in.Difficulty))
	if !ok {
		return in, invalid("difficulty", "must be one of Beginner, Intermediate, Advanced, Expert")
	}
	in.Difficulty = d

	switch in.Prompt.Kind {
	case QuestionAnswerPair:
		in.Prompt = PairPrompt(in.Prompt.Question, in.Prompt.Answer)
	default:
		in.Prompt = PlainPrompt(in.Prompt.Text)
	}
	if in.Prompt.Body() == "" {
		return in, invalid("prompt", "question text is required")
	}

	opts := make([]string, 0, len(in.Options))
	for i, o := range in.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return in, invalid("options", fmt.Sprintf("option %d is empty", i))
		}
		opts = append(opts, o)
	}
	if len(opts) < 2 {
		return in, invalid("options", "at least two options are required")
	}
	in.Options = opts

	if in.CorrectAnswer < 0 || in.CorrectAnswer >= len(opts) {
		return in, invalid("correct_answer", fmt.Sprintf("must be an index between 0 and %d", len(opts)-1))
	}
	return in, nil
}

func normalizeListFilter(f ListFilter) ListFilter {
	f.Subject = strings.TrimSpace(f.Subject)
	f.AcademicYear = strings.TrimSpace(f.AcademicYear)
	f.Topic = strings.TrimSpace(f.Topic)
	f.Search = strings.TrimSpace(f.Search)
	if d, ok := ParseDifficulty(string(f.Difficulty)); ok {
		f.Difficulty = d
	} else {
		f.Difficulty = ""
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
