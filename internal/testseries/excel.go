package testseries

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	questionsSheet = "Questions"
	answerKeySheet = "Answer Key"
)

func (s *Service) ExportTestExcel(ctx context.Context, id int64) ([]byte, error) {
	t, err := s.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	return WriteTestExcel(t)
}

// WriteTestExcel renders a test as a question sheet for printing plus a
// separate answer key sheet.
func WriteTestExcel(t *Test) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), questionsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(answerKeySheet); err != nil {
		return nil, fmt.Errorf("create answer key sheet: %w", err)
	}

	maxOptions := 0
	for _, q := range t.Questions {
		maxOptions = max(maxOptions, len(q.Options))
	}

	header := []any{"no", "difficulty", "topic", "question"}
	for i := 0; i < maxOptions; i++ {
		header = append(header, "option "+optionLabel(i))
	}
	setRow(f, questionsSheet, 1, header)
	setRow(f, answerKeySheet, 1, []any{"no", "question_id", "correct_option", "answer", "explanation"})

	for i, q := range t.Questions {
		row := []any{i + 1, string(q.Difficulty), q.Topic, q.Prompt.Body()}
		for _, o := range q.Options {
			row = append(row, o)
		}
		setRow(f, questionsSheet, i+2, row)

		answer := ""
		if q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options) {
			answer = q.Options[q.CorrectAnswer]
		}
		setRow(f, answerKeySheet, i+2, []any{i + 1, q.ID, optionLabel(q.CorrectAnswer), answer, q.Explanation})
	}
	_ = f.SetColWidth(questionsSheet, "D", "D", 60)
	_ = f.SetColWidth(answerKeySheet, "D", "E", 40)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	_ = f.SetSheetRow(sheet, cell, &values)
}

// optionLabel maps 0 -> A, 1 -> B and so on.
func optionLabel(i int) string {
	if i < 0 {
		return ""
	}
	name, err := excelize.ColumnNumberToName(i + 1)
	if err != nil {
		return ""
	}
	return name
}
