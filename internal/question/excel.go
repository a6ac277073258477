package question

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var excelHeaders = []string{
	"subject", "academic_year", "difficulty", "topic", "question", "answer",
	"options", "correct_answer", "explanation", "is_active",
}

const optionSeparator = "|"

type ImportReport struct {
	TotalRows   int        `json:"total_rows"`
	SuccessRows int        `json:"success_rows"`
	FailedRows  int        `json:"failed_rows"`
	Errors      []RowError `json:"errors"`
}

func (s *Service) ExportQuestionsExcel(ctx context.Context, f ListFilter) ([]byte, error) {
	f.Limit = 500
	items := make([]Question, 0)
	for offset := 0; ; offset += f.Limit {
		f.Offset = offset
		page, err := s.ListQuestions(ctx, f)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
		if len(page) < f.Limit {
			break
		}
	}
	return WriteQuestionsExcel(items)
}

func WriteQuestionsExcel(items []Question) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for i, h := range excelHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, q := range items {
		row := i + 2
		values := []any{
			q.Subject,
			q.AcademicYear,
			string(q.Difficulty),
			q.Topic,
			q.Prompt.Body(),
			q.Prompt.Answer,
			strings.Join(q.Options, optionSeparator),
			q.CorrectAnswer,
			q.Explanation,
			q.IsActive,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "J", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportQuestionsExcel stores each valid row on its own; invalid rows are
// reported and skipped. A blank is_active cell imports the row as active.
func (s *Service) ImportQuestionsExcel(ctx context.Context, actorID int64, r io.Reader) (*ImportReport, error) {
	inputs, report, err := readQuestionsExcel(r)
	if err != nil {
		return nil, err
	}

	for _, in := range inputs {
		if _, err := insertQuestion(ctx, s.db, actorID, in.input, in.active); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, RowError{Row: in.row, Error: "failed to store question"})
			continue
		}
		report.SuccessRows++
	}
	if report.SuccessRows > 0 {
		s.suggestions.Invalidate(ctx)
	}
	return report, nil
}

type excelRow struct {
	row    int
	input  QuestionInput
	active bool
}

// readQuestionsExcel parses and validates the first sheet. Rows that fail
// validation are counted in the report and left out of the returned inputs.
func readQuestionsExcel(r io.Reader) ([]excelRow, *ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open excel: %v", ErrInvalidInput, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%w: excel sheet is empty", ErrInvalidInput)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("%w: no data rows found", ErrInvalidInput)
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"subject", "academic_year", "difficulty", "question", "options", "correct_answer"} {
		if _, ok := header[col]; !ok {
			return nil, nil, fmt.Errorf("%w: missing required column: %s", ErrInvalidInput, col)
		}
	}

	report := &ImportReport{Errors: make([]RowError, 0)}
	out := make([]excelRow, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]
		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if isBlankRow(row) {
			continue
		}
		report.TotalRows++

		correct, err := strconv.Atoi(get("correct_answer"))
		if err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, RowError{Row: rowNo, Field: "correct_answer", Error: "must be a number"})
			continue
		}

		active := true
		if raw := get("is_active"); raw != "" {
			active, err = strconv.ParseBool(strings.ToLower(raw))
			if err != nil {
				report.FailedRows++
				report.Errors = append(report.Errors, RowError{Row: rowNo, Field: "is_active", Error: "must be true or false"})
				continue
			}
		}

		prompt := PlainPrompt(get("question"))
		if answer := get("answer"); answer != "" {
			prompt = PairPrompt(get("question"), answer)
		}
		in, err := normalizeInput(QuestionInput{
			Subject:       get("subject"),
			AcademicYear:  get("academic_year"),
			Difficulty:    Difficulty(get("difficulty")),
			Topic:         get("topic"),
			Prompt:        prompt,
			Options:       strings.Split(get("options"), optionSeparator),
			CorrectAnswer: correct,
			Explanation:   get("explanation"),
		})
		if err != nil {
			re := RowError{Row: rowNo, Error: err.Error()}
			var ve *ValidationError
			if errors.As(err, &ve) {
				re.Field = ve.Field
				re.Error = ve.Message
			}
			report.FailedRows++
			report.Errors = append(report.Errors, re)
			continue
		}
		out = append(out, excelRow{row: rowNo, input: in, active: active})
	}
	return out, report, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
