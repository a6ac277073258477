package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"qbank/internal/question"

	"go.uber.org/zap"
)

func TestSummarizeGroupsBySubjectAndYear(t *testing.T) {
	got := summarize([]coverageRow{
		{subject: "Math", academicYear: "2024", difficulty: question.Beginner, topic: "Algebra", active: 4, inactive: 1},
		{subject: "Math", academicYear: "2024", difficulty: question.Expert, topic: "Calculus", active: 2},
		{subject: "Math", academicYear: "2024", difficulty: question.Beginner, topic: "Calculus", active: 3},
		{subject: "Math", academicYear: "2024", difficulty: question.Advanced, topic: "Retired", inactive: 5},
		{subject: "Bio", academicYear: "2023", difficulty: question.Intermediate, active: 1},
	})

	if len(got) != 2 || got[0].Subject != "Bio" || got[1].Subject != "Math" {
		t.Fatalf("unexpected grouping %+v", got)
	}
	math := got[1]
	if math.Active != 9 || math.Inactive != 6 {
		t.Fatalf("unexpected totals %+v", math)
	}
	if math.ByDifficulty[question.Beginner] != 7 || math.ByDifficulty[question.Expert] != 2 || math.ByDifficulty[question.Advanced] != 0 {
		t.Fatalf("inactive rows must not count toward difficulty: %+v", math.ByDifficulty)
	}
	if len(math.Topics) != 2 || math.Topics[0].Topic != "Algebra" || math.Topics[1].Active != 5 {
		t.Fatalf("unexpected topics %+v", math.Topics)
	}
	if _, ok := got[0].ByDifficulty[question.Expert]; !ok {
		t.Fatalf("every difficulty should be present")
	}
	if len(got[0].Topics) != 0 {
		t.Fatalf("blank topic should not be listed")
	}
}

type mockCoverageService struct {
	fn func(ctx context.Context, f Filter) ([]Coverage, error)
}

func (m *mockCoverageService) Coverage(ctx context.Context, f Filter) ([]Coverage, error) {
	return m.fn(ctx, f)
}

func TestCoverageHandler(t *testing.T) {
	h := &Handler{logger: zap.NewNop(), svc: &mockCoverageService{
		fn: func(ctx context.Context, f Filter) ([]Coverage, error) {
			if f.Subject != "Math" || f.AcademicYear != "2024" {
				t.Fatalf("unexpected filter %+v", f)
			}
			return []Coverage{{Subject: "Math", AcademicYear: "2024", Active: 3}}, nil
		},
	}}
	w := httptest.NewRecorder()
	h.Coverage(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/coverage?subject=Math&academic_year=2024", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var env struct {
		Data []Coverage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data) != 1 || env.Data[0].Active != 3 {
		t.Fatalf("unexpected body %+v", env.Data)
	}
}

func TestCoverageHandlerError(t *testing.T) {
	h := &Handler{logger: zap.NewNop(), svc: &mockCoverageService{
		fn: func(ctx context.Context, f Filter) ([]Coverage, error) { return nil, errors.New("boom") },
	}}
	w := httptest.NewRecorder()
	h.Coverage(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/coverage", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
