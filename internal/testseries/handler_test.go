package testseries

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"qbank/internal/auth"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type mockTestService struct {
	generateFn  func(ctx context.Context, actorID int64, req GenerateRequest) (*Test, error)
	getFn       func(ctx context.Context, id int64) (*Test, error)
	listFn      func(ctx context.Context, f ListFilter) ([]Test, error)
	publishFn   func(ctx context.Context, id int64) (*Test, error)
	unpublishFn func(ctx context.Context, id int64) (*Test, error)
	publicFn    func(ctx context.Context, code string) (*PublicTest, error)
	exportFn    func(ctx context.Context, id int64) ([]byte, error)
	presets     []Preset
}

func (m *mockTestService) Generate(ctx context.Context, actorID int64, req GenerateRequest) (*Test, error) {
	if m.generateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.generateFn(ctx, actorID, req)
}

func (m *mockTestService) GetTest(ctx context.Context, id int64) (*Test, error) {
	if m.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getFn(ctx, id)
}

func (m *mockTestService) ListTests(ctx context.Context, f ListFilter) ([]Test, error) {
	if m.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listFn(ctx, f)
}

func (m *mockTestService) Publish(ctx context.Context, id int64) (*Test, error) {
	if m.publishFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.publishFn(ctx, id)
}

func (m *mockTestService) Unpublish(ctx context.Context, id int64) (*Test, error) {
	if m.unpublishFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.unpublishFn(ctx, id)
}

func (m *mockTestService) GetPublishedByCode(ctx context.Context, code string) (*PublicTest, error) {
	if m.publicFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.publicFn(ctx, code)
}

func (m *mockTestService) ExportTestExcel(ctx context.Context, id int64) ([]byte, error) {
	if m.exportFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.exportFn(ctx, id)
}

func (m *mockTestService) Presets() []Preset {
	return m.presets
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asEditor(r *http.Request) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: 5, Role: auth.RoleEditor}))
}

func TestGenerateHandlerCreated(t *testing.T) {
	h := &Handler{logger: zap.NewNop(), svc: &mockTestService{
		generateFn: func(ctx context.Context, actorID int64, req GenerateRequest) (*Test, error) {
			if actorID != 5 || req.Subject != "Math" || req.TotalQuestions != 20 {
				t.Fatalf("unexpected request %d %+v", actorID, req)
			}
			if req.DifficultyDistribution["Beginner"] != 5 || !req.Topics.Restricted() {
				t.Fatalf("unexpected distribution/topics %+v", req)
			}
			return &Test{ID: 1, TotalQuestions: 20}, nil
		},
	}}
	payload := []byte(`{"subject":"Math","academic_year":"2024","total_questions":20,"difficulty_distribution":{"Beginner":5},"topics":["Calculus"]}`)
	req := asEditor(httptest.NewRequest(http.MethodPost, "/api/v1/tests/generate", bytes.NewReader(payload)))
	w := httptest.NewRecorder()

	h.Generate(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestGenerateHandlerInsufficient(t *testing.T) {
	h := &Handler{logger: zap.NewNop(), svc: &mockTestService{
		generateFn: func(ctx context.Context, actorID int64, req GenerateRequest) (*Test, error) {
			return nil, &InsufficientQuestionsError{Available: 7, Requested: 20}
		},
	}}
	req := asEditor(httptest.NewRequest(http.MethodPost, "/api/v1/tests/generate", bytes.NewReader([]byte(`{"subject":"Math","academic_year":"2024"}`))))
	w := httptest.NewRecorder()

	h.Generate(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	var env struct {
		Error struct {
			Details InsufficientQuestionsError `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Details.Available != 7 || env.Error.Details.Requested != 20 {
		t.Fatalf("unexpected details %+v", env.Error.Details)
	}
}

func TestGenerateHandlerValidation(t *testing.T) {
	h := &Handler{logger: zap.NewNop(), svc: &mockTestService{
		generateFn: func(ctx context.Context, actorID int64, req GenerateRequest) (*Test, error) {
			return nil, invalid("subject", "is required")
		},
	}}
	req := asEditor(httptest.NewRequest(http.MethodPost, "/api/v1/tests/generate", bytes.NewReader([]byte(`{}`))))
	w := httptest.NewRecorder()

	h.Generate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGenerateHandlerBadTopics(t *testing.T) {
	h := &Handler{logger: zap.NewNop(), svc: &mockTestService{}}
	req := asEditor(httptest.NewRequest(http.MethodPost, "/api/v1/tests/generate", bytes.NewReader([]byte(`{"topics":42}`))))
	w := httptest.NewRecorder()

	h.Generate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetTestNotFound(t *testing.T) {
	h := &Handler{logger: zap.NewNop(), svc: &mockTestService{
		getFn: func(ctx context.Context, id int64) (*Test, error) { return nil, ErrTestNotFound },
	}}
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/tests/3", nil), "id", "3")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListTestsPublishedFilter(t *testing.T) {
	h := &Handler{logger: zap.NewNop(), svc: &mockTestService{
		listFn: func(ctx context.Context, f ListFilter) ([]Test, error) {
			if f.Published == nil || !*f.Published || f.Subject != "Math" {
				t.Fatalf("unexpected filter %+v", f)
			}
			return []Test{}, nil
		},
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests?published=true&subject=Math", nil)
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/tests?published=maybe", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad published flag, got %d", w.Code)
	}
}

func TestPublishAssignsCode(t *testing.T) {
	code := "0b6f5f8e-8a0c-4c1e-9d2a-3b7c1f0e9a11"
	h := &Handler{logger: zap.NewNop(), svc: &mockTestService{
		publishFn: func(ctx context.Context, id int64) (*Test, error) {
			return &Test{ID: id, IsPublished: true, ShareCode: &code}, nil
		},
	}}
	req := withParam(httptest.NewRequest(http.MethodPost, "/api/v1/tests/2/publish", nil), "id", "2")
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var env struct {
		Data Test `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.ShareCode == nil || *env.Data.ShareCode != code {
		t.Fatalf("expected share code in response, got %+v", env.Data)
	}
}

func TestPublicGetOmitsCorrectAnswer(t *testing.T) {
	h := &Handler{logger: zap.NewNop(), svc: &mockTestService{
		publicFn: func(ctx context.Context, code string) (*PublicTest, error) {
			if code != "abc" {
				t.Fatalf("unexpected code %q", code)
			}
			return &PublicTest{Subject: "Geo", Questions: []PublicQuestion{{Number: 1, Prompt: "Q", Options: []string{"a", "b"}}}}, nil
		},
	}}
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/public/tests/abc", nil), "code", "abc")
	w := httptest.NewRecorder()

	h.PublicGet(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("correct_answer")) {
		t.Fatalf("public view leaked the answer: %s", w.Body.String())
	}
}

func TestExportTestInvalidID(t *testing.T) {
	h := &Handler{logger: zap.NewNop(), svc: &mockTestService{}}
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/tests/x/export", nil), "id", "x")
	w := httptest.NewRecorder()

	h.ExportExcel(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListPresets(t *testing.T) {
	h := &Handler{logger: zap.NewNop(), svc: &mockTestService{presets: []Preset{{Name: "Mock"}}}}
	w := httptest.NewRecorder()

	h.ListPresets(w, httptest.NewRequest(http.MethodGet, "/api/v1/presets", nil))

	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"Mock"`)) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}
