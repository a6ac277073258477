package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"qbank/internal/auth"
	"qbank/internal/question"
	"qbank/internal/report"
	"qbank/internal/testseries"
)

func newTestRouter(cfg Config) http.Handler {
	questions := question.NewService(nil, nil)
	return NewRouter(cfg, Dependencies{
		Auth:      auth.NewService(nil, auth.ServiceConfig{}),
		Questions: questions,
		Tests:     testseries.NewService(nil, questions, testseries.ServiceConfig{}),
		Reports:   report.NewService(nil),
	})
}

func TestRouterSmokeRoutes(t *testing.T) {
	router := newTestRouter(Config{AuthRateLimitPerMin: 60})

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{name: "healthz", method: http.MethodGet, target: "/healthz", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, target: "/metrics", wantStatus: http.StatusOK},
		{name: "auth_me_unauthorized", method: http.MethodGet, target: "/api/v1/auth/me", wantStatus: http.StatusUnauthorized},
		{name: "login_invalid_body", method: http.MethodPost, target: "/api/v1/auth/login", body: "{", wantStatus: http.StatusBadRequest},
		{name: "bootstrap_invalid_body", method: http.MethodPost, target: "/api/v1/bootstrap/init", body: "{", wantStatus: http.StatusBadRequest},
		{name: "public_unknown_code", method: http.MethodGet, target: "/api/v1/public/tests/not-a-code", wantStatus: http.StatusNotFound},
		{name: "generate_requires_session", method: http.MethodPost, target: "/api/v1/tests/generate", body: "{}", wantStatus: http.StatusUnauthorized},
		{name: "questions_require_session", method: http.MethodGet, target: "/api/v1/questions", wantStatus: http.StatusUnauthorized},
		{name: "presets_require_session", method: http.MethodGet, target: "/api/v1/presets", wantStatus: http.StatusUnauthorized},
		{name: "coverage_requires_session", method: http.MethodGet, target: "/api/v1/reports/coverage", wantStatus: http.StatusUnauthorized},
		{name: "admin_users_require_session", method: http.MethodPost, target: "/api/v1/admin/users", body: "{}", wantStatus: http.StatusUnauthorized},
		{name: "unknown_route", method: http.MethodGet, target: "/api/v1/nope", wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.wantStatus {
				t.Fatalf("%s %s: got status %d, want %d", tc.method, tc.target, w.Code, tc.wantStatus)
			}
		})
	}
}

func TestRouterRateLimitsLogin(t *testing.T) {
	router := newTestRouter(Config{AuthRateLimitPerMin: 1})

	for i, want := range []int{http.StatusBadRequest, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("{"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("attempt %d: got %d, want %d", i+1, w.Code, want)
		}
	}
}

func TestRouterMetricsCountGenerations(t *testing.T) {
	router := newTestRouter(Config{AuthRateLimitPerMin: 60})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(w.Body.String(), "qbank_tests_generated_total 0") {
		t.Fatalf("metrics missing generation counter:\n%s", w.Body.String())
	}
}
