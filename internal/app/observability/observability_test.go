package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizedPath(t *testing.T) {
	got := normalizedPath("/api/v1/tests/123/publish")
	want := "/api/v1/tests/{id}/publish"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}

	got = normalizedPath("/api/v1/public/tests/0b6f5f8e-8a0c-4c1e-9d2a-3b7c1f0e9a11")
	want = "/api/v1/public/tests/{code}"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
}

func TestExtractTestID(t *testing.T) {
	if id := extractTestID("/api/v1/tests/456/export"); id != 456 {
		t.Fatalf("expected 456, got %d", id)
	}
	if id := extractTestID("/api/v1/questions/1"); id != 0 {
		t.Fatalf("expected 0 for non-test path, got %d", id)
	}
}

func TestMetricsHandlerIncludesGenerationCounters(t *testing.T) {
	c := NewCollector(nil, nil)
	c.IncTestsGenerated()
	c.IncTestsGenerated()
	c.IncGenerationFailures()

	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/tests/generate", nil))

	w := httptest.NewRecorder()
	c.MetricsHandler(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	for _, want := range []string{
		"qbank_tests_generated_total 2",
		"qbank_generation_failures_total 1",
		`qbank_http_requests_total{method="POST",path="/api/v1/tests/generate",status="201"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}
