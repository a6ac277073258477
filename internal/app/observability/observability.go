package observability

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"qbank/internal/auth"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

type Collector struct {
	db     *sql.DB
	logger *zap.Logger

	mu           sync.RWMutex
	requestStats map[key]stat
	startedAt    time.Time

	testsGenerated     atomic.Int64
	generationFailures atomic.Int64
}

func NewCollector(db *sql.DB, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		db:           db,
		logger:       logger,
		requestStats: make(map[key]stat),
		startedAt:    time.Now(),
	}
}

// IncTestsGenerated and IncGenerationFailures are called by the test
// generator after each attempt.
func (c *Collector) IncTestsGenerated() {
	c.testsGenerated.Add(1)
}

func (c *Collector) IncGenerationFailures() {
	c.generationFailures.Add(1)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx, slot := auth.ContextWithUserSlot(r.Context())
		r = r.WithContext(ctx)
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		userID := slot.UserID()
		if u, ok := auth.CurrentUser(r.Context()); ok {
			userID = u.ID
		}

		c.logger.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int64("user_id", userID),
			zap.Int64("test_id", extractTestID(r.URL.Path)),
			zap.String("method", r.Method),
			zap.String("path", path),
			zap.Int("status", rec.status),
			zap.Float64("latency_ms", latencyMS),
			zap.String("remote_ip", strings.TrimSpace(r.RemoteAddr)),
		)
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# qbank observability metrics\n")
	sb.WriteString("# TYPE qbank_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("qbank_uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE qbank_tests_generated_total counter\n")
	sb.WriteString(fmt.Sprintf("qbank_tests_generated_total %d\n", c.testsGenerated.Load()))
	sb.WriteString("# TYPE qbank_generation_failures_total counter\n")
	sb.WriteString(fmt.Sprintf("qbank_generation_failures_total %d\n", c.generationFailures.Load()))

	sb.WriteString("# TYPE qbank_http_requests_total counter\n")
	sb.WriteString("# TYPE qbank_http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE qbank_http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf("qbank_http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf("qbank_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		sb.WriteString(fmt.Sprintf("qbank_http_request_latency_ms_avg{%s} %.3f\n", labels, avg))
	}

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE qbank_db_open_connections gauge\n")
		sb.WriteString(fmt.Sprintf("qbank_db_open_connections %d\n", dbs.OpenConnections))
		sb.WriteString("# TYPE qbank_db_in_use_connections gauge\n")
		sb.WriteString(fmt.Sprintf("qbank_db_in_use_connections %d\n", dbs.InUse))
		sb.WriteString("# TYPE qbank_db_idle_connections gauge\n")
		sb.WriteString(fmt.Sprintf("qbank_db_idle_connections %d\n", dbs.Idle))
		sb.WriteString("# TYPE qbank_db_wait_count counter\n")
		sb.WriteString(fmt.Sprintf("qbank_db_wait_count %d\n", dbs.WaitCount))
		sb.WriteString("# TYPE qbank_db_wait_duration_ms counter\n")
		sb.WriteString(fmt.Sprintf("qbank_db_wait_duration_ms %.3f\n", float64(dbs.WaitDuration.Microseconds())/1000.0))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// normalizedPath collapses numeric ids and share codes so metrics stay
// bounded in cardinality.
func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
			continue
		}
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{code}"
		}
	}
	return strings.Join(parts, "/")
}

func extractTestID(path string) int64 {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "tests" {
			if id, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil {
				return id
			}
		}
	}
	return 0
}
