package app

import (
	"net/http"
	"time"

	"qbank/internal/app/apiresp"
	"qbank/internal/app/observability"
	"qbank/internal/auth"
	"qbank/internal/question"
	"qbank/internal/report"
	"qbank/internal/testseries"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Auth      *auth.Service
	Questions *question.Service
	Tests     *testseries.Service
	Reports   *report.Service
	Metrics   *observability.Collector
	Logger    *zap.Logger
}

func NewRouter(cfg Config, deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewCollector(nil, logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))

	authHandler := auth.NewHandler(deps.Auth)
	questionHandler := question.NewHandler(deps.Questions, logger)
	testHandler := testseries.NewHandler(deps.Tests, logger)
	reportHandler := report.NewHandler(deps.Reports, logger)
	limiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", metrics.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(RateLimitMiddleware(limiter))
			public.Post("/bootstrap/init", authHandler.BootstrapInit)
			public.Post("/auth/login", authHandler.LoginPassword)
		})
		api.Get("/public/tests/{code}", testHandler.PublicGet)

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)
			secure.Post("/auth/logout", authHandler.Logout)

			secure.Route("/questions", func(q chi.Router) {
				q.Get("/", questionHandler.List)
				q.Post("/", questionHandler.Create)
				q.Post("/bulk", questionHandler.BulkCreate)
				q.Get("/suggestions", questionHandler.Suggestions)
				q.Get("/duplicates", questionHandler.Duplicates)
				q.Post("/import", questionHandler.ImportExcel)
				q.Get("/export", questionHandler.ExportExcel)
				q.Get("/{id}", questionHandler.Get)
				q.Put("/{id}", questionHandler.Update)
				q.Delete("/{id}", questionHandler.Delete)
				q.Post("/{id}/restore", questionHandler.Restore)
			})

			secure.Route("/tests", func(t chi.Router) {
				t.Get("/", testHandler.List)
				t.Post("/generate", testHandler.Generate)
				t.Get("/{id}", testHandler.Get)
				t.Post("/{id}/publish", testHandler.Publish)
				t.Post("/{id}/unpublish", testHandler.Unpublish)
				t.Get("/{id}/export", testHandler.ExportExcel)
			})
			secure.Get("/presets", testHandler.ListPresets)
			secure.Get("/reports/coverage", reportHandler.Coverage)

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles(auth.RoleAdmin))
				admin.Get("/admin/users", authHandler.ListUsers)
				admin.Post("/admin/users", authHandler.CreateUser)
				admin.Post("/admin/users/{id}/deactivate", authHandler.DeactivateUser)
			})
		})
	})

	return r
}
