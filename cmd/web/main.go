package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qbank/internal/app"
	"qbank/internal/app/observability"
	"qbank/internal/auth"
	"qbank/internal/cache"
	"qbank/internal/db"
	"qbank/internal/question"
	"qbank/internal/report"
	"qbank/internal/testseries"

	"go.uber.org/zap"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg app.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.OpenPostgresWithConfig(ctx, cfg.DBDSN, db.PostgresConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, dbConn); err != nil {
			return err
		}
		logger.Info("schema applied")
	}

	suggestions := question.NewSuggestions(nil, cfg.SuggestionsTTL, logger)
	if cfg.CacheURL != "" {
		c, err := cache.New(ctx, cfg.CacheURL, "qbank")
		if err != nil {
			logger.Warn("cache unavailable, suggestions served from database", zap.Error(err))
		} else {
			defer c.Close()
			suggestions = question.NewSuggestions(c, cfg.SuggestionsTTL, logger)
		}
	}

	presets, err := testseries.LoadPresets(cfg.PresetsDir, logger)
	if err != nil {
		return err
	}

	metrics := observability.NewCollector(dbConn, logger)
	questions := question.NewService(dbConn, suggestions)
	deps := app.Dependencies{
		Auth: auth.NewService(dbConn, auth.ServiceConfig{
			SessionTTL:     cfg.SessionTTL,
			BootstrapToken: cfg.BootstrapToken,
		}),
		Questions: questions,
		Tests: testseries.NewService(dbConn, questions, testseries.ServiceConfig{
			DefaultTotalQuestions:  cfg.DefaultTestQuestion,
			DefaultDurationMinutes: cfg.DefaultTestMinutes,
			Presets:                presets,
			Recorder:               metrics,
			Logger:                 logger,
		}),
		Reports: report.NewService(dbConn),
		Metrics: metrics,
		Logger:  logger,
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.NewRouter(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("qbank listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
