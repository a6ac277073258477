package report

import (
	"context"
	"net/http"

	"qbank/internal/app/apiresp"

	"go.uber.org/zap"
)

type coverageService interface {
	Coverage(ctx context.Context, f Filter) ([]Coverage, error)
}

type Handler struct {
	svc    coverageService
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Coverage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.svc.Coverage(r.Context(), Filter{
		Subject:      q.Get("subject"),
		AcademicYear: q.Get("academic_year"),
	})
	if err != nil {
		h.logger.Error("coverage report failed", zap.Error(err))
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}
