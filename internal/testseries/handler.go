package testseries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"qbank/internal/app/apiresp"
	"qbank/internal/auth"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc    testService
	logger *zap.Logger
}

type testService interface {
	Generate(ctx context.Context, actorID int64, req GenerateRequest) (*Test, error)
	GetTest(ctx context.Context, id int64) (*Test, error)
	ListTests(ctx context.Context, f ListFilter) ([]Test, error)
	Publish(ctx context.Context, id int64) (*Test, error)
	Unpublish(ctx context.Context, id int64) (*Test, error)
	GetPublishedByCode(ctx context.Context, code string) (*PublicTest, error)
	ExportTestExcel(ctx context.Context, id int64) ([]byte, error)
	Presets() []Preset
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.svc.Generate(r.Context(), user.ID, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTestID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.GetTest(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, t)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	f := ListFilter{
		Subject:      q.Get("subject"),
		AcademicYear: q.Get("academic_year"),
		Limit:        limit,
		Offset:       offset,
	}
	if raw := strings.TrimSpace(q.Get("published")); raw != "" {
		published, err := strconv.ParseBool(raw)
		if err != nil {
			apiresp.WriteError(w, r, http.StatusBadRequest, "published must be true or false")
			return
		}
		f.Published = &published
	}

	items, err := h.svc.ListTests(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTestID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Publish(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, t)
}

func (h *Handler) Unpublish(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTestID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Unpublish(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, t)
}

func (h *Handler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTestID(w, r)
	if !ok {
		return
	}
	data, err := h.svc.ExportTestExcel(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="test-%d.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	apiresp.WriteOK(w, r, http.StatusOK, h.svc.Presets())
}

// PublicGet serves the shared view without authentication.
func (h *Handler) PublicGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetPublishedByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, t)
}

func parseTestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid test id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var shortErr *InsufficientQuestionsError
	switch {
	case errors.As(err, &shortErr):
		apiresp.WriteErrorDetails(w, r, http.StatusUnprocessableEntity, err.Error(), shortErr)
	case errors.Is(err, ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTestNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("test request failed", zap.String("path", r.URL.Path), zap.Error(err))
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
