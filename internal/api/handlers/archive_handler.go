package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"crossarb/internal/models"
	"crossarb/internal/repository"
)

// ArchiveReader архив исполнений в PostgreSQL
//
// Реализуется *repository.ExecutionRepository
type ArchiveReader interface {
	GetByID(ctx context.Context, id string) (*models.ArbitrageExecution, error)
	GetRecent(ctx context.Context, limit int) ([]*models.ArbitrageExecution, error)
	GetByStatuses(ctx context.Context, statuses []models.ExecutionStatus, limit int) ([]*models.ArbitrageExecution, error)
	Summary(ctx context.Context, since time.Time) (*repository.ProfitSummary, error)
}

// ArchiveHandler запросы к архиву исполнений.
// Регистрируется только если журнал в БД включён.
//
// Endpoints:
// - GET /api/v1/archive?status=PARTIAL,FAILED&limit=100
// - GET /api/v1/archive/summary?window=24h
// - GET /api/v1/archive/{id}
type ArchiveHandler struct {
	store ArchiveReader
	now   func() time.Time
}

// NewArchiveHandler создает ArchiveHandler
func NewArchiveHandler(store ArchiveReader) *ArchiveHandler {
	return &ArchiveHandler{store: store, now: time.Now}
}

var archiveStatuses = map[models.ExecutionStatus]bool{
	models.ExecSuccess: true,
	models.ExecPartial: true,
	models.ExecFailed:  true,
	models.ExecAborted: true,
}

// ListExecutions исполнения из архива, новые первыми.
//
// Query Parameters:
// - status (optional): список терминальных статусов через запятую
// - limit (optional): по умолчанию 100, максимум 1000
func (h *ArchiveHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, 100, 1000)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", r.URL.Query().Get("limit"))
		return
	}

	var statuses []models.ExecutionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := models.ExecutionStatus(strings.ToUpper(strings.TrimSpace(s)))
			if !archiveStatuses[st] {
				respondWithError(w, http.StatusBadRequest, "invalid_status", "status must be SUCCESS, PARTIAL, FAILED or ABORTED", s)
				return
			}
			statuses = append(statuses, st)
		}
	}

	var (
		execs []*models.ArbitrageExecution
		err   error
	)
	if len(statuses) > 0 {
		execs, err = h.store.GetByStatuses(r.Context(), statuses, limit)
	} else {
		execs, err = h.store.GetRecent(r.Context(), limit)
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "archive_error", "failed to read archive", err.Error())
		return
	}
	if execs == nil {
		execs = []*models.ArbitrageExecution{}
	}
	respondWithJSON(w, http.StatusOK, execs)
}

// GetExecution одно исполнение по id.
//
// Response 404: нет в архиве
func (h *ArchiveHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrExecutionNotFound) {
			respondWithError(w, http.StatusNotFound, "not_found", "execution not found", id)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "archive_error", "failed to read archive", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, exec)
}

// Summary итоги за окно.
//
// Query Parameters:
// - window (optional): длительность Go (24h, 90m), по умолчанию 24h, максимум 90 дней
func (h *ArchiveHandler) Summary(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > 90*24*time.Hour {
			respondWithError(w, http.StatusBadRequest, "invalid_window", "window must be a positive duration up to 2160h", raw)
			return
		}
		window = d
	}

	s, err := h.store.Summary(r.Context(), h.now().Add(-window))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "archive_error", "failed to summarize archive", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, s)
}
