package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/models"
	"crossarb/internal/repository"
)

func newArchive(store *MockArchive) *ArchiveHandler {
	h := NewArchiveHandler(store)
	h.now = func() time.Time { return testNow }
	return h
}

func archivedExecutions() []*models.ArbitrageExecution {
	return []*models.ArbitrageExecution{
		{ID: "exec-3", Status: models.ExecSuccess, ActualProfit: dPtr("500")},
		{ID: "exec-2", Status: models.ExecPartial},
		{ID: "exec-1", Status: models.ExecFailed},
	}
}

func dPtr(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func TestArchiveHandler_ListExecutions(t *testing.T) {
	store := NewMockArchive()
	store.recent = archivedExecutions()
	h := newArchive(store)

	tests := []struct {
		name         string
		target       string
		wantCode     int
		wantIDs      []string
		wantStatuses []models.ExecutionStatus
		wantLimit    int
	}{
		{"recent", "/api/v1/archive", http.StatusOK, []string{"exec-3", "exec-2", "exec-1"}, nil, 100},
		{"by status", "/api/v1/archive?status=partial,FAILED&limit=10", http.StatusOK, []string{"exec-2", "exec-1"},
			[]models.ExecutionStatus{models.ExecPartial, models.ExecFailed}, 10},
		{"limit capped", "/api/v1/archive?limit=5000", http.StatusOK, []string{"exec-3", "exec-2", "exec-1"}, nil, 1000},
		{"non terminal status", "/api/v1/archive?status=VALIDATING", http.StatusBadRequest, nil, nil, 0},
		{"bad limit", "/api/v1/archive?limit=-3", http.StatusBadRequest, nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.lastStatuses, store.lastLimit = nil, 0

			w := serve("/api/v1/archive", http.MethodGet, h.ListExecutions, tt.target)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}

			var out []models.ArbitrageExecution
			require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
			ids := make([]string, 0, len(out))
			for _, e := range out {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantStatuses, store.lastStatuses)
			assert.Equal(t, tt.wantLimit, store.lastLimit)
		})
	}
}

func TestArchiveHandler_ListExecutionsEmptyAndError(t *testing.T) {
	store := NewMockArchive()
	h := newArchive(store)

	w := serve("/api/v1/archive", http.MethodGet, h.ListExecutions, "/api/v1/archive")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	store.err = ErrMockDatabase
	w = serve("/api/v1/archive", http.MethodGet, h.ListExecutions, "/api/v1/archive")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestArchiveHandler_GetExecution(t *testing.T) {
	store := NewMockArchive()
	for _, e := range archivedExecutions() {
		store.execs[e.ID] = e
	}
	h := newArchive(store)

	t.Run("found", func(t *testing.T) {
		w := serve("/api/v1/archive/{id}", http.MethodGet, h.GetExecution, "/api/v1/archive/exec-2")
		require.Equal(t, http.StatusOK, w.Code)

		var out models.ArbitrageExecution
		require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
		assert.Equal(t, models.ExecPartial, out.Status)
	})

	t.Run("not found", func(t *testing.T) {
		w := serve("/api/v1/archive/{id}", http.MethodGet, h.GetExecution, "/api/v1/archive/missing")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("db error", func(t *testing.T) {
		store.err = ErrMockDatabase
		defer func() { store.err = nil }()
		w := serve("/api/v1/archive/{id}", http.MethodGet, h.GetExecution, "/api/v1/archive/exec-2")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestArchiveHandler_Summary(t *testing.T) {
	store := NewMockArchive()
	store.summary = &repository.ProfitSummary{
		Executions:     4,
		Successful:     2,
		Partial:        1,
		ExpectedProfit: d("910"),
		ActualProfit:   d("905"),
	}
	h := newArchive(store)

	t.Run("default window", func(t *testing.T) {
		w := serve("/api/v1/archive/summary", http.MethodGet, h.Summary, "/api/v1/archive/summary")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, testNow.Add(-24*time.Hour), store.lastSince)

		var out repository.ProfitSummary
		require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
		assert.Equal(t, int64(4), out.Executions)
		assert.True(t, out.ActualProfit.Equal(d("905")))
	})

	t.Run("custom window", func(t *testing.T) {
		w := serve("/api/v1/archive/summary", http.MethodGet, h.Summary, "/api/v1/archive/summary?window=90m")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, testNow.Add(-90*time.Minute), store.lastSince)
	})

	for _, window := range []string{"abc", "-1h", "9999h"} {
		t.Run("invalid "+window, func(t *testing.T) {
			w := serve("/api/v1/archive/summary", http.MethodGet, h.Summary, "/api/v1/archive/summary?window="+window)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	t.Run("db error", func(t *testing.T) {
		store.err = ErrMockDatabase
		w := serve("/api/v1/archive/summary", http.MethodGet, h.Summary, "/api/v1/archive/summary")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
