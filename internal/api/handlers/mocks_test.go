package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"crossarb/internal/models"
	"crossarb/internal/repository"
)

// ErrMockDatabase стандартная ошибка для тестов
var ErrMockDatabase = errors.New("mock database error")

// ============ MockEngine ============

type MockEngine struct {
	mu     sync.Mutex
	stats  models.Stats
	opps   []models.ArbitrageOpportunity
	execs  []models.ArbitrageExecution
	halted bool
	reason string

	lastLimit int
	resumed   int
}

func (m *MockEngine) Stats() models.Stats { return m.stats }

func (m *MockEngine) Opportunities() []models.ArbitrageOpportunity { return m.opps }

func (m *MockEngine) Executions(limit int) []models.ArbitrageExecution {
	m.mu.Lock()
	m.lastLimit = limit
	m.mu.Unlock()
	if limit < len(m.execs) {
		return m.execs[:limit]
	}
	return m.execs
}

func (m *MockEngine) Halted() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted, m.reason
}

func (m *MockEngine) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted, m.reason = false, ""
	m.resumed++
}

// ============ MockArchive ============

type MockArchive struct {
	execs   map[string]*models.ArbitrageExecution
	recent  []*models.ArbitrageExecution
	summary *repository.ProfitSummary
	err     error

	lastStatuses []models.ExecutionStatus
	lastLimit    int
	lastSince    time.Time
}

func NewMockArchive() *MockArchive {
	return &MockArchive{execs: make(map[string]*models.ArbitrageExecution)}
}

func (m *MockArchive) GetByID(ctx context.Context, id string) (*models.ArbitrageExecution, error) {
	if m.err != nil {
		return nil, m.err
	}
	e, ok := m.execs[id]
	if !ok {
		return nil, repository.ErrExecutionNotFound
	}
	return e, nil
}

func (m *MockArchive) GetRecent(ctx context.Context, limit int) ([]*models.ArbitrageExecution, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.recent, nil
}

func (m *MockArchive) GetByStatuses(ctx context.Context, statuses []models.ExecutionStatus, limit int) ([]*models.ArbitrageExecution, error) {
	m.lastStatuses = statuses
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.ArbitrageExecution
	for _, e := range m.recent {
		for _, s := range statuses {
			if e.Status == s {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (m *MockArchive) Summary(ctx context.Context, since time.Time) (*repository.ProfitSummary, error) {
	m.lastSince = since
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}
