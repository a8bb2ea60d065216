package bot

import (
	"sync"

	"crossarb/internal/models"
)

// ExecutionLog кольцевой буфер последних завершённых исполнений
type ExecutionLog struct {
	mu    sync.RWMutex
	items []*models.ArbitrageExecution
	next  int
	full  bool
}

// NewExecutionLog создаёт журнал на size записей
func NewExecutionLog(size int) *ExecutionLog {
	if size < 1 {
		size = 100
	}
	return &ExecutionLog{items: make([]*models.ArbitrageExecution, size)}
}

// Add добавляет завершённое исполнение, вытесняя самое старое
func (l *ExecutionLog) Add(exec *models.ArbitrageExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[l.next] = exec
	l.next = (l.next + 1) % len(l.items)
	if l.next == 0 {
		l.full = true
	}
}

// Len количество записей
func (l *ExecutionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.items)
	}
	return l.next
}

// Recent до limit последних записей, новые первыми (limit <= 0 = все).
// Возвращает копии: исполнения после завершения не меняются, но
// вызывающий не должен получить доступ к буферу.
func (l *ExecutionLog) Recent(limit int) []models.ArbitrageExecution {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.next
	if l.full {
		n = len(l.items)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]models.ArbitrageExecution, 0, limit)
	idx := l.next
	for i := 0; i < limit; i++ {
		idx = (idx - 1 + len(l.items)) % len(l.items)
		out = append(out, *l.items[idx])
	}
	return out
}
