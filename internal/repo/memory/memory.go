package memory

import (
	"context"
	"sync"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/repo"
)

type Store struct {
	mu     sync.RWMutex
	latest *domain.CycleResult
	alerts map[string]repo.AlertRecord
}

func New() *Store {
	return &Store{
		alerts: make(map[string]repo.AlertRecord),
	}
}

// Save replaces the previous cycle result.
func (m *Store) Save(ctx context.Context, r domain.CycleResult) error {
	r.Entries = append([]domain.Entry(nil), r.Entries...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = &r
	return nil
}

func (m *Store) Latest(ctx context.Context) (*domain.CycleResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return nil, nil
	}
	cp := *m.latest
	cp.Entries = append([]domain.Entry(nil), m.latest.Entries...)
	return &cp, nil
}

func (m *Store) Get(ctx context.Context, key string) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) Set(ctx context.Context, rec repo.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[rec.Endpoint.Key()] = rec
	return nil
}
