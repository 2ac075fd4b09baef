package profiles

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/devfolio/accountguard/internal/models"
)

// MemoryRepository is a mutex-guarded in-memory Repository used by unit
// tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*models.UserProfile
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*models.UserProfile)}
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (*models.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepository) Put(ctx context.Context, p *models.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}

func (m *MemoryRepository) All(ctx context.Context) ([]*models.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.UserProfile, 0, len(m.store))
	for _, p := range m.store {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) SuspendedExpiredBefore(ctx context.Context, t time.Time) ([]*models.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.UserProfile
	for _, p := range m.store {
		if p.SuspensionExpired(t) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SuspensionExpiresAt.Before(*out[j].SuspensionExpiresAt)
	})
	return out, nil
}

func (m *MemoryRepository) CountSuspended(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, p := range m.store {
		if p.IsTemporarilySuspended {
			n++
		}
	}
	return n, nil
}
