package identity

import (
	"context"
	"sync"

	"github.com/devfolio/accountguard/internal/models"
)

// MemoryProvider is an in-memory Provider used by unit tests. Per-user
// errors can be injected to simulate provider outages.
type MemoryProvider struct {
	mu    sync.RWMutex
	users map[string]*models.UserIdentity
	// FailFor maps user id -> error returned by any call touching that id.
	failFor map[string]error
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		users:   make(map[string]*models.UserIdentity),
		failFor: make(map[string]error),
	}
}

// Seed inserts or replaces an identity record.
func (m *MemoryProvider) Seed(u *models.UserIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

// FailWith makes every call for id return err until cleared with nil.
func (m *MemoryProvider) FailWith(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failFor, id)
		return
	}
	m.failFor[id] = err
}

func (m *MemoryProvider) GetUser(ctx context.Context, id string) (*models.UserIdentity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failFor[id]; err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryProvider) UpdateUser(ctx context.Context, id, email, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[id]; err != nil {
		return err
	}
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Email = email
	return nil
}

func (m *MemoryProvider) SetCustomClaims(ctx context.Context, id, role string, permissions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[id]; err != nil {
		return err
	}
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Role = role
	u.Permissions = permissions
	return nil
}

func (m *MemoryProvider) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[id]; err != nil {
		return err
	}
	if _, ok := m.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

// Has reports whether an identity record exists (test helper).
func (m *MemoryProvider) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[id]
	return ok
}
