package auditlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/devfolio/accountguard/internal/models"
)

// MemoryLogs is an in-memory Logs used by unit tests.
type MemoryLogs struct {
	mu      sync.RWMutex
	entries []*models.InconsistencyLogEntry
}

func NewMemoryLogs() *MemoryLogs {
	return &MemoryLogs{}
}

func (m *MemoryLogs) Append(ctx context.Context, e *models.InconsistencyLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MemoryLogs) Get(ctx context.Context, id string) (*models.InconsistencyLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (m *MemoryLogs) List(ctx context.Context, f Filter) ([]*models.InconsistencyLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.InconsistencyLogEntry
	for _, e := range m.entries {
		if f.Resolved != nil && e.Resolved != *f.Resolved {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryLogs) ByUser(ctx context.Context, userID string) ([]*models.InconsistencyLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.InconsistencyLogEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryLogs) MarkResolved(ctx context.Context, id, by, notes string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Resolved = true
			e.ResolvedBy = by
			t := at
			e.ResolvedAt = &t
			e.Details.Notes = notes
			return nil
		}
	}
	return ErrEntryNotFound
}

func (m *MemoryLogs) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*models.InconsistencyLogEntry
	var removed int64
	for _, e := range m.entries {
		if e.Resolved && e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}

func (m *MemoryLogs) CountByType(ctx context.Context) (map[string]int64, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byType := make(map[string]int64)
	var unresolved int64
	for _, e := range m.entries {
		byType[e.Type]++
		if !e.Resolved {
			unresolved++
		}
	}
	return byType, unresolved, nil
}

// MemoryDeletedAccounts is an in-memory DeletedAccounts used by unit tests.
type MemoryDeletedAccounts struct {
	mu      sync.RWMutex
	records []*models.DeletedAccountRecord
}

func NewMemoryDeletedAccounts() *MemoryDeletedAccounts {
	return &MemoryDeletedAccounts{}
}

func (m *MemoryDeletedAccounts) Add(ctx context.Context, rec *models.DeletedAccountRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *MemoryDeletedAccounts) ByUser(ctx context.Context, userID string) (*models.DeletedAccountRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.UserID == userID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryDeletedAccounts) List(ctx context.Context, limit int) ([]*models.DeletedAccountRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.DeletedAccountRecord, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.After(out[j].DeletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
