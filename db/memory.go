package db

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"apartments-bot/filter"
	"apartments-bot/models"
)

// MemoryStore keeps the snapshot in process. Replacement swaps one pointer,
// so readers always hold a complete generation.
type MemoryStore struct {
	snapshot atomic.Pointer[[]models.Listing]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) ReplaceAll(ctx context.Context, listings []models.Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	createdAt := time.Now().UTC()
	next := make([]models.Listing, len(listings))
	for i, l := range listings {
		if l.Tag == "" {
			l.Tag = "[]"
		}
		l.CreatedAt = createdAt
		next[i] = l
	}
	m.snapshot.Store(&next)
	return nil
}

func (m *MemoryStore) load() []models.Listing {
	p := m.snapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (m *MemoryStore) Query(ctx context.Context, f filter.Filter, s filter.Sort) ([]models.Listing, error) {
	return filter.Apply(m.load(), f, s), nil
}

func (m *MemoryStore) Projects(ctx context.Context, f filter.Filter) ([]string, error) {
	seen := map[string]bool{}
	var names []string
	for _, l := range m.load() {
		if f.Matches(l) && !seen[l.ProjectName] {
			seen[l.ProjectName] = true
			names = append(names, l.ProjectName)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	return len(m.load()), nil
}
