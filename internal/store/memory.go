package store

import (
	"context"
	"sort"
	"sync"

	"licensegate/pkg/contracts/domain"
)

// MemoryStore is a mutex-guarded in-memory Store. It is the default for
// tests and local development, and the reference semantics for the SQLite
// implementation.
type MemoryStore struct {
	mu         sync.RWMutex
	licenses   map[string]domain.LicenseRecord
	usage      []domain.UsageEvent
	violations []domain.ViolationEvent
	maxEvents  int
}

// NewMemoryStore creates an in-memory store retaining at most maxEvents
// telemetry events per kind. maxEvents <= 0 selects the default of 10000.
func NewMemoryStore(maxEvents int) *MemoryStore {
	if maxEvents <= 0 {
		maxEvents = 10000
	}
	return &MemoryStore{
		licenses:  make(map[string]domain.LicenseRecord),
		maxEvents: maxEvents,
	}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*domain.LicenseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.licenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec
	return &cp, nil
}

func (m *MemoryStore) FindByToken(ctx context.Context, token string) (*domain.LicenseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.licenses {
		if rec.Token == token {
			cp := rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) List(ctx context.Context) ([]*domain.LicenseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.LicenseRecord, 0, len(m.licenses))
	for _, rec := range m.licenses {
		cp := rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Save(ctx context.Context, rec *domain.LicenseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.licenses[rec.ID] = *rec
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*domain.LicenseRecord) error) (*domain.LicenseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.licenses[id]
	if !ok {
		return nil, ErrNotFound
	}

	if err := fn(&rec); err != nil {
		return nil, err
	}

	m.licenses[id] = rec
	cp := rec
	return &cp, nil
}

func (m *MemoryStore) AppendUsage(ctx context.Context, e domain.UsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.usage = append(m.usage, e)
	if len(m.usage) > m.maxEvents {
		m.usage = m.usage[len(m.usage)-m.maxEvents:]
	}
	return nil
}

func (m *MemoryStore) AppendViolation(ctx context.Context, e domain.ViolationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.violations = append(m.violations, e)
	if len(m.violations) > m.maxEvents {
		m.violations = m.violations[len(m.violations)-m.maxEvents:]
	}
	return nil
}

func (m *MemoryStore) Usage(ctx context.Context, f EventFilter) ([]domain.UsageEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.UsageEvent
	for _, e := range m.usage {
		if f.MatchesUsage(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) Violations(ctx context.Context, f EventFilter) ([]domain.ViolationEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.ViolationEvent
	for _, e := range m.violations {
		if f.MatchesViolation(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
