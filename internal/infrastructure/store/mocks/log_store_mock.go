package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/wc-matomo-tracking/internal/infrastructure/store"
)

// MockLogStore is an in-memory LogStoreInterface that records calls for tests
type MockLogStore struct {
	mu    sync.Mutex
	inner *store.MemoryLogStore

	// For tracking calls in tests
	InsertCalls       []store.LogEntry
	ListCalls         []ListCall
	DeleteBeforeCalls []time.Time

	// Errors returned instead of touching the data when set
	InsertErr error
	CountErr  error
	ListErr   error
	DeleteErr error
}

// ListCall records parameters passed to List
type ListCall struct {
	Offset int
	Limit  int
}

// NewMockLogStore creates a new MockLogStore
func NewMockLogStore() *MockLogStore {
	return &MockLogStore{
		inner:             store.NewMemoryLogStore(),
		InsertCalls:       make([]store.LogEntry, 0),
		ListCalls:         make([]ListCall, 0),
		DeleteBeforeCalls: make([]time.Time, 0),
	}
}

func (m *MockLogStore) Insert(ctx context.Context, entry *store.LogEntry) (int64, error) {
	m.mu.Lock()
	m.InsertCalls = append(m.InsertCalls, *entry)
	err := m.InsertErr
	m.mu.Unlock()

	if err != nil {
		return 0, err
	}
	return m.inner.Insert(ctx, entry)
}

func (m *MockLogStore) Count(ctx context.Context) (int, error) {
	if err := m.getErr(&m.CountErr); err != nil {
		return 0, err
	}
	return m.inner.Count(ctx)
}

func (m *MockLogStore) List(ctx context.Context, offset, limit int) ([]store.LogEntry, error) {
	m.mu.Lock()
	m.ListCalls = append(m.ListCalls, ListCall{Offset: offset, Limit: limit})
	err := m.ListErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.inner.List(ctx, offset, limit)
}

func (m *MockLogStore) ListByOrder(ctx context.Context, orderID int64) ([]store.LogEntry, error) {
	if err := m.getErr(&m.ListErr); err != nil {
		return nil, err
	}
	return m.inner.ListByOrder(ctx, orderID)
}

func (m *MockLogStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]store.LogEntry, error) {
	if err := m.getErr(&m.ListErr); err != nil {
		return nil, err
	}
	return m.inner.ListBefore(ctx, cutoff, limit)
}

func (m *MockLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	m.DeleteBeforeCalls = append(m.DeleteBeforeCalls, cutoff)
	err := m.DeleteErr
	m.mu.Unlock()

	if err != nil {
		return 0, err
	}
	return m.inner.DeleteBefore(ctx, cutoff)
}

// AddEntry stores an entry directly for testing (without recording the call)
func (m *MockLogStore) AddEntry(entry store.LogEntry) int64 {
	id, _ := m.inner.Insert(context.Background(), &entry)
	return id
}

// Inserted returns a copy of the recorded Insert calls
func (m *MockLogStore) Inserted() []store.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.LogEntry, len(m.InsertCalls))
	copy(out, m.InsertCalls)
	return out
}

func (m *MockLogStore) getErr(field *error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *field
}
