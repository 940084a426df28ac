package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/wc-matomo-tracking/internal/domain/order"
)

// MockOrderLookup is an in-memory order.Lookup for testing
type MockOrderLookup struct {
	mu     sync.RWMutex
	orders map[int64]*order.Snapshot

	// For tracking calls in tests
	GetCalls []int64
	GetErr   error
}

// NewMockOrderLookup creates a new MockOrderLookup
func NewMockOrderLookup() *MockOrderLookup {
	return &MockOrderLookup{
		orders:   make(map[int64]*order.Snapshot),
		GetCalls: make([]int64, 0),
	}
}

// Get returns a copy of the stored snapshot or order.ErrOrderNotFound
func (m *MockOrderLookup) Get(ctx context.Context, orderID int64) (*order.Snapshot, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, orderID)
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	snap, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, order.ErrOrderNotFound)
	}
	cp := *snap
	cp.Items = append([]order.Item(nil), snap.Items...)
	return &cp, nil
}

// SetOrder stores a snapshot directly for testing
func (m *MockOrderLookup) SetOrder(snap *order.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[snap.ID] = snap
}

// Calls returns the number of Get calls made
func (m *MockOrderLookup) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.GetCalls)
}
