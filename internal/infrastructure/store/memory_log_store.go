package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLogStore keeps audit entries in process memory. Used for local runs.
type MemoryLogStore struct {
	mu      sync.RWMutex
	entries []LogEntry
	nextID  int64
	now     func() time.Time
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{nextID: 1, now: time.Now}
}

func (s *MemoryLogStore) Insert(ctx context.Context, entry *LogEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	entry.ID = s.nextID
	s.nextID++

	stored := *entry
	stored.EventData = append([]byte(nil), entry.EventData...)
	s.entries = append(s.entries, stored)
	return entry.ID, nil
}

func (s *MemoryLogStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryLogStore) List(ctx context.Context, offset, limit int) ([]LogEntry, error) {
	s.mu.RLock()
	sorted := s.sortedLocked(newestFirst)
	s.mu.RUnlock()

	return window(sorted, offset, limit), nil
}

func (s *MemoryLogStore) ListByOrder(ctx context.Context, orderID int64) ([]LogEntry, error) {
	s.mu.RLock()
	sorted := s.sortedLocked(newestFirst)
	s.mu.RUnlock()

	out := make([]LogEntry, 0)
	for _, e := range sorted {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryLogStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]LogEntry, error) {
	s.mu.RLock()
	sorted := s.sortedLocked(oldestFirst)
	s.mu.RUnlock()

	out := make([]LogEntry, 0)
	for _, e := range sorted {
		if !e.CreatedAt.Before(cutoff) {
			break
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

type entryOrder func(a, b LogEntry) bool

func newestFirst(a, b LogEntry) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func oldestFirst(a, b LogEntry) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *MemoryLogStore) sortedLocked(less entryOrder) []LogEntry {
	out := make([]LogEntry, len(s.entries))
	copy(out, s.entries)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func window(entries []LogEntry, offset, limit int) []LogEntry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return []LogEntry{}
	}
	end := len(entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return entries[offset:end]
}
