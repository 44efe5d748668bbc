package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/busylang/busyflow/process"
)

// MemoryAuditStore is an in-memory implementation of AuditStore.
// Suitable for development and testing. Data is lost on restart.
type MemoryAuditStore struct {
	entries   map[string]process.AuditEntry
	byProcess map[string][]string
	mu        sync.RWMutex
	closed    bool
}

// NewMemoryAuditStore creates a new in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{
		entries:   make(map[string]process.AuditEntry),
		byProcess: make(map[string][]string),
	}
}

// Close closes the store.
func (s *MemoryAuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy.
func (s *MemoryAuditStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save persists one audit entry.
func (s *MemoryAuditStore) Save(ctx context.Context, entry process.AuditEntry) error {
	if entry.ProcessID == "" {
		return ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.entries[entry.ID]; !exists {
		s.byProcess[entry.ProcessID] = append(s.byProcess[entry.ProcessID], entry.ID)
	}
	s.entries[entry.ID] = entry
	return nil
}

// SaveTrail persists a full trail in order.
func (s *MemoryAuditStore) SaveTrail(ctx context.Context, entries []process.AuditEntry) error {
	for _, entry := range entries {
		if err := s.Save(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Load retrieves an entry by its ID.
func (s *MemoryAuditStore) Load(ctx context.Context, id string) (process.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return process.AuditEntry{}, ErrStoreClosed
	}
	entry, ok := s.entries[id]
	if !ok {
		return process.AuditEntry{}, ErrNotFound
	}
	return entry, nil
}

// ListByProcess returns a process's entries ordered by timestamp.
func (s *MemoryAuditStore) ListByProcess(ctx context.Context, processID string, limit int) ([]process.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	ids := s.byProcess[processID]
	result := make([]process.AuditEntry, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.entries[id])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
