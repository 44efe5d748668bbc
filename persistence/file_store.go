package persistence

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/busylang/busyflow/process"
)

// FileAuditStore persists audit entries as JSON lines, one file per
// process, under a configured directory. Suitable for single-node
// deployments.
type FileAuditStore struct {
	dir    string
	mu     sync.Mutex
	closed bool
}

// NewFileAuditStore creates a file-backed audit store rooted at cfg.Dir.
func NewFileAuditStore(cfg FileConfig) (*FileAuditStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file audit store requires a directory: %w", ErrInvalidInput)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &FileAuditStore{dir: cfg.Dir}, nil
}

// Close closes the store.
func (s *FileAuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store directory is accessible.
func (s *FileAuditStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.dir)
	return err
}

// Save appends one audit entry to its process file.
func (s *FileAuditStore) Save(ctx context.Context, entry process.AuditEntry) error {
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

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	f, err := os.OpenFile(s.processPath(entry.ProcessID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// SaveTrail persists a full trail in order.
func (s *FileAuditStore) SaveTrail(ctx context.Context, entries []process.AuditEntry) error {
	for _, entry := range entries {
		if err := s.Save(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Load retrieves an entry by its ID, scanning all process files.
func (s *FileAuditStore) Load(ctx context.Context, id string) (process.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return process.AuditEntry{}, ErrStoreClosed
	}

	files, err := filepath.Glob(filepath.Join(s.dir, "*.jsonl"))
	if err != nil {
		return process.AuditEntry{}, err
	}
	for _, path := range files {
		entries, err := readEntries(path)
		if err != nil {
			return process.AuditEntry{}, err
		}
		for _, entry := range entries {
			if entry.ID == id {
				return entry, nil
			}
		}
	}
	return process.AuditEntry{}, ErrNotFound
}

// ListByProcess returns a process's entries ordered by timestamp.
func (s *FileAuditStore) ListByProcess(ctx context.Context, processID string, limit int) ([]process.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, err := readEntries(s.processPath(processID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *FileAuditStore) processPath(processID string) string {
	return filepath.Join(s.dir, processID+".jsonl")
}

func readEntries(path string) ([]process.AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []process.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry process.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("corrupt audit line in %s: %w", path, err)
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}
