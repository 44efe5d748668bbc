package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/busylang/busyflow/process"
)

// auditRecord is the GORM model for persisted audit entries. The full
// entry is stored as a JSON payload alongside indexed columns used for
// retrieval.
type auditRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	ProcessID string    `gorm:"index;size:64"`
	Timestamp time.Time `gorm:"index"`
	Payload   []byte
}

func (auditRecord) TableName() string { return "audit_entries" }

// SqliteAuditStore is a SQLite-backed audit store using a pure-Go
// driver, so it builds without cgo.
type SqliteAuditStore struct {
	db *gorm.DB
}

// NewSqliteAuditStore opens (or creates) the database at cfg.Path and
// migrates the audit schema.
func NewSqliteAuditStore(cfg SqliteConfig) (*SqliteAuditStore, error) {
	path := cfg.Path
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&auditRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit schema: %w", err)
	}
	return &SqliteAuditStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SqliteAuditStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the database connection.
func (s *SqliteAuditStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Save persists one audit entry.
func (s *SqliteAuditStore) Save(ctx context.Context, entry process.AuditEntry) error {
	if entry.ProcessID == "" {
		return ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	record := auditRecord{
		ID:        entry.ID,
		ProcessID: entry.ProcessID,
		Timestamp: entry.Timestamp,
		Payload:   payload,
	}
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to save audit entry: %w", err)
	}
	return nil
}

// SaveTrail persists a full trail in one transaction.
func (s *SqliteAuditStore) SaveTrail(ctx context.Context, entries []process.AuditEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			if entry.ProcessID == "" {
				return ErrInvalidInput
			}
			if entry.ID == "" {
				entry.ID = uuid.NewString()
			}
			payload, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("failed to marshal audit entry: %w", err)
			}
			record := auditRecord{
				ID:        entry.ID,
				ProcessID: entry.ProcessID,
				Timestamp: entry.Timestamp,
				Payload:   payload,
			}
			if err := tx.Save(&record).Error; err != nil {
				return fmt.Errorf("failed to save audit entry: %w", err)
			}
		}
		return nil
	})
}

// Load retrieves an audit entry by ID.
func (s *SqliteAuditStore) Load(ctx context.Context, id string) (process.AuditEntry, error) {
	var record auditRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return process.AuditEntry{}, ErrNotFound
	}
	if err != nil {
		return process.AuditEntry{}, fmt.Errorf("failed to load audit entry: %w", err)
	}
	var entry process.AuditEntry
	if err := json.Unmarshal(record.Payload, &entry); err != nil {
		return process.AuditEntry{}, fmt.Errorf("corrupt audit entry %s: %w", id, err)
	}
	return entry, nil
}

// ListByProcess returns a process's entries ordered by timestamp.
func (s *SqliteAuditStore) ListByProcess(ctx context.Context, processID string, limit int) ([]process.AuditEntry, error) {
	query := s.db.WithContext(ctx).
		Where("process_id = ?", processID).
		Order("timestamp asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []auditRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	entries := make([]process.AuditEntry, 0, len(records))
	for _, record := range records {
		var entry process.AuditEntry
		if err := json.Unmarshal(record.Payload, &entry); err != nil {
			return nil, fmt.Errorf("corrupt audit entry %s: %w", record.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
