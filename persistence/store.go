// Package persistence provides durable storage for process audit trails.
//
// The process core performs no I/O: the audit trail is the durable record a
// caller may persist, and this package sits at that collaborator boundary.
//
// Supported backends:
// - Memory: for development and testing (default)
// - File: for single-node deployments
// - Redis: for distributed deployments
// - Sqlite: for embedded single-file deployments
package persistence

import (
	"context"
	"errors"

	"github.com/busylang/busyflow/process"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSqlite StoreType = "sqlite"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// FileConfig configures the file backend.
type FileConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

// SqliteConfig configures the sqlite backend.
type SqliteConfig struct {
	Path string `json:"path" yaml:"path"`
}

// StoreConfig selects and configures an audit store backend.
type StoreConfig struct {
	Type   StoreType    `json:"type" yaml:"type"`
	File   FileConfig   `json:"file" yaml:"file"`
	Redis  RedisConfig  `json:"redis" yaml:"redis"`
	Sqlite SqliteConfig `json:"sqlite" yaml:"sqlite"`
}

// DefaultStoreConfig returns an in-memory store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Type: StoreTypeMemory}
}

// AuditStore persists audit entries. Entries are append-only; no operation
// mutates or removes a saved entry.
type AuditStore interface {
	// Save persists one audit entry.
	Save(ctx context.Context, entry process.AuditEntry) error
	// SaveTrail persists a full trail in order.
	SaveTrail(ctx context.Context, entries []process.AuditEntry) error
	// Load retrieves an entry by its ID.
	Load(ctx context.Context, id string) (process.AuditEntry, error)
	// ListByProcess returns a process's entries ordered by timestamp.
	// limit <= 0 means no limit.
	ListByProcess(ctx context.Context, processID string, limit int) ([]process.AuditEntry, error)
	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error
	// Close releases the store.
	Close() error
}
