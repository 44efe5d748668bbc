package persistence

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/busylang/busyflow/process"
)

// WriteMetrics receives the outcome of every audit write.
type WriteMetrics interface {
	RecordAuditWrite(backend, status string)
}

// StoreOption configures store construction.
type StoreOption func(*storeOptions)

type storeOptions struct {
	metrics WriteMetrics
}

// WithWriteMetrics records every Save and SaveTrail outcome on sink.
func WithWriteMetrics(sink WriteMetrics) StoreOption {
	return func(o *storeOptions) { o.metrics = sink }
}

// NewAuditStore creates a new AuditStore based on the configuration
func NewAuditStore(config StoreConfig, opts ...StoreOption) (AuditStore, error) {
	var options storeOptions
	for _, opt := range opts {
		opt(&options)
	}

	var (
		store AuditStore
		err   error
	)
	switch config.Type {
	case StoreTypeMemory:
		store = NewMemoryAuditStore()
	case StoreTypeFile:
		store, err = NewFileAuditStore(config.File)
	case StoreTypeRedis:
		store, err = NewRedisAuditStore(config.Redis)
	case StoreTypeSqlite:
		store, err = NewSqliteAuditStore(config.Sqlite)
	default:
		return nil, fmt.Errorf("unsupported audit store type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if options.metrics != nil {
		store = &InstrumentedStore{
			AuditStore: store,
			backend:    string(config.Type),
			metrics:    options.metrics,
		}
	}
	return store, nil
}

// MustNewAuditStore creates a new AuditStore or panics on error.
//
// WARNING: This function should ONLY be used during application initialization
// (e.g., in main() or init()). Using panic in request handlers or business logic
// is strongly discouraged. For runtime store creation, use NewAuditStore instead.
func MustNewAuditStore(config StoreConfig, opts ...StoreOption) AuditStore {
	store, err := NewAuditStore(config, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create audit store: %v", err))
	}
	return store
}

// NewAuditStoreOrExit creates a new AuditStore or exits the program on error.
// This is a safer alternative to MustNewAuditStore for CLI applications.
func NewAuditStoreOrExit(config StoreConfig, opts ...StoreOption) AuditStore {
	store, err := NewAuditStore(config, opts...)
	if err != nil {
		log.Printf("FATAL: failed to create audit store: %v", err)
		os.Exit(1)
	}
	return store
}

// InstrumentedStore wraps a backend and records write outcomes on a
// metrics sink. Reads pass through untouched.
type InstrumentedStore struct {
	AuditStore
	backend string
	metrics WriteMetrics
}

// Backend reports the wrapped backend's configured type.
func (s *InstrumentedStore) Backend() string { return s.backend }

// Save persists one entry and records the outcome.
func (s *InstrumentedStore) Save(ctx context.Context, entry process.AuditEntry) error {
	err := s.AuditStore.Save(ctx, entry)
	s.metrics.RecordAuditWrite(s.backend, writeStatus(err))
	return err
}

// SaveTrail persists a full trail and records the outcome once.
func (s *InstrumentedStore) SaveTrail(ctx context.Context, entries []process.AuditEntry) error {
	err := s.AuditStore.SaveTrail(ctx, entries)
	s.metrics.RecordAuditWrite(s.backend, writeStatus(err))
	return err
}

func writeStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
