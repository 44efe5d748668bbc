package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/busylang/busyflow/process"
)

const defaultAuditKeyPrefix = "busyflow:audit:"

// RedisAuditStore is a Redis-backed audit store. Entries are stored as
// JSON values keyed by entry ID, with a per-process sorted set indexing
// entries by timestamp for ordered retrieval.
type RedisAuditStore struct {
	client *redis.Client
	prefix string
}

// NewRedisAuditStore creates a Redis-backed store and verifies
// connectivity.
func NewRedisAuditStore(cfg RedisConfig) (*RedisAuditStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultAuditKeyPrefix
	}
	return &RedisAuditStore{client: client, prefix: prefix}, nil
}

// NewRedisAuditStoreWithClient wraps an existing client, used in tests.
func NewRedisAuditStoreWithClient(client *redis.Client) *RedisAuditStore {
	return &RedisAuditStore{client: client, prefix: defaultAuditKeyPrefix}
}

// Close releases the underlying client.
func (s *RedisAuditStore) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity.
func (s *RedisAuditStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Save stores one audit entry and indexes it under its process.
func (s *RedisAuditStore) Save(ctx context.Context, entry process.AuditEntry) error {
	if entry.ProcessID == "" {
		return ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(entry.ID), data, 0)
	pipe.ZAdd(ctx, s.processKey(entry.ProcessID), redis.Z{
		Score:  float64(entry.Timestamp.UnixNano()),
		Member: entry.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save audit entry: %w", err)
	}
	return nil
}

// SaveTrail persists a full trail in order.
func (s *RedisAuditStore) SaveTrail(ctx context.Context, entries []process.AuditEntry) error {
	for _, entry := range entries {
		if err := s.Save(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Load retrieves an audit entry by ID.
func (s *RedisAuditStore) Load(ctx context.Context, id string) (process.AuditEntry, error) {
	data, err := s.client.Get(ctx, s.entryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return process.AuditEntry{}, ErrNotFound
	}
	if err != nil {
		return process.AuditEntry{}, fmt.Errorf("failed to load audit entry: %w", err)
	}
	var entry process.AuditEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return process.AuditEntry{}, fmt.Errorf("corrupt audit entry %s: %w", id, err)
	}
	return entry, nil
}

// ListByProcess returns a process's entries ordered by timestamp.
func (s *RedisAuditStore) ListByProcess(ctx context.Context, processID string, limit int) ([]process.AuditEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRange(ctx, s.processKey(processID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	entries := make([]process.AuditEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := s.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisAuditStore) entryKey(id string) string {
	return s.prefix + "entry:" + id
}

func (s *RedisAuditStore) processKey(processID string) string {
	return s.prefix + "process:" + processID
}
