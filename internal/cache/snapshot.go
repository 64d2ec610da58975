package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Snapshot persists last-known-good provider data so degraded mode can serve it
// after a restart, before falling back to the static dataset.
type Snapshot interface {
	Save(ctx context.Context, key string, v any) error
	// Load decodes the value for key into v. It reports false when nothing is stored.
	Load(ctx context.Context, key string, v any) (bool, error)
}

// NopSnapshot stores nothing.
type NopSnapshot struct{}

func (NopSnapshot) Save(context.Context, string, any) error { return nil }

func (NopSnapshot) Load(context.Context, string, any) (bool, error) { return false, nil }

// MemorySnapshot keeps JSON-encoded values in process memory.
type MemorySnapshot struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemorySnapshot creates an empty in-memory snapshot.
func NewMemorySnapshot() *MemorySnapshot {
	return &MemorySnapshot{values: make(map[string][]byte)}
}

func (s *MemorySnapshot) Save(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = b
	return nil
}

func (s *MemorySnapshot) Load(_ context.Context, key string, v any) (bool, error) {
	s.mu.RLock()
	b, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return true, nil
}

// RedisSnapshotConfig configures the Redis-backed snapshot.
type RedisSnapshotConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisSnapshot stores JSON-encoded values in Redis with an expiry.
type RedisSnapshot struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshot connects a snapshot store. It does not ping the server.
func NewRedisSnapshot(cfg RedisSnapshotConfig) (*RedisSnapshot, error) {
	if cfg.Addr == "" {
		return nil, errors.New("snapshot redis addr is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "tarif:snapshot:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisSnapshot{client: client, prefix: prefix, ttl: ttl}, nil
}

func (s *RedisSnapshot) Save(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	return s.client.Set(ctx, s.prefix+key, b, s.ttl).Err()
}

func (s *RedisSnapshot) Load(ctx context.Context, key string, v any) (bool, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return true, nil
}

// Ping checks connectivity.
func (s *RedisSnapshot) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisSnapshot) Close() error {
	return s.client.Close()
}

var (
	_ Snapshot = NopSnapshot{}
	_ Snapshot = (*MemorySnapshot)(nil)
	_ Snapshot = (*RedisSnapshot)(nil)
)
