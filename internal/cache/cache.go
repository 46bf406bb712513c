// Package cache keeps a copy of the student working set in Redis so a
// restarted server can answer reads before its first full listing.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/gradebook/internal/core"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultKey is the Redis key holding the snapshot.
const DefaultKey = "gradebook:snapshot:v1"

// DefaultTTL bounds how stale a warm start can be.
const DefaultTTL = 10 * time.Minute

// Config holds snapshot cache settings.
type Config struct {
	URL string
	Key string
	TTL time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// client is the part of *redis.Client the cache needs.
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Snapshot implements core.SnapshotCache on a single Redis key.
type Snapshot struct {
	rdb client
	key string
	ttl time.Duration
}

var _ core.SnapshotCache = (*Snapshot)(nil)

// payload is the stored form. Version guards against reading a layout
// written by an incompatible build.
type payload struct {
	Version int                  `json:"version"`
	SavedAt time.Time            `json:"savedAt"`
	Records []core.StudentRecord `json:"records"`
}

const payloadVersion = 1

// New connects to the Redis server at cfg.URL and pings it.
func New(ctx context.Context, cfg Config) (*Snapshot, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newSnapshot(rdb, cfg), nil
}

// Close releases the Redis connection.
func (s *Snapshot) Close() error {
	if c, ok := s.rdb.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func newSnapshot(rdb client, cfg Config) *Snapshot {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Snapshot{rdb: rdb, key: cfg.Key, ttl: cfg.TTL}
}

// Get returns the cached records. A missing key or an unreadable payload is a
// miss, not an error.
func (s *Snapshot) Get(ctx context.Context) ([]core.StudentRecord, bool, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get snapshot: %w", err)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil || p.Version != payloadVersion {
		return nil, false, nil
	}
	return p.Records, true, nil
}

// Set replaces the cached records.
func (s *Snapshot) Set(ctx context.Context, records []core.StudentRecord) error {
	if records == nil {
		records = []core.StudentRecord{}
	}
	data, err := json.Marshal(payload{Version: payloadVersion, SavedAt: time.Now().UTC(), Records: records})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

// Invalidate drops the cached records.
func (s *Snapshot) Invalidate(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
