package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis, grounded on the registry service's
// use of github.com/redis/go-redis/v9 for the pulse stream registry
// (registry/service.go). It serves as the remote tier of the two-tier cache
// described in spec §4.4.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// Compile-time check that RedisStore implements Store.
var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a RedisStore. Keys are namespaced under prefix to
// allow multiple caches to share one Redis instance.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(fingerprint string) string {
	return s.prefix + ":" + fingerprint
}

func (s *RedisStore) Lookup(ctx context.Context, fingerprint string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: redis get %q: %w", fingerprint, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("cache: redis decode %q: %w", fingerprint, err)
	}
	return e, true, nil
}

func (s *RedisStore) Insert(ctx context.Context, fingerprint string, entry Entry) error {
	// SetNX enforces first-write-wins without a round trip to check
	// existence first (spec §4.4 "insert is idempotent").
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: redis encode %q: %w", fingerprint, err)
	}
	if err := s.client.SetNX(ctx, s.key(fingerprint), b, 0).Err(); err != nil {
		return fmt.Errorf("cache: redis setnx %q: %w", fingerprint, err)
	}
	return nil
}
