package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/opspulse/internal/cache"
	"github.com/smallbiznis/opspulse/internal/clock"
)

const DefaultKeyPrefix = "opspulse:idempotency"

// Store maps idempotency keys to the job id they produced.
type Store interface {
	// Lookup returns the registered id, or "" when the key is unknown.
	Lookup(ctx context.Context, key string) (string, error)
	// SetIfAbsent registers jobID under key unless a value exists, and
	// returns whichever value is registered afterwards.
	SetIfAbsent(ctx context.Context, key, jobID string, ttl time.Duration) (registered string, created bool, err error)
}

type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) Lookup(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key, jobID string, ttl time.Duration) (string, bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), jobID, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return jobID, true, nil
	}
	existing, err := s.Lookup(ctx, key)
	if err != nil {
		return "", false, err
	}
	if existing == "" {
		// Expired between SETNX and GET.
		return jobID, false, nil
	}
	return existing, false, nil
}

// MemoryStore keeps keys in process. Entries expire on read.
type MemoryStore struct {
	entries *cache.TTLCache[string, string]
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &MemoryStore{entries: cache.NewTTLCache[string, string](cache.WithNow(clk.Now))}
}

func (s *MemoryStore) Lookup(_ context.Context, key string) (string, error) {
	value, _ := s.entries.Get(key)
	return value, nil
}

func (s *MemoryStore) SetIfAbsent(_ context.Context, key, jobID string, ttl time.Duration) (string, bool, error) {
	registered, created := s.entries.SetIfAbsent(key, jobID, ttl)
	return registered, created, nil
}
