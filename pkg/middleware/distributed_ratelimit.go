package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/monay/backend-core/pkg/observability"
)

// RedisCounterStore implements CounterStore, GlobalCounter and LedgerStore on
// a shared Redis, so every gateway replica enforces the same windows.
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCounterStore creates a store namespaced under prefix.
func NewRedisCounterStore(client *redis.Client, prefix string) *RedisCounterStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisCounterStore{client: client, prefix: prefix}
}

// globalWindow bounds the per-principal global counter.
const globalWindow = 24 * time.Hour

// Incr atomically bumps the window counter and returns the new count with the
// window's remaining lifetime. The first increment of a window arms its
// expiry; later increments must not touch it, or the fixed window would
// silently become a rolling one.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	redisKey := s.prefix + ":" + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttlCmd := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return incr.Val(), ttl, nil
}

// IncrGlobal bumps the principal's global request counter.
func (s *RedisCounterStore) IncrGlobal(ctx context.Context, principalID string) error {
	key := s.prefix + ":global:" + principalID

	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if ttlCmd.Val() < 0 {
		return s.client.Expire(ctx, key, globalWindow).Err()
	}
	return nil
}

// GlobalCount returns the principal's global request total, zero when the
// principal has no counter yet.
func (s *RedisCounterStore) GlobalCount(ctx context.Context, principalID string) (int64, error) {
	count, err := s.client.Get(ctx, s.prefix+":global:"+principalID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Debit adds cost to the ledger key and returns the new total, arming the
// ledger window on first touch.
func (s *RedisCounterStore) Debit(ctx context.Context, key string, cost int64, ttl time.Duration) (int64, error) {
	redisKey := s.prefix + ":budget:" + key

	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, redisKey, cost)
	ttlCmd := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	if ttlCmd.Val() < 0 {
		if err := s.client.Expire(ctx, redisKey, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return incr.Val(), nil
}

// Credit reverses a rejected debit.
func (s *RedisCounterStore) Credit(ctx context.Context, key string, cost int64) error {
	return s.client.DecrBy(ctx, s.prefix+":budget:"+key, cost).Err()
}

// Reset drops a single window counter. Used by admin tooling and tests.
func (s *RedisCounterStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+":"+key).Err()
}

// GlobalCountHandler feeds the per-principal global counter that backs the
// distributed ceiling check. Mounted once, after authentication and ahead of
// the policy router. Failures are logged and ignored.
func GlobalCountHandler(store *RedisCounterStore, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principal := GetPrincipal(r); principal != nil {
				ctx := context.WithoutCancel(r.Context())
				if err := store.IncrGlobal(ctx, principal.ID); err != nil {
					logger.WithError(err).Warn("failed to record global request count")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Stats reports the number of live keys per namespace under this store's
// prefix. Scanned, not KEYS: safe against a large keyspace.
func (s *RedisCounterStore) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 200).Iterator()
	for iter.Next(ctx) {
		stats["total_keys"]++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}
