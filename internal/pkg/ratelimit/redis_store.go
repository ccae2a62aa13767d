package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "waitlist:rate_limit:"

// RedisStore keeps the window counters in Redis so that every instance
// behind a load balancer shares the same buckets. The counter may run past
// the limit (INCR is unconditional); the limiter treats any count above max
// as blocking, so the contract is unaffected.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	k := redisKeyPrefix + key
	count, err := s.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		if err := s.rdb.PExpire(ctx, k, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
	}

	ttl, err := s.rdb.PTTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		// No expiry visible (races with the key disappearing); report a full
		// window so a blocked caller still gets a sane retry hint.
		ttl = window
	}
	return count, time.Now().Add(ttl), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if key != "" {
		return s.rdb.Del(ctx, redisKeyPrefix+key).Err()
	}

	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
