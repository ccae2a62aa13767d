package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Store tracks fixed-window request counts per key.
type Store interface {
	// Incr records a hit for key. A missing or expired bucket is replaced
	// with a fresh one at count 1. Returns the updated count and the instant
	// the bucket's window expires.
	Incr(ctx context.Context, key string, window time.Duration) (count int64, windowExpiresAt time.Time, err error)
	// Reset clears the bucket for key, or all buckets when key is empty.
	Reset(ctx context.Context, key string) error
}

const memShardCount = 32

type memBucket struct {
	count     int64
	expiresAt time.Time
}

type memShard struct {
	mu      sync.Mutex
	buckets map[string]memBucket
}

// MemoryStore is the single-instance store: a sharded map so that unrelated
// keys do not serialize on one lock. Expired buckets are lazily replaced on
// the next hit, never decremented.
type MemoryStore struct {
	shards [memShardCount]memShard
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].buckets = make(map[string]memBucket)
	}
	return s
}

func (s *MemoryStore) shard(key string) *memShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.shards[h.Sum32()%memShardCount]
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := s.now()
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[key]
	if !ok || !now.Before(b.expiresAt) {
		b = memBucket{count: 1, expiresAt: now.Add(window)}
	} else {
		b.count++
	}
	sh.buckets[key] = b
	return b.count, b.expiresAt, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	if key == "" {
		for i := range s.shards {
			sh := &s.shards[i]
			sh.mu.Lock()
			sh.buckets = make(map[string]memBucket)
			sh.mu.Unlock()
		}
		return nil
	}
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.buckets, key)
	sh.mu.Unlock()
	return nil
}
