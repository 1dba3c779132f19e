package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store holds one "alert already sent" flag per hazard. Flags expire after
// their TTL so an episode still ends when no clear is ever observed.
type Store interface {
	// Mark sets the flag, or extends it if already set, and reports whether
	// it was previously clear.
	Mark(ctx context.Context, hazard string, ttl time.Duration) (bool, error)
	// Clear removes the flag and reports whether it was set.
	Clear(ctx context.Context, hazard string) (bool, error)
	Active(ctx context.Context, hazard string) (bool, error)
}

// MemoryStore keeps flags in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{expires: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryStore) Mark(_ context.Context, hazard string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	first := !m.activeLocked(hazard, now)
	m.expires[hazard] = now.Add(ttl)
	return first, nil
}

func (m *MemoryStore) Clear(_ context.Context, hazard string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := m.activeLocked(hazard, m.now())
	delete(m.expires, hazard)
	return was, nil
}

func (m *MemoryStore) Active(_ context.Context, hazard string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(hazard, m.now()), nil
}

func (m *MemoryStore) activeLocked(hazard string, now time.Time) bool {
	exp, ok := m.expires[hazard]
	return ok && now.Before(exp)
}

// RedisStore keeps flags in Redis as expiring keys.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore stores flags under prefix+hazard.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(hazard string) string {
	return r.prefix + hazard
}

func (r *RedisStore) Mark(ctx context.Context, hazard string, ttl time.Duration) (bool, error) {
	key := r.key(hazard)
	first, err := r.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, err
	}
	if !first {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			return false, err
		}
	}
	return first, nil
}

func (r *RedisStore) Clear(ctx context.Context, hazard string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(hazard)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) Active(ctx context.Context, hazard string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(hazard)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
