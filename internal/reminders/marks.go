package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMarkTTL    = 48 * time.Hour
	defaultMarkPrefix = "padel:reminder:"
)

// Marks records which reminders were already sent. Mark reports whether the
// key was newly marked; Unmark releases a key whose send failed.
type Marks interface {
	Mark(ctx context.Context, key string) (bool, error)
	Unmark(ctx context.Context, key string) error
}

// MemoryMarks keeps marks in process. Entries expire after the TTL.
type MemoryMarks struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	marks map[string]time.Time
}

func NewMemoryMarks() *MemoryMarks {
	return &MemoryMarks{ttl: defaultMarkTTL, now: time.Now, marks: make(map[string]time.Time)}
}

func (m *MemoryMarks) Mark(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, at := range m.marks {
		if now.Sub(at) > m.ttl {
			delete(m.marks, k)
		}
	}
	if _, ok := m.marks[key]; ok {
		return false, nil
	}
	m.marks[key] = now
	return true, nil
}

func (m *MemoryMarks) Unmark(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.marks, key)
	m.mu.Unlock()
	return nil
}

// RedisMarks shares marks between replicas with SETNX.
type RedisMarks struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisMarks(client redis.UniversalClient) *RedisMarks {
	if client == nil {
		panic("reminders: redis client cannot be nil")
	}
	return &RedisMarks{client: client, prefix: defaultMarkPrefix, ttl: defaultMarkTTL}
}

func (m *RedisMarks) Mark(ctx context.Context, key string) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.prefix+key, time.Now().UTC().Format(time.RFC3339), m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reminders: mark %s: %w", key, err)
	}
	return ok, nil
}

func (m *RedisMarks) Unmark(ctx context.Context, key string) error {
	if err := m.client.Del(ctx, m.prefix+key).Err(); err != nil {
		return fmt.Errorf("reminders: unmark %s: %w", key, err)
	}
	return nil
}
