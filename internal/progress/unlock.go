package progress

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"
)

// UnlockStore remembers which paid courses a user has unlocked.
type UnlockStore interface {
	Unlock(ctx context.Context, userID, courseID string) error
	IsUnlocked(ctx context.Context, userID, courseID string) (bool, error)
	Unlocked(ctx context.Context, userID string) ([]string, error)
}

// MemoryUnlocks is an in-process UnlockStore.
type MemoryUnlocks struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

// NewMemoryUnlocks creates an empty in-memory unlock store.
func NewMemoryUnlocks() *MemoryUnlocks {
	return &MemoryUnlocks{users: make(map[string]map[string]struct{})}
}

func (m *MemoryUnlocks) Unlock(_ context.Context, userID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.users[userID]
	if !ok {
		set = make(map[string]struct{})
		m.users[userID] = set
	}
	set[courseID] = struct{}{}
	return nil
}

func (m *MemoryUnlocks) IsUnlocked(_ context.Context, userID, courseID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[userID][courseID]
	return ok, nil
}

func (m *MemoryUnlocks) Unlocked(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.users[userID]))
	for id := range m.users[userID] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// RedisUnlocks keeps one Redis set per user.
type RedisUnlocks struct {
	client *redis.Client
	prefix string
}

// NewRedisUnlocks creates an UnlockStore backed by Redis or Dragonfly.
func NewRedisUnlocks(client *redis.Client) *RedisUnlocks {
	return &RedisUnlocks{client: client, prefix: "academy:unlocks:"}
}

func (r *RedisUnlocks) key(userID string) string {
	return r.prefix + userID
}

func (r *RedisUnlocks) Unlock(ctx context.Context, userID, courseID string) error {
	if err := r.client.SAdd(ctx, r.key(userID), courseID).Err(); err != nil {
		return fmt.Errorf("recording unlock: %w", err)
	}
	return nil
}

func (r *RedisUnlocks) IsUnlocked(ctx context.Context, userID, courseID string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key(userID), courseID).Result()
	if err != nil {
		return false, fmt.Errorf("checking unlock: %w", err)
	}
	return ok, nil
}

func (r *RedisUnlocks) Unlocked(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing unlocks: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}
