// Package cache holds the redis-backed unread-counter cache. The
// unread badge is polled by every client on every focus change, which
// would otherwise be a count(*) per poll; the counter is cached with a
// short TTL and invalidated on every notification mutation.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const unreadTTL = 5 * time.Minute

type UnreadCache struct {
	client *redis.Client
}

func NewUnreadCache(client *redis.Client) *UnreadCache {
	return &UnreadCache{client: client}
}

func unreadKey(userID uuid.UUID) string {
	return fmt.Sprintf("unread:%s", userID)
}

// Get returns the cached unread count. The second return is false on a
// cache miss; a redis failure is reported as a miss with the error.
func (c *UnreadCache) Get(ctx context.Context, userID uuid.UUID) (int64, bool, error) {
	val, err := c.client.Get(ctx, unreadKey(userID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get unread count: %w", err)
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cached unread count: %w", err)
	}
	return count, true, nil
}

func (c *UnreadCache) Set(ctx context.Context, userID uuid.UUID, count int64) error {
	if err := c.client.Set(ctx, unreadKey(userID), count, unreadTTL).Err(); err != nil {
		return fmt.Errorf("set unread count: %w", err)
	}
	return nil
}

// Invalidate drops the cached counter so the next read recomputes it.
func (c *UnreadCache) Invalidate(ctx context.Context, userIDs ...uuid.UUID) error {
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = unreadKey(id)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate unread count: %w", err)
	}
	return nil
}
