// Package cache provides a Redis read-through cache for external tokens.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/jiaa-auth/internal/model"
)

const defaultPrefix = "jiaa:external_token"

// RedisTokenCache stores external tokens as JSON under <prefix>:<userID>.
// Entries live until the access token expires; tokens with no known expiry
// or that are already expired are not cached.
type RedisTokenCache struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisTokenCache wraps client. An empty prefix uses the default.
func NewRedisTokenCache(client redis.UniversalClient, prefix string) *RedisTokenCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisTokenCache{client: client, prefix: prefix, now: time.Now}
}

// Get returns the cached token for userID. ok is false on a miss.
func (c *RedisTokenCache) Get(ctx context.Context, userID int64) (*model.ExternalToken, bool, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}

	var t model.ExternalToken
	if err := json.Unmarshal(raw, &t); err != nil {
		// A corrupt entry is a miss; drop it so it does not linger.
		_ = c.client.Del(ctx, c.key(userID)).Err()
		return nil, false, nil
	}
	return &t, true, nil
}

// Set caches t until its access token expires.
func (c *RedisTokenCache) Set(ctx context.Context, t *model.ExternalToken) error {
	if t.ExpiresAt == nil {
		return c.Delete(ctx, t.UserID)
	}
	ttl := t.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return c.Delete(ctx, t.UserID)
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("cache: encoding token: %w", err)
	}
	if err := c.client.Set(ctx, c.key(t.UserID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Delete drops any cached token for userID.
func (c *RedisTokenCache) Delete(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("cache: delete: %w", err)
	}
	return nil
}

func (c *RedisTokenCache) key(userID int64) string {
	return c.prefix + ":" + strconv.FormatInt(userID, 10)
}
