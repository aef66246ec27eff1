// Package permcache caches resolved permissions in Redis. Entries carry a
// short TTL and invalidation is best-effort: reads are allowed to lag an
// in-flight structural mutation, so a stale entry expiring on its own is
// acceptable.
package permcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is a cached resolution result. An empty Permission records a
// negative result (no access), so repeated lookups for unshared notes do
// not re-walk the ancestor chain.
type Entry struct {
	Permission    string    `json:"permission"`
	InheritedFrom string    `json:"inherited_from"`
	Distance      int       `json:"distance"`
	Pending       bool      `json:"pending"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{client: client, prefix: "perm:", ttl: ttl}
}

func (c *RedisCache) key(noteID, userID string) string {
	return c.prefix + noteID + ":" + userID
}

// Get returns the cached entry and whether one was present.
func (c *RedisCache) Get(ctx context.Context, noteID, userID string) (*Entry, bool, error) {
	payload, err := c.client.Get(ctx, c.key(noteID, userID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return &entry, true, nil
}

func (c *RedisCache) Put(ctx context.Context, noteID, userID string, entry Entry) error {
	entry.ResolvedAt = time.Now()
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.client.Set(ctx, c.key(noteID, userID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Delete drops the entry for one (note, user) pair, used when a grant on
// that exact note changes.
func (c *RedisCache) Delete(ctx context.Context, noteID, userID string) error {
	if err := c.client.Del(ctx, c.key(noteID, userID)).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Invalidate drops every cached resolution for a note.
func (c *RedisCache) Invalidate(ctx context.Context, noteID string) error {
	iter := c.client.Scan(ctx, 0, c.prefix+noteID+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
