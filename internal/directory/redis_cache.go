package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"strand/api/internal/store"
)

// Cache is a Redis-backed profile cache fronting the document store for
// batch lookups. Entries expire on a TTL and are invalidated by identity
// lifecycle events.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCache creates a Redis-backed profile cache.
func NewCache(redisURL string, ttl time.Duration) (*Cache, error) {
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

	return NewCacheWithClient(client, ttl), nil
}

// NewCacheWithClient creates a cache from an existing Redis client.
func NewCacheWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Cache{client: client, prefix: "profile:", ttl: ttl}
}

func (c *Cache) key(authorID string) string {
	return c.prefix + authorID
}

// GetMany returns the cached profiles for the given identities and the
// list of ids that missed.
func (c *Cache) GetMany(ctx context.Context, authorIDs []string) (map[string]store.Profile, []string, error) {
	if len(authorIDs) == 0 {
		return map[string]store.Profile{}, nil, nil
	}
	keys := make([]string, len(authorIDs))
	for i, id := range authorIDs {
		keys[i] = c.key(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("mget profiles: %w", err)
	}

	hits := make(map[string]store.Profile, len(authorIDs))
	misses := []string{}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			misses = append(misses, authorIDs[i])
			continue
		}
		var profile store.Profile
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			// Treat a corrupt entry as a miss; it gets rewritten.
			misses = append(misses, authorIDs[i])
			continue
		}
		hits[authorIDs[i]] = profile
	}
	return hits, misses, nil
}

// Set stores one profile with the cache TTL.
func (c *Cache) Set(ctx context.Context, profile store.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := c.client.Set(ctx, c.key(profile.AuthorID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache profile: %w", err)
	}
	return nil
}

// Delete drops a cached profile. Deleting an absent entry is not an error.
func (c *Cache) Delete(ctx context.Context, authorID string) error {
	if err := c.client.Del(ctx, c.key(authorID)).Err(); err != nil {
		return fmt.Errorf("invalidate profile: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
