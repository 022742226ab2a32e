// Package viewcache caches each user's mapped entry list between submissions.
package viewcache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"
)

// Cache stores one JSON-encoded value per user. A miss is reported with
// found == false and a nil error.
type Cache interface {
	Get(ctx context.Context, userID int, dst interface{}) (found bool, err error)
	Set(ctx context.Context, userID int, value interface{}) error
	Invalidate(ctx context.Context, userID int) error
}

const keyPrefix = "watchlog:entries:"

func key(userID int) string {
	return keyPrefix + strconv.Itoa(userID)
}

// RedisCache keeps views in Redis so every API process sees the same
// invalidations.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to the Redis server at url (redis://…) and pings it.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, userID int, dst interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, errors.WithStack(err)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID int, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.client.Set(ctx, key(userID), data, c.ttl).Err())
}

func (c *RedisCache) Invalidate(ctx context.Context, userID int) error {
	return errors.WithStack(c.client.Del(ctx, key(userID)).Err())
}

func (c *RedisCache) Close() error {
	return errors.WithStack(c.client.Close())
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is the single-process fallback used when no Redis URL is
// configured. Values are stored encoded so callers never share memory with
// the cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[int]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		items: map[int]memoryItem{},
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, userID int, dst interface{}) (bool, error) {
	c.mu.RLock()
	item, ok := c.items[userID]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !item.expiresAt.IsZero() && !c.now().Before(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, userID)
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(item.data, dst); err != nil {
		return false, errors.WithStack(err)
	}
	return true, nil
}

func (c *MemoryCache) Set(_ context.Context, userID int, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WithStack(err)
	}
	item := memoryItem{data: data}
	if c.ttl > 0 {
		item.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.items[userID] = item
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID int) error {
	c.mu.Lock()
	delete(c.items, userID)
	c.mu.Unlock()
	return nil
}
