// Package cache holds the rendered question schema per language so kiosks
// polling GET /api/questions do not hit Postgres on every load.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SchemaCache stores the JSON-encoded schema keyed by language.
type SchemaCache interface {
	Get(ctx context.Context, lang string) ([]byte, bool)
	Set(ctx context.Context, lang string, schema []byte) error
	// Invalidate drops every language at once.
	Invalidate(ctx context.Context) error
}

const schemaKey = "intake:schema"

// RedisSchemaCache keeps all languages in one hash so a single DEL
// invalidates them together.
type RedisSchemaCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func NewRedisSchemaCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisSchemaCache {
	return &RedisSchemaCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisSchemaCache) Get(ctx context.Context, lang string) ([]byte, bool) {
	b, err := c.client.HGet(ctx, schemaKey, lang).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("lang", lang).Msg("schema cache read failed")
		}
		return nil, false
	}
	return b, true
}

func (c *RedisSchemaCache) Set(ctx context.Context, lang string, schema []byte) error {
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, schemaKey, lang, schema)
	// The first write after an invalidation starts the TTL.
	pipe.ExpireNX(ctx, schemaKey, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write schema cache: %w", err)
	}
	return nil
}

func (c *RedisSchemaCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, schemaKey).Err(); err != nil {
		return fmt.Errorf("invalidate schema cache: %w", err)
	}
	return nil
}

type memoryEntry struct {
	schema  []byte
	expires time.Time
}

// MemorySchemaCache is the single-process fallback used when REDIS_URL is
// unset.
type MemorySchemaCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemorySchemaCache(ttl time.Duration) *MemorySchemaCache {
	return &MemorySchemaCache{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemorySchemaCache) Get(_ context.Context, lang string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[lang]
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return e.schema, true
}

func (c *MemorySchemaCache) Set(_ context.Context, lang string, schema []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[lang] = memoryEntry{schema: append([]byte(nil), schema...), expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemorySchemaCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}
