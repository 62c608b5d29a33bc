// Package cache provides the Redis-backed report cache for the domain service.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures a Redis cache.
type Options struct {
	URL            string
	Prefix         string
	TTL            time.Duration
	ConnectTimeout time.Duration
}

// Redis stores JSON-encoded reports. Keys carry a generation number read from
// a counter; Invalidate bumps the counter so older entries are never read again
// and age out through their TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts Options) (*Redis, error) {
	if opts.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	if opts.Prefix == "" {
		opts.Prefix = "timely:"
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}

	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{client: client, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

func (c *Redis) generationKey() string {
	return c.prefix + "generation"
}

func (c *Redis) key(ctx context.Context, key string) (string, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return c.prefix + "g" + strconv.FormatInt(gen, 10) + ":" + key, nil
}

// Get decodes the cached value for key into dst and reports whether it was found.
// The returned slot names key under the generation read here; pass it to Set.
func (c *Redis) Get(ctx context.Context, key string, dst any) (string, bool, error) {
	slot, err := c.key(ctx, key)
	if err != nil {
		return "", false, err
	}
	raw, err := c.client.Get(ctx, slot).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return slot, false, nil
	}
	if err != nil {
		return "", false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.misses.Add(1)
		return slot, false, err
	}
	c.hits.Add(1)
	return slot, true, nil
}

// Set stores value in a slot returned by Get. A generation bumped since that lookup
// leaves the entry unreachable.
func (c *Redis) Set(ctx context.Context, slot string, value any) error {
	if slot == "" {
		return errors.New("cache: empty slot")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, slot, raw, c.ttl).Err()
}

// Invalidate starts a new generation.
func (c *Redis) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, c.generationKey()).Err()
}

// Stats returns hit and miss counts since construction.
func (c *Redis) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close releases the client.
func (c *Redis) Close() error {
	return c.client.Close()
}
