// Package redis holds the shared state that must outlive a single API
// process: idempotency records and rate limit counters.
package redis

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const (
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
)

type cmdable interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ httpmiddleware.IdempotencyStore = (*Client)(nil)

// Client wraps a Redis connection with namespaced keys.
type Client struct {
	store     cmdable
	raw       *redis.Client
	namespace string
}

// Connect parses url, opens a client and pings it.
func Connect(ctx context.Context, url, namespace string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return &Client{store: raw, raw: raw, namespace: namespace}, nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.store.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) key(parts ...string) string {
	if c.namespace != "" {
		parts = append([]string{c.namespace}, parts...)
	}
	return strings.Join(parts, ":")
}

// IdempotencyKey returns the storage key of a client supplied key in scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.key(idempotencyPrefix, scope, id)
}

// Get returns the value at key. A missing key is not an error.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.store.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrap(err, "get")
	}
	return v, true, nil
}

// SetNX stores value only if key is absent.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.store.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "setnx")
	}
	return ok, nil
}

// Set overwrites key.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.store.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

// Del removes key.
func (c *Client) Del(ctx context.Context, key string) error {
	if err := c.store.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "del")
	}
	return nil
}

var _ httpmiddleware.Limiter = (*FixedWindow)(nil)

// FixedWindow is a rate limiter shared by every process using the same
// Redis. Each window has its own counter key, which expires with it.
type FixedWindow struct {
	c      *Client
	limit  int
	window time.Duration
}

// NewFixedWindow allows limit requests per key in each window.
func NewFixedWindow(c *Client, limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{c: c, limit: limit, window: window}
}

// Allow counts one request for key.
func (l *FixedWindow) Allow(ctx context.Context, key string, now time.Time) (httpmiddleware.RateDecision, error) {
	start := now.Truncate(l.window)
	k := l.c.key(rateLimitPrefix, key, strconv.FormatInt(start.Unix(), 10))

	count, err := l.c.store.Incr(ctx, k).Result()
	if err != nil {
		return httpmiddleware.RateDecision{}, errors.Wrap(err, "incr")
	}
	if count == 1 {
		if err := l.c.store.Expire(ctx, k, l.window).Err(); err != nil {
			return httpmiddleware.RateDecision{}, errors.Wrap(err, "expire")
		}
	}

	d := httpmiddleware.RateDecision{
		Limit:   l.limit,
		ResetAt: start.Add(l.window),
		Allowed: count <= int64(l.limit),
	}
	if d.Allowed {
		d.Remaining = l.limit - int(count)
	}
	return d, nil
}
