package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindow_Allow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	l := NewFixedWindow(&Client{store: mock, namespace: "store"}, 2, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)

	d, err := l.Allow(ctx, "1.2.3.4", now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, 2, d.Limit)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 1, 0, 0, time.UTC), d.ResetAt)
	require.Len(t, mock.expireCalls, 1)
	assert.Equal(t, time.Minute, mock.expireCalls[0].ttl)

	d, err = l.Allow(ctx, "1.2.3.4", now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Len(t, mock.expireCalls, 1, "expire is set once per window")

	d, err = l.Allow(ctx, "1.2.3.4", now.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = l.Allow(ctx, "1.2.3.4", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, d.Allowed, "next window starts a fresh counter")

	d, err = l.Allow(ctx, "5.6.7.8", now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestClient_Idempotency(t *testing.T) {
	ctx := context.Background()
	c := &Client{store: newMockCmdable(), namespace: "store"}
	key := c.IdempotencyKey("u1|POST|/api/v1/orders/c1", "k1")
	assert.Equal(t, "store:idempotency:u1|POST|/api/v1/orders/c1:k1", key)

	_, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := c.SetNX(ctx, key, "pending", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, key, "other", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, "done", time.Hour))
	v, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "done", v)

	require.NoError(t, c.Del(ctx, key))
	_, found, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClient_GetError(t *testing.T) {
	mock := newMockCmdable()
	mock.getErr = fmt.Errorf("connection refused")
	c := &Client{store: mock}

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
}

// --- Mock implementations ---

type expireCall struct {
	key string
	ttl time.Duration
}

type mockCmdable struct {
	data        map[string]string
	counters    map[string]int64
	expireCalls []expireCall
	getErr      error
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     make(map[string]string),
		counters: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	m.counters[key]++
	return redis.NewIntResult(m.counters[key], nil)
}

func (m *mockCmdable) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: ttl})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(m.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
