package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var rule = Rule{Limit: 3, Window: time.Minute}

func newRedisLimiter(t *testing.T, clock *testClock) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	l := NewRedis(client, "login", rule)
	l.now = clock.Now
	return l
}

func TestLimiters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		make func(t *testing.T, clock *testClock) Limiter
	}{
		{name: "memory", make: func(_ *testing.T, clock *testClock) Limiter { return NewMemory(rule, WithClock(clock.Now)) }},
		{name: "redis", make: func(t *testing.T, clock *testClock) Limiter { return newRedisLimiter(t, clock) }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			l := tc.make(t, clock)
			ctx := context.Background()

			for i := 0; i < rule.Limit; i++ {
				ok, err := l.Allow(ctx, "10.0.0.1")
				require.NoError(t, err)
				require.True(t, ok, "request %d", i)
			}
			ok, err := l.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			assert.False(t, ok, "request over the limit")

			ok, err = l.Allow(ctx, "10.0.0.2")
			require.NoError(t, err)
			assert.True(t, ok, "other clients keep their own budget")

			clock.Advance(rule.Window)
			ok, err = l.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			assert.True(t, ok, "budget comes back after the window")
		})
	}
}

func TestLimiters_DisabledRuleAllowsEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &testClock{now: time.Now()}

	for _, l := range []Limiter{NewMemory(Rule{}), newRedisLimiter(t, clock)} {
		if r, ok := l.(*Redis); ok {
			r.rule = Rule{}
		}
		for i := 0; i < 10; i++ {
			ok, err := l.Allow(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
		}
	}
}

func TestMemory_DropsIdleKeys(t *testing.T) {
	t.Parallel()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemory(rule, WithClock(clock.Now))
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	require.Equal(t, 2, l.Len())

	clock.Advance(minIdle + time.Second)
	_, _ = l.Allow(ctx, "c")
	assert.Equal(t, 1, l.Len())
}

func TestRedis_SharedAcrossInstances(t *testing.T) {
	t.Parallel()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mr := miniredis.RunT(t)
	ctx := context.Background()

	var limiters []*Redis
	for i := 0; i < 2; i++ {
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		l := NewRedis(client, "login", rule)
		l.now = clock.Now
		limiters = append(limiters, l)
	}

	allowed := 0
	for i := 0; i < 2*rule.Limit; i++ {
		ok, err := limiters[i%2].Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	assert.Equal(t, rule.Limit, allowed)
	assert.True(t, mr.Exists("ratelimit:login:10.0.0.1"))
}
