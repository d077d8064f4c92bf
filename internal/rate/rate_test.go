package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/userrelay/internal/config"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *rdb.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr, c := newRedis(t)
	l := NewRedisLimiter(c, "t:", 2, time.Hour)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, int64(2-i), res.Remaining)
	}
	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, int64(3), res.CurrentHits)
	require.Greater(t, res.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, res.RetryAfter, time.Hour)

	// otra clave tiene su propio contador
	res, err = l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	keys := mr.Keys()
	require.Len(t, keys, 2)
	for _, k := range keys {
		require.Greater(t, mr.TTL(k), time.Duration(0), k)
	}
}

func TestRedisLimiter_ExpiresWithWindow(t *testing.T) {
	mr, c := newRedis(t)
	l := NewRedisLimiter(c, "", 1, time.Hour)
	ctx := context.Background()

	_, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)
	require.Empty(t, mr.Keys())
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	mr, c := newRedis(t)
	mr.Close()
	_, err := NewRedisLimiter(c, "", 1, time.Minute).Allow(context.Background(), "k")
	require.Error(t, err)
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		require.True(t, res.Allowed, i)
	}
	res, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.InDelta(t, float64(20*time.Second), float64(res.RetryAfter), float64(time.Millisecond))

	res, _ = l.Allow(ctx, "b")
	require.True(t, res.Allowed)
	require.Equal(t, 2, l.Len())

	now = now.Add(21 * time.Second)
	res, _ = l.Allow(ctx, "a")
	require.True(t, res.Allowed)
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()
	var cfg config.Config

	l, closeFn, err := FromConfig(ctx, cfg)
	require.NoError(t, err)
	require.Nil(t, l)
	require.NoError(t, closeFn())

	cfg.Rate.Enabled = true
	cfg.Rate.Kind = "memory"
	cfg.Rate.MaxRequests = 5
	cfg.Rate.Window = time.Minute
	l, _, err = FromConfig(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &MemoryLimiter{}, l)

	mr := miniredis.RunT(t)
	cfg.Rate.Kind = "redis"
	cfg.Rate.Redis.Addr = mr.Addr()
	l, closeFn, err = FromConfig(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &RedisLimiter{}, l)
	require.NoError(t, closeFn())

	cfg.Rate.Kind = "memcached"
	_, _, err = FromConfig(ctx, cfg)
	require.Error(t, err)
}
