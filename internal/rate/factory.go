package rate

import (
	"context"
	"fmt"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/userrelay/internal/config"
)

// FromConfig devuelve nil si el rate limit está apagado. El cierre libera el cliente redis.
func FromConfig(ctx context.Context, cfg config.Config) (Limiter, func() error, error) {
	rc := cfg.Rate
	noop := func() error { return nil }
	if !rc.Enabled {
		return nil, noop, nil
	}
	switch rc.Kind {
	case "", "memory":
		return NewMemoryLimiter(rc.MaxRequests, rc.Window), noop, nil
	case "redis":
		client := rdb.NewClient(&rdb.Options{
			Addr:     rc.Redis.Addr,
			DB:       rc.Redis.DB,
			Password: rc.Redis.Password,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("rate redis ping: %w", err)
		}
		return NewRedisLimiter(client, rc.Redis.Prefix, rc.MaxRequests, rc.Window), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("rate: unknown kind %q", rc.Kind)
	}
}
