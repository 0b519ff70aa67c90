package store

import (
	"context"
	"fmt"

	"github.com/dunamismax/pixelproxy/internal/config"
	"github.com/redis/go-redis/v9"
)

// Open builds the activity store selected by cfg.Store.Driver. The schema is
// not touched until EnsureInitialized is called.
func Open(ctx context.Context, cfg config.Config) (ActivityStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		return NewMemoryActivityStore(), nil
	case "sqlite":
		s, err := NewSQLiteActivityStore(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresActivityStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisActivityStore(client, cfg.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
