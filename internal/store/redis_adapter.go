package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// GoRedisAdapter wraps github.com/redis/go-redis/v9 to satisfy RedisClient,
// the way the reference backend's infra.GoRedisAdapter wraps the same
// driver for its hub store.
type GoRedisAdapter struct {
	rdb *redis.Client
}

func NewGoRedisAdapter(addr, password string, db int) (*GoRedisAdapter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}
	slog.Info("redis connected", "addr", addr, "db", db)
	return &GoRedisAdapter{rdb: rdb}, nil
}

func (a *GoRedisAdapter) Close() error { return a.rdb.Close() }

func (a *GoRedisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.rdb.Set(ctx, key, value, ttl).Err()
}

func (a *GoRedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := a.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (a *GoRedisAdapter) Del(ctx context.Context, keys ...string) error {
	return a.rdb.Del(ctx, keys...).Err()
}

func (a *GoRedisAdapter) HSet(ctx context.Context, key, field string, value []byte) error {
	return a.rdb.HSet(ctx, key, field, value).Err()
}

func (a *GoRedisAdapter) HGet(ctx context.Context, key, field string) ([]byte, error) {
	val, err := a.rdb.HGet(ctx, key, field).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (a *GoRedisAdapter) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	vals, err := a.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(vals))
	for field, v := range vals {
		out[field] = []byte(v)
	}
	return out, nil
}

func (a *GoRedisAdapter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return a.rdb.Expire(ctx, key, ttl).Err()
}

// SetNX satisfies fetch.RedisNXClient: a bare "set if absent" used for the
// cross-process fetch lock, distinct from Set's unconditional session write.
func (a *GoRedisAdapter) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return a.rdb.SetNX(ctx, key, "1", ttl).Result()
}
