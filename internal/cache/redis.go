package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clawtrust/engine/internal/trust"
)

const redisKeyPrefix = "trustresult:"

// Redis is a Store backed by a shared Redis, for deployments running more
// than one engine replica. Expiry is native (SET with TTL), so there is
// no sweeper. Transport errors degrade to cache misses.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects and pings; the caller decides whether to fall back to
// the in-memory store on error.
func NewRedis(addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("result cache using redis", "addr", addr, "db", db)
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Get(ctx context.Context, key string) (*trust.TrustResult, bool) {
	data, err := r.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("redis cache get failed", "key", key, "err", err)
		return nil, false
	}

	var result trust.TrustResult
	if err := json.Unmarshal(data, &result); err != nil {
		slog.Warn("redis cache entry corrupt", "key", key, "err", err)
		return nil, false
	}
	return &result, true
}

func (r *Redis) Put(ctx context.Context, key string, result *trust.TrustResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		slog.Warn("redis cache encode failed", "key", key, "err", err)
		return
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+key, data, ttl).Err(); err != nil {
		slog.Warn("redis cache put failed", "key", key, "err", err)
	}
}

func (r *Redis) Invalidate(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		slog.Warn("redis cache invalidate failed", "key", key, "err", err)
	}
}

func (r *Redis) Clear(ctx context.Context) {
	iter := r.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			slog.Warn("redis cache clear failed", "key", iter.Val(), "err", err)
		}
	}
}

func (r *Redis) Size(ctx context.Context) int {
	count := 0
	iter := r.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}
