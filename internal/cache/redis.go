package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-lobby/internal/models"
)

// RedisCache stores JSON snapshots under a short TTL so the polling storm
// from clients re-fetching ride state lands on Redis, not Postgres. A cache
// error degrades to a miss; the store remains the source of truth.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(addr, password string, ttl time.Duration) *RedisCache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisCache{client: c, ttl: ttl, prefix: "ride_lobby:"}
}

func (r *RedisCache) Get(ctx context.Context, key string) (models.Snapshot, bool) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		return models.Snapshot{}, false
	}
	var snap models.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return models.Snapshot{}, false
	}
	return snap, true
}

func (r *RedisCache) Set(ctx context.Context, key string, snap models.Snapshot) {
	b, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, r.prefix+key, b, r.ttl).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisCache) Close() error { return r.client.Close() }
