// Package redis backs the two external stores the service shares between
// processes: the cache of recently approved chirps and the key-value store
// holding the quota and throttle counters.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chirper/chirper/api"
	"github.com/chirper/chirper/moderation"
)

// Redis provides chirp caching and counter storage in Redis.
type Redis struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli: cli,
	}, nil
}

const (
	chirpPrefix = "chirps"
	maxSize     = 10
)

// ListChirps returns the cached approved chirps, newest first.
func (r *Redis) ListChirps(ctx context.Context) ([]api.Chirp, error) {
	keys, err := r.cli.ZRevRangeByScore(ctx, chirpPrefix, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().UnixNano()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange: %w", err)
	}

	out := make([]api.Chirp, len(keys))
	for i, key := range keys {
		var c chirp
		if err := r.cli.HGetAll(ctx, key).Scan(&c); err != nil {
			return nil, fmt.Errorf("hgetall: %w", err)
		}
		out[i] = c.APIChirp()
	}

	return out, nil
}

// InsertChirp caches an approved chirp with chirps:CHIRP_ID as the key and
// adds the key to a sorted set ordered by creation time.
func (r *Redis) InsertChirp(ctx context.Context, mc moderation.Chirp, v moderation.Verdict, at time.Time) error {
	c := &chirp{
		ID:               mc.ID,
		UserID:           mc.UserID,
		Message:          mc.Message,
		ModerationStatus: string(v.Status),
		ModerationReason: v.Reason,
		ModeratedAt:      at,
		CreatedAt:        mc.CreatedAt,
	}

	err := r.cli.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			key := fmt.Sprintf("%s:%s", chirpPrefix, c.ID)
			pipe.HSet(ctx, key, c)
			pipe.ZAdd(ctx, chirpPrefix, redis.Z{
				Score:  float64(mc.CreatedAt.UnixNano()),
				Member: key,
			})
			return nil
		})
		return err
	}, c.ID)
	if err != nil {
		return fmt.Errorf("redis insert chirp: %w", err)
	}

	// Keep the cache bounded by dropping the oldest entries beyond the max
	// size.
	if err := r.evictOldest(ctx); err != nil {
		return fmt.Errorf("evict oldest: %w", err)
	}
	return nil
}

// RemoveChirp drops a chirp from the cache. Edited, rejected and deleted
// chirps must not stay visible through the cache.
func (r *Redis) RemoveChirp(ctx context.Context, id string) error {
	key := fmt.Sprintf("%s:%s", chirpPrefix, id)
	if err := r.cli.ZRem(ctx, chirpPrefix, key).Err(); err != nil {
		return fmt.Errorf("zrem: %w", err)
	}
	if err := r.cli.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

func (r *Redis) evictOldest(ctx context.Context) error {
	keys, err := r.cli.ZRange(ctx, chirpPrefix, 0, int64(-maxSize-1)).Result()
	if err != nil {
		return fmt.Errorf("zrange: %w", err)
	}

	for _, key := range keys {
		_ = r.cli.ZRem(ctx, chirpPrefix, key).Err()
		_ = r.cli.Del(ctx, key).Err()
	}

	return nil
}

// Get implements ratelimit.Store.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.cli.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get: %w", err)
	}
	return v, true, nil
}

// Put implements ratelimit.Store.
func (r *Redis) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.cli.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}

// Has implements ratelimit.Store.
func (r *Redis) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.cli.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return n > 0, nil
}

// Forget implements ratelimit.Store.
func (r *Redis) Forget(ctx context.Context, key string) error {
	if err := r.cli.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}
