package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a Redis server.
//
// Thread Safety:
//   - Safe for concurrent use; go-redis manages its own connection pool.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing go-redis client.
// The Redis takes ownership of the client and closes it on Close.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// HGetAll returns every field of a hash.
func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: hgetall %s: %w", ErrStoreFailure, key, err)
	}
	return fields, nil
}

// Exists reports whether key is present.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %w", ErrStoreFailure, key, err)
	}
	return n > 0, nil
}

// ZRange returns sorted-set members by rank, lowest score first.
func (r *Redis) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := r.client.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: zrange %s: %w", ErrStoreFailure, key, err)
	}
	return members, nil
}

// ZRem removes sorted-set members.
func (r *Redis) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := r.client.ZRem(ctx, key, toArgs(members)...).Err(); err != nil {
		return fmt.Errorf("%w: zrem %s: %w", ErrStoreFailure, key, err)
	}
	return nil
}

// SMembers returns the members of a set.
func (r *Redis) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: smembers %s: %w", ErrStoreFailure, key, err)
	}
	return members, nil
}

// Atomic sends the queued writes as a single MULTI/EXEC transaction.
func (r *Redis) Atomic(ctx context.Context, fn func(b Batch)) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(&redisBatch{ctx: ctx, pipe: pipe})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: transaction: %w", ErrStoreFailure, err)
	}
	return nil
}

// Ping checks the server connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStoreFailure, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("closing redis client: %w", err)
	}
	return nil
}

// redisBatch queues writes on a transactional pipeline.
type redisBatch struct {
	ctx  context.Context //nolint:containedctx // Pipeliner methods require a context per call
	pipe redis.Pipeliner
}

func (b *redisBatch) HSet(key string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	b.pipe.HSet(b.ctx, key, args...)
}

func (b *redisBatch) Del(keys ...string) {
	if len(keys) == 0 {
		return
	}
	b.pipe.Del(b.ctx, keys...)
}

func (b *redisBatch) Expire(key string, ttl time.Duration) {
	b.pipe.Expire(b.ctx, key, ttl)
}

func (b *redisBatch) ZAdd(key string, score float64, member string) {
	b.pipe.ZAdd(b.ctx, key, redis.Z{Score: score, Member: member})
}

func (b *redisBatch) ZRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.pipe.ZRem(b.ctx, key, toArgs(members)...)
}

func (b *redisBatch) SAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.pipe.SAdd(b.ctx, key, toArgs(members)...)
}

func (b *redisBatch) SRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.pipe.SRem(b.ctx, key, toArgs(members)...)
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
