package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/config"
)

// Store is the set of key-value primitives used by the device control core.
type Store interface {
	// HGetAll returns every field of a hash. A missing key yields an empty map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// ZRange returns sorted-set members between rank start and stop inclusive,
	// lowest score first. Negative ranks count from the end (-1 is the last).
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZRem removes members from a sorted set outside of any batch.
	ZRem(ctx context.Context, key string, members ...string) error

	// SMembers returns the members of a set in unspecified order.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Atomic queues the writes made by fn and commits them as one unit.
	Atomic(ctx context.Context, fn func(b Batch)) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Batch collects writes for Store.Atomic. Methods only queue work; nothing
// is visible to readers until Atomic returns successfully.
type Batch interface {
	// HSet sets fields on a hash, creating it if needed.
	HSet(key string, fields map[string]string)
	// Del removes whole keys.
	Del(keys ...string)
	// Expire sets a time-to-live on key.
	Expire(key string, ttl time.Duration)
	// ZAdd inserts or rescores a sorted-set member.
	ZAdd(key string, score float64, member string)
	// ZRem removes sorted-set members.
	ZRem(key string, members ...string)
	// SAdd adds set members.
	SAdd(key string, members ...string)
	// SRem removes set members.
	SRem(key string, members ...string)
}

// Open creates the Store selected by cfg.Backend and verifies it is reachable.
//
// Parameters:
//   - ctx: Context bounding the initial ping
//   - cfg: Store configuration
//
// Returns:
//   - Store: Ready-to-use store
//   - error: ErrUnknownBackend, or a wrapped ErrStoreFailure if the ping fails
func Open(ctx context.Context, cfg config.RedisConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemory(), nil
	case config.BackendRedis, "":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		})
		store := NewRedis(client)
		if err := store.Ping(ctx); err != nil {
			client.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
