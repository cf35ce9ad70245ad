// Package redis backs the profile cache with Redis hashes and provides the
// distributed lock used by scheduled jobs.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/domain/models"
)

const profileKeyPrefix = "user_"

// ErrLocked is returned by TryLock when another holder owns the key.
var ErrLocked = errors.New("lock held elsewhere")

// Repository stores cached profiles as one hash per address.
type Repository struct {
	rdb    goredis.UniversalClient
	locker *redislock.Client
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Repository, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return New(rdb), nil
}

// New wraps an existing client.
func New(rdb goredis.UniversalClient) *Repository {
	return &Repository{rdb: rdb, locker: redislock.New(rdb)}
}

// GetCachedProfile returns the hash stored for address.
func (r *Repository) GetCachedProfile(ctx context.Context, address string) (models.CachedProfile, bool, error) {
	fields, err := r.rdb.HGetAll(ctx, profileKeyPrefix+address).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached profile: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return models.CachedProfile(fields).Cacheable(), true, nil
}

// SetCachedProfile writes fields into the hash; other hash fields are kept.
func (r *Repository) SetCachedProfile(ctx context.Context, address string, fields models.CachedProfile) error {
	cacheable := fields.Cacheable()
	if len(cacheable) == 0 {
		return nil
	}
	values := make(map[string]any, len(cacheable))
	for k, v := range cacheable {
		values[k] = v
	}
	if err := r.rdb.HSet(ctx, profileKeyPrefix+address, values).Err(); err != nil {
		return fmt.Errorf("failed to write cached profile: %w", err)
	}
	return nil
}

// TryLock obtains key for ttl without waiting. The returned func releases it.
func (r *Repository) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := r.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return lock.Release, nil
}

// Close closes the underlying client.
func (r *Repository) Close() error {
	return r.rdb.Close()
}
