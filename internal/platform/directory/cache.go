package directory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// CacheStore is the key/value backend for positive verification results.
type CacheStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// RedisStore keeps cached results in Redis.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	err := s.client.Get(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Set(ctx, key, "1", ttl).Err()
}

// CachingVerifier remembers positive lookups for ttl and collapses concurrent
// identical lookups into one directory call. NotFound and Unreachable results
// are never cached.
type CachingVerifier struct {
	next   EntityVerifier
	store  CacheStore
	ttl    time.Duration
	group  singleflight.Group
	logger zerolog.Logger
}

func NewCachingVerifier(next EntityVerifier, store CacheStore, ttl time.Duration, logger zerolog.Logger) *CachingVerifier {
	return &CachingVerifier{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.With().Str("component", "directory_cache").Logger(),
	}
}

type verifyResult struct {
	status Status
	err    error
}

func (v *CachingVerifier) Verify(ctx context.Context, kind Kind, id int64, credential string) (Status, error) {
	key := cacheKey(kind, id, credential)

	hit, err := v.store.Exists(ctx, key)
	if err != nil {
		v.logger.Warn().Err(err).Str("key", key).Msg("verification cache read failed")
	} else if hit {
		return Exists, nil
	}

	// The shared lookup outlives any single waiter; next bounds it with its
	// own timeout.
	shared := context.WithoutCancel(ctx)
	ch := v.group.DoChan(key, func() (interface{}, error) {
		status, err := v.next.Verify(shared, kind, id, credential)
		if status == Exists {
			if err := v.store.Mark(shared, key, v.ttl); err != nil {
				v.logger.Warn().Err(err).Str("key", key).Msg("verification cache write failed")
			}
		}
		return verifyResult{status: status, err: err}, nil
	})

	select {
	case <-ctx.Done():
		return Unreachable, fmt.Errorf("directory %s lookup: %w", kind, ctx.Err())
	case res := <-ch:
		r := res.Val.(verifyResult)
		return r.status, r.err
	}
}

// cacheKey scopes entries to the caller credential so one caller's
// authorization result is never reused for another.
func cacheKey(kind Kind, id int64, credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return fmt.Sprintf("appointments:verify:%s:%d:%s", kind, id, hex.EncodeToString(sum[:8]))
}
