package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// ProgressCache memoizes derived routine progress. Keys carry the routine's
// execution revision and the civil day, so a stale entry is never addressed
// after a write or a day boundary; InvalidateRoutine only reclaims memory.
type ProgressCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewProgressCache creates a ProgressCache. A non-positive ttl uses TTLProgress.
func NewProgressCache(cache *Cache, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = TTLProgress
	}
	return &ProgressCache{cache: cache, ttl: ttl}
}

// ProgressKey returns the Redis key for a memo key built by the caller.
func ProgressKey(key string) string {
	return PrefixProgress + key
}

// Load reads a memoized value. It reports false on a miss.
func (p *ProgressCache) Load(ctx context.Context, key string, dest any) (bool, error) {
	err := p.cache.Get(ctx, ProgressKey(key), dest)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrCacheMiss):
		return false, nil
	default:
		return false, err
	}
}

// Store memoizes v under key.
func (p *ProgressCache) Store(ctx context.Context, key string, v any) error {
	return p.cache.Set(ctx, ProgressKey(key), v, p.ttl)
}

// InvalidateRoutine drops every memo of a routine. Memo keys start with the
// routine ID.
func (p *ProgressCache) InvalidateRoutine(ctx context.Context, routineID shared.RoutineID) error {
	return p.cache.DeleteByPattern(ctx, ProgressKey(routineID.String()+":*"))
}
