package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
	"github.com/alem-hub/routine-hub/pkg/retry"
)

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errLockHeld = errors.New("lock held by another owner")

// UserLocker is a lease-based per-user lock shared by every process that
// talks to the same Redis. It serializes XP grants of one user.
type UserLocker struct {
	client   redis.UniversalClient
	ttl      time.Duration
	attempts int
	log      *logger.Logger
}

// NewUserLocker creates a UserLocker. A non-positive ttl uses TTLUserLock.
func NewUserLocker(cache *Cache, ttl time.Duration, attempts int) *UserLocker {
	if ttl <= 0 {
		ttl = TTLUserLock
	}
	if attempts <= 0 {
		attempts = 20
	}
	return &UserLocker{
		client:   cache.Client(),
		ttl:      ttl,
		attempts: attempts,
		log:      logger.L().With(logger.Component("user_lock")),
	}
}

// LockKey returns the Redis key guarding a user.
func LockKey(userID shared.UserID) string {
	return PrefixLock + userID.String()
}

// Lock acquires the user's lease, polling with backoff while another owner
// holds it. The returned unlock releases the lease only if it is still ours.
func (l *UserLocker) Lock(ctx context.Context, userID shared.UserID) (func(), error) {
	key := LockKey(userID)
	token := uuid.NewString()

	err := retry.Do(ctx, func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return errLockHeld
		}
		return nil
	},
		retry.WithMaxAttempts(l.attempts),
		retry.WithInitialDelay(20*time.Millisecond),
		retry.WithMaxDelay(500*time.Millisecond),
		retry.WithRetryIf(func(err error) bool { return errors.Is(err, errLockHeld) }),
	)
	if err != nil {
		return nil, shared.WrapError("redis", "LockUser", shared.ErrLockUnavailable, "could not acquire user lock", err)
	}

	return func() {
		// The caller's context may already be cancelled; release on our own.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			l.log.Warn("failed to release user lock", logger.UserID(userID.String()), logger.Err(err))
		}
	}, nil
}

var _ shared.UserLocker = (*UserLocker)(nil)
