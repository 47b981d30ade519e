package shared

import "context"

// UserLocker serializes mutations of a single user's derived state
// (gamification profile and catch-up plans). Different users never contend.
type UserLocker interface {
	// Lock blocks until the user's lock is held or ctx is done.
	// The returned function releases the lock and is safe to call once.
	Lock(ctx context.Context, userID UserID) (unlock func(), err error)
}
