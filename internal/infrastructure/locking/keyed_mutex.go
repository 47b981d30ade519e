// Package locking provides the in-process single-writer-per-user lock.
package locking

import (
	"context"
	"sync"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// KeyedMutex hands out one lock per user. Entries are reference counted and
// dropped when nobody holds or waits for them, so memory stays bounded by
// the number of users with in-flight mutations.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[shared.UserID]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex creates an empty lock table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[shared.UserID]*entry)}
}

// Lock implements shared.UserLocker.
func (k *KeyedMutex) Lock(ctx context.Context, userID shared.UserID) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[userID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.locks[userID] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(userID, e)
		return nil, shared.WrapError("locking", "Lock", shared.ErrLockUnavailable, "gave up waiting for user lock", ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.release(userID, e)
		})
	}, nil
}

func (k *KeyedMutex) release(userID shared.UserID, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, userID)
	}
}

// Len returns the number of users with a held or awaited lock.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

var _ shared.UserLocker = (*KeyedMutex)(nil)
