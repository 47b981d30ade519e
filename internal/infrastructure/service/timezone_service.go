package service

import (
	"context"
	"sync"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
)

// StaticTimezoneResolver answers timezone lookups from a fixed table, with a
// default for users it does not know. Unknown or invalid zone names are
// passed through; the time context falls back to UTC for them.
type StaticTimezoneResolver struct {
	mu       sync.RWMutex
	fallback string
	zones    map[shared.UserID]string
}

// NewStaticTimezoneResolver creates a resolver. An empty fallback means UTC.
func NewStaticTimezoneResolver(fallback string, zones map[string]string) *StaticTimezoneResolver {
	if fallback == "" {
		fallback = "UTC"
	}
	r := &StaticTimezoneResolver{fallback: fallback, zones: make(map[shared.UserID]string, len(zones))}
	for user, tz := range zones {
		r.zones[shared.UserID(user)] = tz
	}
	return r
}

// Timezone implements shared.TimezoneResolver.
func (r *StaticTimezoneResolver) Timezone(_ context.Context, userID shared.UserID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tz, ok := r.zones[userID]; ok {
		return tz, nil
	}
	return r.fallback, nil
}

// Set records a user's timezone.
func (r *StaticTimezoneResolver) Set(userID shared.UserID, tz string) {
	r.mu.Lock()
	r.zones[userID] = tz
	r.mu.Unlock()
}

var _ shared.TimezoneResolver = (*StaticTimezoneResolver)(nil)
