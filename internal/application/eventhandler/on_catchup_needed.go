package eventhandler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON CATCHUP NEEDED HANDLER
// Nudges the user when a routine falls behind pace. Every completion of a
// lagging routine re-emits the event, so nudges are rate limited per routine.
// ═══════════════════════════════════════════════════════════════════════════

// CatchupNeededConfig configures the handler.
type CatchupNeededConfig struct {
	// Cooldown is the minimum time between two nudges for one routine.
	Cooldown time.Duration

	Clock func() time.Time
}

// DefaultCatchupNeededConfig returns the default configuration.
func DefaultCatchupNeededConfig() CatchupNeededConfig {
	return CatchupNeededConfig{Cooldown: 12 * time.Hour}
}

// OnCatchupNeededHandler sends catch-up nudges.
type OnCatchupNeededHandler struct {
	notifier Notifier
	log      *logger.Logger
	config   CatchupNeededConfig

	mu       sync.Mutex
	lastSent map[shared.RoutineID]time.Time
}

// NewOnCatchupNeededHandler creates a new OnCatchupNeededHandler.
func NewOnCatchupNeededHandler(notifier Notifier, log *logger.Logger, config CatchupNeededConfig) *OnCatchupNeededHandler {
	if log == nil {
		log = logger.L()
	}
	if config.Clock == nil {
		config.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &OnCatchupNeededHandler{
		notifier: notifier,
		log:      log.With(logger.Component("on_catchup_needed")),
		config:   config,
		lastSent: make(map[shared.RoutineID]time.Time),
	}
}

// Handle implements shared.EventHandler.
func (h *OnCatchupNeededHandler) Handle(event shared.Event) error {
	ev, ok := event.(shared.CatchupNeededEvent)
	if !ok {
		return nil
	}

	now := h.config.Clock()
	if !h.reserve(ev.RoutineID, now) {
		h.log.Debug("catch-up nudge suppressed", logger.RoutineID(ev.RoutineID.String()))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.notifier.NotifyCatchup(ctx, ev.UserID, ev.RoutineID, catchupMessage(ev)); err != nil {
		h.release(ev.RoutineID)
		return fmt.Errorf("notify catch-up: %w", err)
	}
	return nil
}

// reserve claims the routine's nudge slot, pruning expired entries.
func (h *OnCatchupNeededHandler) reserve(id shared.RoutineID, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for rid, at := range h.lastSent {
		if now.Sub(at) >= h.config.Cooldown {
			delete(h.lastSent, rid)
		}
	}
	if _, ok := h.lastSent[id]; ok {
		return false
	}
	h.lastSent[id] = now
	return true
}

func (h *OnCatchupNeededHandler) release(id shared.RoutineID) {
	h.mu.Lock()
	delete(h.lastSent, id)
	h.mu.Unlock()
}

func catchupMessage(ev shared.CatchupNeededEvent) string {
	days := "days"
	if ev.RemainingDays == 1 {
		days = "day"
	}
	return fmt.Sprintf("You are %d behind with %d %s left. Aim for %d per day to finish on time.",
		ev.RemainingTarget, ev.RemainingDays, days, ev.SuggestedDailyTarget)
}
