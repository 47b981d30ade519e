package eventhandler

import (
	"context"
	"fmt"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LEVEL UP HANDLER
// ═══════════════════════════════════════════════════════════════════════════

// OnLevelUpHandler congratulates a user on a new level.
type OnLevelUpHandler struct {
	notifier Notifier
	log      *logger.Logger
}

// NewOnLevelUpHandler creates a new OnLevelUpHandler.
func NewOnLevelUpHandler(notifier Notifier, log *logger.Logger) *OnLevelUpHandler {
	if log == nil {
		log = logger.L()
	}
	return &OnLevelUpHandler{
		notifier: notifier,
		log:      log.With(logger.Component("on_level_up")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnLevelUpHandler) Handle(event shared.Event) error {
	ev, ok := event.(shared.LevelUpEvent)
	if !ok {
		h.log.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.notifier.NotifyLevelUp(ctx, ev.UserID, ev.OldLevel, ev.NewLevel, ev.NewTotalXP); err != nil {
		h.log.Error("level up notification failed",
			logger.UserID(ev.UserID.String()),
			logger.LevelNum(ev.NewLevel),
			logger.Err(err),
		)
		return fmt.Errorf("notify level up: %w", err)
	}
	return nil
}
