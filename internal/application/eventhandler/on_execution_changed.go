package eventhandler

import (
	"context"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

// OnExecutionChangedHandler reclaims memoized progress after a routine's
// records change. Memo keys already carry the record revision, so a failure
// here only delays reclaiming memory and is logged, not returned.
type OnExecutionChangedHandler struct {
	cache ProgressInvalidator
	log   *logger.Logger
}

// NewOnExecutionChangedHandler creates a new OnExecutionChangedHandler.
func NewOnExecutionChangedHandler(cache ProgressInvalidator, log *logger.Logger) *OnExecutionChangedHandler {
	if log == nil {
		log = logger.L()
	}
	return &OnExecutionChangedHandler{cache: cache, log: log.With(logger.Component("on_execution_changed"))}
}

// Handle implements shared.EventHandler.
func (h *OnExecutionChangedHandler) Handle(event shared.Event) error {
	var routineID shared.RoutineID
	switch ev := event.(type) {
	case shared.ExecutionChangedEvent:
		routineID = ev.RoutineID
	case shared.RoutineLifecycleEvent:
		routineID = ev.RoutineID
	default:
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.cache.InvalidateRoutine(ctx, routineID); err != nil {
		h.log.Warn("progress invalidation failed",
			logger.RoutineID(routineID.String()),
			logger.Err(err),
		)
	}
	return nil
}
