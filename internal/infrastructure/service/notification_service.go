// Package service holds adapters for collaborators outside the engine:
// user notifications and user settings.
package service

import (
	"context"

	"github.com/alem-hub/routine-hub/internal/domain/shared"
	"github.com/alem-hub/routine-hub/pkg/logger"
)

// LogNotifier delivers notifications to the structured log. It stands in for
// a messaging channel in deployments that have none configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.L()
	}
	return &LogNotifier{log: log.With(logger.Component("notifier"))}
}

// NotifyLevelUp logs a level up notice.
func (n *LogNotifier) NotifyLevelUp(_ context.Context, userID shared.UserID, oldLevel, newLevel int, totalXP int64) error {
	n.log.Info("notify: level up",
		logger.UserID(userID.String()),
		logger.Int("old_level", oldLevel),
		logger.LevelNum(newLevel),
		logger.Int64("total_xp", totalXP),
	)
	return nil
}

// NotifyCatchup logs a catch-up nudge.
func (n *LogNotifier) NotifyCatchup(_ context.Context, userID shared.UserID, routineID shared.RoutineID, message string) error {
	n.log.Info("notify: catch-up",
		logger.UserID(userID.String()),
		logger.RoutineID(routineID.String()),
		logger.String("message", message),
	)
	return nil
}
