package logging

import (
	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
)

// StrategyLogger forwards update strategy messages to bolt, tagged with the tool id.
type StrategyLogger struct {
	logger *bolt.Logger
	toolID string
}

// NewStrategyLogger creates a strategy logger. A nil logger uses the default logger.
func NewStrategyLogger(logger *bolt.Logger, toolID string) *StrategyLogger {
	if logger == nil {
		logger = Get()
	}
	return &StrategyLogger{logger: logger, toolID: toolID}
}

// Log records an informational message.
func (l *StrategyLogger) Log(msg string) {
	l.logger.Info().Str("tool_id", l.toolID).Str("component", "updater").Msg(msg)
}

// Warn records a warning.
func (l *StrategyLogger) Warn(msg string) {
	l.logger.Warn().Str("tool_id", l.toolID).Str("component", "updater").Msg(msg)
}

// Error records an error message.
func (l *StrategyLogger) Error(msg string) {
	l.logger.Error().Str("tool_id", l.toolID).Str("component", "updater").Msg(msg)
}

var _ clitool.Logger = (*StrategyLogger)(nil)
