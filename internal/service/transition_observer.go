package service

import (
	"context"

	"data-explorer-be/internal/pkg/logger"
	"data-explorer-be/pkg/ai/agent"
	"data-explorer-be/pkg/events"
)

// NewTransitionObserver publishes every state change of a turn so clients can
// follow its progress.
func NewTransitionObserver(p events.Publisher, log logger.ILogger) agent.Observer {
	return func(tr agent.Transition) {
		data := map[string]interface{}{
			"from":    tr.FromName,
			"to":      tr.ToName,
			"attempt": tr.Attempt,
		}
		if tr.Error != "" {
			data["error"] = tr.Error
		}
		if err := p.Publish(context.Background(), events.New(events.TypeTurnTransition, tr.SessionID, data)); err != nil {
			log.Warn("Explorer", "Failed to publish transition", map[string]interface{}{"error": err.Error()})
		}
	}
}
