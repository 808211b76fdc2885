package noop

import (
	"context"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/logger"
)

// Reply is what the noop oracle always answers.
const Reply = `{"signal":"NEUTRAL","confidence":0,"tp":0,"sl":0,"reason":"noop oracle: no model configured"}`

// Oracle is the fallback used when no model provider is configured. It never opens a position.
type Oracle struct{}

var _ interfaces.Oracle = Oracle{}

func New() Oracle { return Oracle{} }

func (Oracle) Complete(ctx context.Context, _ string, model string) (string, error) {
	logger.Debug(ctx, "Noop oracle called - always returns NEUTRAL", "model", model)
	return Reply, nil
}
