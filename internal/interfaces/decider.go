package interfaces

import (
	"context"

	"deriv-signal-bot/internal/types"
)

// Oracle is the external text model: a prompt and a model id in, free text out.
type Oracle interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// Decider turns market context into a validated decision.
type Decider interface {
	Decide(ctx context.Context, mc types.MarketContext) (types.Decision, error)
}

// SentimentProvider summarizes recent news for a symbol.
type SentimentProvider interface {
	Sentiment(ctx context.Context, symbol string) (*types.Sentiment, error)
}
