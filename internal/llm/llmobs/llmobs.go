package llmobs

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/llm"
	"deriv-signal-bot/internal/logger"
	"deriv-signal-bot/internal/trace"
	"deriv-signal-bot/internal/types"
)

// observableDecider wraps a Decider with logging and tracing.
type observableDecider struct {
	decider interfaces.Decider
}

var _ interfaces.Decider = (*observableDecider)(nil)

func Wrap(decider interfaces.Decider) interfaces.Decider {
	return &observableDecider{decider: decider}
}

func (od *observableDecider) Decide(ctx context.Context, mc types.MarketContext) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", mc.Symbol),
		attribute.Int("candles", len(mc.Candles)),
	)

	logger.DebugSkip(ctx, 1, "Requesting trading decision",
		"symbol", mc.Symbol,
		"price", mc.CurrentPrice,
		"candles", len(mc.Candles),
		"sentiment", mc.Sentiment != nil,
	)

	decision, err := od.decider.Decide(ctx, mc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var verr *llm.ValidationError
		if errors.As(err, &verr) {
			logger.ErrorWithErrSkip(ctx, 1, "Oracle response failed validation", err,
				"symbol", mc.Symbol,
				"reason", verr.Reason,
				"responseSize", len(verr.Raw),
			)
		} else {
			logger.ErrorWithErrSkip(ctx, 1, "Failed to get trading decision", err, "symbol", mc.Symbol)
		}
		return types.Decision{}, err
	}

	span.SetAttributes(
		attribute.String("signal", string(decision.Signal)),
		attribute.Float64("confidence", decision.Confidence),
	)
	logger.Decision(ctx, mc.Symbol, string(decision.Signal), decision.Confidence, decision.Reason,
		"tp", decision.TP,
		"sl", decision.SL,
	)
	return decision, nil
}

type observableOracle struct {
	oracle   interfaces.Oracle
	provider string
}

// WrapOracle times each model call and logs prompt and reply sizes, never their text.
func WrapOracle(provider string, oracle interfaces.Oracle) interfaces.Oracle {
	return &observableOracle{oracle: oracle, provider: provider}
}

func (oo *observableOracle) Complete(ctx context.Context, prompt, model string) (string, error) {
	op := logger.StartOperation(ctx, "oracle.Complete",
		"provider", oo.provider,
		"model", model,
		"promptSize", len(prompt),
	)
	text, err := oo.oracle.Complete(op.GetContext(), prompt, model)
	if err != nil {
		op.EndWithError(err)
		return "", err
	}
	op.End("responseSize", len(text))
	return text, nil
}
