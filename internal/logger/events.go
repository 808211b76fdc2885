package logger

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Decision logs an oracle decision (always logged regardless of level)
func Decision(ctx context.Context, symbol, signal string, confidence float64, reason string, fields ...any) {
	addSpanEvent(ctx, "trading_decision",
		attribute.String("symbol", symbol),
		attribute.String("signal", signal),
		attribute.Float64("confidence", confidence),
	)

	allFields := append([]any{
		"type", "DECISION",
		"symbol", symbol,
		"signal", signal,
		"confidence", confidence,
		"reason", reason,
	}, fields...)
	logWithTrace(ctx, slog.LevelInfo, "Trading decision made", 2, allFields...)
}

// Trade logs a simulated position open or close
func Trade(ctx context.Context, symbol, side, event string, price float64, fields ...any) {
	addSpanEvent(ctx, "simulated_trade",
		attribute.String("symbol", symbol),
		attribute.String("side", side),
		attribute.String("event", event),
		attribute.Float64("price", price),
	)

	allFields := append([]any{
		"type", "TRADE",
		"symbol", symbol,
		"side", side,
		"event", event,
		"price", price,
	}, fields...)
	logWithTrace(ctx, slog.LevelInfo, "Simulated trade", 2, allFields...)
}

// Tick logs a streamed quote at debug level
func Tick(ctx context.Context, symbol string, epoch int64, quote float64) {
	if !detailedLogging.Load() {
		return
	}
	logWithTrace(ctx, slog.LevelDebug, "Tick", 2, "symbol", symbol, "epoch", epoch, "quote", quote)
}

func addSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent(name, oteltrace.WithAttributes(attrs...))
	}
}
