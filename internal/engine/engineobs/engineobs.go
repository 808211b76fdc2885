package engineobs

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"deriv-signal-bot/internal/engine"
	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/logger"
	"deriv-signal-bot/internal/trace"
	"deriv-signal-bot/internal/types"
)

type observableBacktester struct {
	bt interfaces.Backtester
}

var _ interfaces.Backtester = (*observableBacktester)(nil)

func Wrap(bt interfaces.Backtester) interfaces.Backtester {
	return &observableBacktester{bt: bt}
}

func (ob *observableBacktester) Status() types.BacktestStatus {
	return ob.bt.Status()
}

func (ob *observableBacktester) Run(ctx context.Context, req types.BacktestRequest, onProgress interfaces.ProgressFunc) (*types.BacktestReport, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Backtest")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", req.Symbol),
		attribute.String("timeframe", req.Timeframe),
	)

	start := time.Now()
	args := []any{"symbol", req.Symbol, "timeframe", req.Timeframe}
	if req.Range != nil {
		args = append(args, "start", req.Range.Start, "end", req.Range.End)
	}
	logger.InfoSkip(ctx, 1, "Starting backtest", args...)

	report, err := ob.bt.Run(ctx, req, onProgress)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var cfgErr *engine.ConfigurationError
		if errors.As(err, &cfgErr) {
			logger.InfoSkip(ctx, 1, "Backtest not started",
				"symbol", req.Symbol,
				"bars", cfgErr.Bars,
				"needed", cfgErr.Needed,
			)
		} else {
			logger.ErrorWithErrSkip(ctx, 1, "Backtest failed", err,
				"symbol", req.Symbol,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("trades", report.Trades),
		attribute.Float64("net_pnl", report.NetPnL),
	)
	logger.InfoSkip(ctx, 1, "Backtest completed",
		"symbol", req.Symbol,
		"bars", report.Bars,
		"trades", report.Trades,
		"win_rate", report.WinRate,
		"net_pnl", report.NetPnL,
		"max_drawdown", report.MaxDrawdown,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}
