package derivobs

import (
	"context"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/logger"
	"deriv-signal-bot/internal/trace"
	"deriv-signal-bot/internal/types"
)

// observableMarketData wraps MarketData with logging and tracing
type observableMarketData struct {
	md interfaces.MarketData
}

var _ interfaces.MarketData = (*observableMarketData)(nil)

// Wrap wraps market data queries with observability middleware
func Wrap(md interfaces.MarketData) interfaces.MarketData {
	return &observableMarketData{md: md}
}

func (o *observableMarketData) FetchSymbols(ctx context.Context, category string) ([]string, error) {
	ctx, span := trace.StartSpan(ctx, "deriv.FetchSymbols")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching symbols", "category", category)

	symbols, err := o.md.FetchSymbols(ctx, category)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch symbols", err, "category", category)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Symbols fetched", "category", category, "count", len(symbols))
	return symbols, nil
}

func (o *observableMarketData) ActiveSymbols(ctx context.Context) ([]types.Symbol, error) {
	ctx, span := trace.StartSpan(ctx, "deriv.ActiveSymbols")
	defer span.End()

	symbols, err := o.md.ActiveSymbols(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch active symbols", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Active symbols fetched", "count", len(symbols))
	return symbols, nil
}

func (o *observableMarketData) FetchCandles(ctx context.Context, symbol, timeframe string, rng *types.TimeRange) ([]types.Candle, error) {
	ctx, span := trace.StartSpan(ctx, "deriv.FetchCandles")
	defer span.End()

	fields := []any{"symbol", symbol, "timeframe", timeframe}
	if rng != nil {
		fields = append(fields, "start", rng.Start, "end", rng.End)
	}
	logger.DebugSkip(ctx, 1, "Fetching candles", fields...)

	candles, err := o.md.FetchCandles(ctx, symbol, timeframe, rng)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch candles", err, fields...)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Candles fetched", append(fields, "count", len(candles))...)
	return candles, nil
}

func (o *observableMarketData) ValidateAccountLogin(ctx context.Context, loginID, server string) types.LoginValidation {
	ctx, span := trace.StartSpan(ctx, "deriv.ValidateAccountLogin")
	defer span.End()

	res := o.md.ValidateAccountLogin(ctx, loginID, server)
	if !res.Valid {
		logger.InfoSkip(ctx, 1, "MT5 login not valid", "login", loginID, "server", server, "reason", res.Error)
		return res
	}

	logger.InfoSkip(ctx, 1, "MT5 login validated", "login", loginID, "server", server)
	return res
}
