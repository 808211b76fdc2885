package interfaces

import (
	"context"

	"deriv-signal-bot/internal/types"
)

// CandleSource is the slice of market data the backtester needs.
type CandleSource interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, rng *types.TimeRange) ([]types.Candle, error)
}

type MarketData interface {
	CandleSource
	FetchSymbols(ctx context.Context, category string) ([]string, error)
	ActiveSymbols(ctx context.Context) ([]types.Symbol, error)
	ValidateAccountLogin(ctx context.Context, loginID, server string) types.LoginValidation
}

// TickHandler receives streamed quotes on the session's read goroutine.
type TickHandler func(types.Tick)

// TickStream allows one live subscription at a time.
type TickStream interface {
	Subscribe(ctx context.Context, symbol string, onTick TickHandler) error
	Unsubscribe(ctx context.Context)
}
