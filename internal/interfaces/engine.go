package interfaces

import (
	"context"

	"deriv-signal-bot/internal/types"
)

// ProgressFunc is called once per processed bar.
type ProgressFunc func(types.BacktestProgress)

type Backtester interface {
	Run(ctx context.Context, req types.BacktestRequest, onProgress ProgressFunc) (*types.BacktestReport, error)
	Status() types.BacktestStatus
}
