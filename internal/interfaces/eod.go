package interfaces

import "deriv-signal-bot/internal/types"

// ReportExporter writes a completed backtest to disk and returns the file path.
type ReportExporter interface {
	Export(runID string, report *types.BacktestReport) (string, error)
}
