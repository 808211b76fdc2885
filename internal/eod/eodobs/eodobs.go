package eodobs

import (
	"context"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/logger"
	"deriv-signal-bot/internal/trace"
	"deriv-signal-bot/internal/types"
)

type observableExporter struct {
	exporter interfaces.ReportExporter
}

var _ interfaces.ReportExporter = (*observableExporter)(nil)

func Wrap(exporter interfaces.ReportExporter) interfaces.ReportExporter {
	return &observableExporter{exporter: exporter}
}

func (oe *observableExporter) Export(runID string, report *types.BacktestReport) (string, error) {
	ctx, span := trace.StartSpan(context.Background(), "eod.Export")
	defer span.End()

	path, err := oe.exporter.Export(runID, report)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Backtest export failed", err, "run_id", runID)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Backtest exported",
		"run_id", runID,
		"trades", report.Trades,
		"csv_path", path,
	)
	return path, nil
}
