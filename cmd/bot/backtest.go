package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"deriv-signal-bot/internal/deriv"
	"deriv-signal-bot/internal/engine"
	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/logger"
	"deriv-signal-bot/internal/store"
	"deriv-signal-bot/internal/tradelog"
	"deriv-signal-bot/internal/types"
)

const (
	dateLayout = "2006-01-02"

	// Above this many estimated oracle calls the run is logged as a warning.
	largeBacktestCalls = 2000
)

func runBacktest(ctx context.Context, cfg *store.Config, flags cliFlags, md interfaces.CandleSource, journal *tradelog.Journal) error {
	rng, err := backtestRange(cfg, flags, time.Now())
	if err != nil {
		return err
	}
	tf, err := deriv.ParseTimeframe(cfg.Market.Timeframe)
	if err != nil {
		return err
	}
	calls := estimateOracleCalls(rng, tf, cfg.Backtest.WarmupBars)
	if calls > largeBacktestCalls {
		logger.Warn(ctx, "Large backtest: up to one oracle call per flat bar",
			"timeframe", tf.Key, "estimated_calls", calls, "hint", "narrow -start/-end or use a longer timeframe")
	} else {
		logger.Info(ctx, "Backtest range resolved", "timeframe", tf.Key, "estimated_calls", calls)
	}

	decider, err := initializeDecider(ctx, cfg)
	if err != nil {
		return err
	}

	bt := initializeBacktester(ctx, cfg, md, decider)
	req := types.BacktestRequest{
		Symbol:    cfg.Market.Symbol,
		Timeframe: cfg.Market.Timeframe,
		Range:     rng,
	}

	lastPct := -1
	report, err := bt.Run(ctx, req, func(p types.BacktestProgress) {
		if p.Total == 0 {
			return
		}
		pct := p.Processed * 100 / p.Total
		if pct/10 != lastPct/10 || p.Processed == p.Total {
			lastPct = pct
			logger.Info(ctx, "Backtest progress", "processed", p.Processed, "total", p.Total, "percent", pct)
		}
	})
	if err != nil {
		return err
	}

	runID := tradelog.NewRunID()
	if err := journal.AppendRun(runID, req, report); err != nil {
		logger.Warn(ctx, "Failed to journal backtest run", "run_id", runID, "error", err)
	}
	path, err := initializeExporter(cfg).Export(runID, report)
	if err != nil {
		logger.Warn(ctx, "Failed to export backtest report", "run_id", runID, "error", err)
	} else {
		logger.Info(ctx, "Backtest report exported", "run_id", runID, "path", path)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	fmt.Println(engine.Summary(report))
	return nil
}

// estimateOracleCalls is the upper bound of decisions a run over rng can make:
// one per bar after warmup.
func estimateOracleCalls(rng *types.TimeRange, tf deriv.Timeframe, warmup int) int64 {
	if tf.Granularity <= 0 {
		return 0
	}
	bars := (rng.End-rng.Start)/tf.Granularity + 1
	return max(bars-int64(warmup), 0)
}

// backtestRange resolves the requested window. Flags win over config; with
// neither, the last DefaultLookbackDays up to now are used.
func backtestRange(cfg *store.Config, flags cliFlags, now time.Time) (*types.TimeRange, error) {
	startStr, endStr := cfg.Backtest.StartDate, cfg.Backtest.EndDate
	if flags.start != "" {
		startStr = flags.start
	}
	if flags.end != "" {
		endStr = flags.end
	}

	end := now.UTC()
	if endStr != "" {
		t, err := time.Parse(dateLayout, endStr)
		if err != nil {
			return nil, fmt.Errorf("invalid end date %q: %w", endStr, err)
		}
		end = t.Add(24*time.Hour - time.Second)
	}
	start := end.AddDate(0, 0, -cfg.Backtest.DefaultLookbackDays)
	if startStr != "" {
		t, err := time.Parse(dateLayout, startStr)
		if err != nil {
			return nil, fmt.Errorf("invalid start date %q: %w", startStr, err)
		}
		start = t
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("start date %s is not before end date %s", start.Format(dateLayout), end.Format(dateLayout))
	}
	return &types.TimeRange{Start: start.Unix(), End: end.Unix()}, nil
}
