package engine

import (
	"deriv-signal-bot/internal/store"
	"deriv-signal-bot/internal/types"
)

// ConfigFromStore maps the backtest and analysis sections of the bot config.
func ConfigFromStore(cfg *store.Config) Config {
	var threshold *float64
	if cfg.Backtest.ConfidenceThreshold != nil {
		threshold = Threshold(*cfg.Backtest.ConfidenceThreshold)
	}
	return Config{
		InitialBalance:      cfg.Backtest.InitialBalance,
		ConfidenceThreshold: threshold,
		WarmupBars:          cfg.Backtest.WarmupBars,
		ContractSize:        cfg.Backtest.ContractSize,
		RiskTolerance:       types.RiskTolerance(cfg.Analysis.RiskTolerance),
		PriorityIndicators:  cfg.Analysis.PriorityIndicators,
	}
}
