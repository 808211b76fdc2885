package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"deriv-signal-bot/internal/deriv"
	"deriv-signal-bot/internal/deriv/derivobs"
	"deriv-signal-bot/internal/engine"
	"deriv-signal-bot/internal/engine/engineobs"
	"deriv-signal-bot/internal/eod"
	"deriv-signal-bot/internal/eod/eodobs"
	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/llm"
	"deriv-signal-bot/internal/llm/claude"
	"deriv-signal-bot/internal/llm/gemini"
	"deriv-signal-bot/internal/llm/llmobs"
	"deriv-signal-bot/internal/llm/noop"
	"deriv-signal-bot/internal/llm/openai"
	"deriv-signal-bot/internal/logger"
	"deriv-signal-bot/internal/news"
	"deriv-signal-bot/internal/store"
	"deriv-signal-bot/internal/ta"
	"deriv-signal-bot/internal/tradelog"
	"deriv-signal-bot/internal/types"
)

// initializeSystem loads .env and starts logging. The logger brings up tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig reads the YAML config and applies command line overrides.
func loadConfig(ctx context.Context, flags cliFlags) (*store.Config, error) {
	cfg, err := store.LoadConfig(flags.config)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", flags.config)
		return nil, err
	}

	changed := false
	if flags.mode != "" {
		cfg.Mode, changed = strings.ToLower(flags.mode), true
	}
	if flags.symbol != "" {
		cfg.Market.Symbol, changed = flags.symbol, true
	}
	if flags.timeframe != "" {
		cfg.Market.Timeframe, changed = flags.timeframe, true
	}
	if changed {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid command line override: %w", err)
		}
	}
	if _, err := deriv.ParseTimeframe(cfg.Market.Timeframe); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initializeJournal(ctx context.Context, cfg *store.Config) *tradelog.Journal {
	j := tradelog.New(cfg.Journal.Dir)
	if cfg.Journal.CompressOlder {
		n, err := j.CompressOlder(cfg.Journal.CompressAfterDays)
		if err != nil {
			logger.Warn(ctx, "Failed to compress old journal files", "error", err)
		} else if n > 0 {
			logger.Info(ctx, "Compressed old journal files", "count", n)
		}
	}
	return j
}

// connectDeriv opens and authorizes the session. The token is read from the
// environment and only its length is ever logged.
func connectDeriv(ctx context.Context, cfg *store.Config) (*deriv.Session, interfaces.MarketData, error) {
	token := strings.TrimSpace(os.Getenv(cfg.Deriv.TokenEnv))
	if token == "" {
		return nil, nil, fmt.Errorf("%s is not set", cfg.Deriv.TokenEnv)
	}

	sess, err := deriv.NewSession(deriv.Config{
		Endpoint:          cfg.Deriv.Endpoint,
		AppID:             cfg.Deriv.AppID,
		RequestTimeout:    time.Duration(cfg.Deriv.RequestTimeoutSeconds) * time.Second,
		MaxReconnectDelay: time.Duration(cfg.Deriv.MaxReconnectDelaySeconds) * time.Second,
	}, deriv.WithStateListener(func(state deriv.State, reason string) {
		if reason != "" {
			logger.Warn(context.Background(), "Deriv session state changed", "state", state, "reason", reason)
			return
		}
		logger.Info(context.Background(), "Deriv session state changed", "state", state)
	}))
	if err != nil {
		return nil, nil, err
	}

	op := logger.StartOperation(ctx, "deriv.Connect", "endpoint", cfg.Deriv.Endpoint, "token_len", len(token))
	if err := sess.Connect(op.GetContext(), token); err != nil {
		op.EndWithError(err)
		return nil, nil, err
	}
	op.End()

	return sess, derivobs.Wrap(deriv.NewMarketData(sess)), nil
}

// initializeOracle selects the model provider and wraps it with observability.
func initializeOracle(ctx context.Context, cfg *store.Config) (interfaces.Oracle, error) {
	provider := strings.ToLower(cfg.LLM.Provider)

	var (
		oracle interfaces.Oracle
		err    error
	)
	switch provider {
	case "openai":
		oracle, err = openai.New(cfg, os.Getenv("OPENAI_API_KEY"))
	case "claude":
		oracle, err = claude.New(cfg, os.Getenv("CLAUDE_API_KEY"))
	case "gemini":
		oracle, err = gemini.New(cfg, os.Getenv("GEMINI_API_KEY"))
	default:
		logger.Warn(ctx, "No LLM provider configured - using noop oracle (always NEUTRAL)")
		oracle = noop.New()
	}
	if err != nil {
		return nil, err
	}
	return llmobs.WrapOracle(provider, oracle), nil
}

func initializeDecider(ctx context.Context, cfg *store.Config) (interfaces.Decider, error) {
	oracle, err := initializeOracle(ctx, cfg)
	if err != nil {
		return nil, err
	}

	params := ta.DefaultParams()
	params.RSIPeriod = cfg.Indicators.RSIPeriod
	params.SMAWindows = cfg.Indicators.SMAWindows
	params.ATRPeriod = cfg.Indicators.ATRPeriod
	params.MACDFast = cfg.Indicators.MACDFast
	params.MACDSlow = cfg.Indicators.MACDSlow
	params.MACDSignal = cfg.Indicators.MACDSignal

	adapter, err := llm.NewAdapter(oracle, cfg.LLM.Model, llm.WithIndicatorParams(params))
	if err != nil {
		return nil, err
	}
	return llmobs.Wrap(adapter), nil
}

// initializeSentiment returns nil when sentiment is disabled.
func initializeSentiment(ctx context.Context, cfg *store.Config) (interfaces.SentimentProvider, error) {
	if !cfg.Analysis.EnableSentiment {
		return nil, nil
	}
	p, err := news.NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Sentiment analysis enabled", "provider", cfg.News.Provider)
	return p, nil
}

func initializeBacktester(ctx context.Context, cfg *store.Config, md interfaces.CandleSource, decider interfaces.Decider) interfaces.Backtester {
	bt := engine.NewBacktester(md, decider, engine.ConfigFromStore(cfg),
		engine.WithStatusListener(func(s types.BacktestStatus) {
			logger.Debug(ctx, "Backtest status", "status", s)
		}),
	)
	return engineobs.Wrap(bt)
}

func initializeExporter(cfg *store.Config) interfaces.ReportExporter {
	return eodobs.Wrap(eod.NewExporter(cfg.Journal.ExportDir))
}
