package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"deriv-signal-bot/internal/logger"
)

type cliFlags struct {
	config    string
	mode      string
	symbol    string
	timeframe string
	start     string
	end       string
}

func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	fs := flag.NewFlagSet("bot", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "config.yaml", "path to the YAML config")
	fs.StringVar(&f.mode, "mode", "", "stream, backtest, symbols or validate (overrides config)")
	fs.StringVar(&f.symbol, "symbol", "", "market symbol, e.g. R_100 (overrides config)")
	fs.StringVar(&f.timeframe, "timeframe", "", "M1, M5, M15, H1, H4 or D1 (overrides config)")
	fs.StringVar(&f.start, "start", "", "backtest start date YYYY-MM-DD")
	fs.StringVar(&f.end, "end", "", "backtest end date YYYY-MM-DD")
	err := fs.Parse(args)
	return f, err
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := 0
	if err := run(ctx, flags); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorWithErr(ctx, "Bot exited with error", err)
		code = 1
	}
	stop()

	_ = logger.Shutdown(context.Background())
	os.Exit(code)
}

func run(ctx context.Context, flags cliFlags) error {
	cfg, err := loadConfig(ctx, flags)
	if err != nil {
		return err
	}
	logger.Info(ctx, "Bot starting",
		"mode", cfg.Mode,
		"symbol", cfg.Market.Symbol,
		"timeframe", cfg.Market.Timeframe,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
	)

	journal := initializeJournal(ctx, cfg)

	sess, md, err := connectDeriv(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Disconnect()

	switch cfg.Mode {
	case "symbols":
		return runSymbols(ctx, cfg, md)
	case "validate":
		return runValidate(ctx, cfg, md)
	case "backtest":
		return runBacktest(ctx, cfg, flags, md, journal)
	default:
		return runStream(ctx, cfg, sess, md, journal)
	}
}
