package main

import (
	"context"
	"fmt"
	"strings"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/logger"
	"deriv-signal-bot/internal/store"
)

func runSymbols(ctx context.Context, cfg *store.Config, md interfaces.MarketData) error {
	symbols, err := md.FetchSymbols(ctx, cfg.Market.Category)
	if err != nil {
		return err
	}
	logger.Info(ctx, "Fetched symbols", "category", cfg.Market.Category, "count", len(symbols))
	fmt.Println(strings.Join(symbols, "\n"))
	return nil
}

func runValidate(ctx context.Context, cfg *store.Config, md interfaces.MarketData) error {
	res := md.ValidateAccountLogin(ctx, cfg.Account.MT5Login, cfg.Account.MT5Server)
	if !res.Valid {
		return fmt.Errorf("mt5 login rejected: %s", res.Error)
	}
	logger.Info(ctx, "MT5 login is valid", "login", cfg.Account.MT5Login, "server", cfg.Account.MT5Server)
	return nil
}
