package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"deriv-signal-bot/internal/deriv"
	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/logger"
	"deriv-signal-bot/internal/store"
	"deriv-signal-bot/internal/tradelog"
	"deriv-signal-bot/internal/types"
)

const (
	closedCandleBuffer = 8
	requestGrace       = 5 * time.Second
)

// runStream seeds a candle cache from history, subscribes to live ticks and asks
// the oracle for a decision each time a candle closes.
func runStream(ctx context.Context, cfg *store.Config, ticks interfaces.TickStream, md interfaces.MarketData, journal *tradelog.Journal) error {
	tf, err := deriv.ParseTimeframe(cfg.Market.Timeframe)
	if err != nil {
		return err
	}
	decider, err := initializeDecider(ctx, cfg)
	if err != nil {
		return err
	}
	sentiment, err := initializeSentiment(ctx, cfg)
	if err != nil {
		return err
	}

	bars := cfg.Analysis.ContextBars
	cache := deriv.NewCandleCache(tf, max(bars*2, 100))

	history, err := md.FetchCandles(ctx, cfg.Market.Symbol, tf.Key, nil)
	if err != nil {
		return err
	}
	cache.Seed(history)
	logger.Info(ctx, "Candle cache seeded", "symbol", cfg.Market.Symbol, "timeframe", tf.Key, "candles", cache.Len())

	closed := make(chan types.Candle, closedCandleBuffer)
	onTick := func(t types.Tick) {
		logger.Tick(ctx, t.Symbol, t.Epoch, t.Quote)
		c := cache.AddTick(t)
		if c == nil {
			return
		}
		select {
		case closed <- *c:
		default:
			logger.Warn(ctx, "Decision loop busy, skipping closed candle", "symbol", t.Symbol, "epoch", c.Epoch)
		}
	}

	if err := ticks.Subscribe(ctx, cfg.Market.Symbol, onTick); err != nil {
		return err
	}
	logger.Info(ctx, "Streaming ticks", "symbol", cfg.Market.Symbol)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case c := <-closed:
				decideOnClose(gctx, cfg, c, cache, decider, sentiment, journal)
			}
		}
	})

	err = g.Wait()

	unsubCtx, cancel := context.WithTimeout(context.Background(), requestGrace)
	ticks.Unsubscribe(unsubCtx)
	cancel()
	logger.Info(context.Background(), "Stream stopped", "symbol", cfg.Market.Symbol)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func decideOnClose(ctx context.Context, cfg *store.Config, c types.Candle, cache *deriv.CandleCache,
	decider interfaces.Decider, sentiment interfaces.SentimentProvider, journal *tradelog.Journal) {
	window, err := cache.Recent(cfg.Analysis.ContextBars)
	if err != nil {
		logger.Warn(ctx, "Not enough candles for a decision yet", "have", cache.Len(), "need", cfg.Analysis.ContextBars)
		return
	}

	mc := types.MarketContext{
		Symbol:        cfg.Market.Symbol,
		Timeframe:     cfg.Market.Timeframe,
		Candles:       window,
		CurrentPrice:  c.Close,
		Indicators:    cfg.Analysis.PriorityIndicators,
		RiskTolerance: types.RiskTolerance(cfg.Analysis.RiskTolerance),
	}
	if sentiment != nil {
		s, err := sentiment.Sentiment(ctx, cfg.Market.Symbol)
		if err != nil {
			logger.Warn(ctx, "Sentiment unavailable, deciding without it", "symbol", cfg.Market.Symbol, "error", err)
		} else {
			mc.Sentiment = s
		}
	}

	d, err := decider.Decide(ctx, mc)
	if err != nil {
		// logged by the decider wrapper
		return
	}

	entry := tradelog.DecisionEntry{
		Symbol:     mc.Symbol,
		Timeframe:  mc.Timeframe,
		Epoch:      c.Epoch,
		Price:      c.Close,
		Signal:     string(d.Signal),
		Confidence: d.Confidence,
		TP:         d.TP,
		SL:         d.SL,
		Reason:     d.Reason,
	}
	if mc.Sentiment != nil {
		entry.Sentiment = mc.Sentiment.Overall
	}
	if err := journal.AppendDecision(entry); err != nil {
		logger.Warn(ctx, "Failed to journal decision", "error", err)
	}
}
