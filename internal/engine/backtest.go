package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/logger"
	"deriv-signal-bot/internal/types"
)

// Config holds the simulation constants.
// ConfidenceThreshold must be strictly exceeded to open a position; nil
// selects DefaultConfidenceThreshold and 0 is a valid setting.
type Config struct {
	InitialBalance      float64
	ConfidenceThreshold *float64
	WarmupBars          int
	ContractSize        float64
	RiskTolerance       types.RiskTolerance
	PriorityIndicators  string
}

const DefaultConfidenceThreshold = 50.0

// Threshold returns a pointer suitable for Config.ConfidenceThreshold.
func Threshold(v float64) *float64 { return &v }

func DefaultConfig() Config {
	return Config{
		InitialBalance:      10000,
		ConfidenceThreshold: Threshold(DefaultConfidenceThreshold),
		WarmupBars:          20,
		ContractSize:        100,
		RiskTolerance:       types.RiskMedium,
	}
}

type StatusFunc func(types.BacktestStatus)

// Backtester replays historical bars through a Decider with at most one open position.
type Backtester struct {
	source   interfaces.CandleSource
	decider  interfaces.Decider
	cfg      Config
	onStatus StatusFunc

	mu     sync.Mutex
	status types.BacktestStatus
}

var _ interfaces.Backtester = (*Backtester)(nil)

type Option func(*Backtester)

// WithStatusListener registers a callback invoked on every state change.
func WithStatusListener(fn StatusFunc) Option {
	return func(b *Backtester) { b.onStatus = fn }
}

func NewBacktester(source interfaces.CandleSource, decider interfaces.Decider, cfg Config, opts ...Option) *Backtester {
	def := DefaultConfig()
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = def.InitialBalance
	}
	if cfg.WarmupBars <= 0 {
		cfg.WarmupBars = def.WarmupBars
	}
	if cfg.ContractSize <= 0 {
		cfg.ContractSize = def.ContractSize
	}
	if cfg.RiskTolerance == "" {
		cfg.RiskTolerance = def.RiskTolerance
	}
	if cfg.ConfidenceThreshold == nil {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	b := &Backtester{source: source, decider: decider, cfg: cfg, status: types.BacktestIdle}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backtester) Status() types.BacktestStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Backtester) setStatus(s types.BacktestStatus) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
	if b.onStatus != nil {
		b.onStatus(s)
	}
}

// begin moves to fetching unless a run is already in flight.
func (b *Backtester) begin() error {
	b.mu.Lock()
	if b.status == types.BacktestFetching || b.status == types.BacktestRunning {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.status = types.BacktestFetching
	b.mu.Unlock()
	if b.onStatus != nil {
		b.onStatus(types.BacktestFetching)
	}
	return nil
}

// Run fetches the requested bars and simulates them. Any failure discards the
// partial result and leaves the backtester in the error state.
func (b *Backtester) Run(ctx context.Context, req types.BacktestRequest, onProgress interfaces.ProgressFunc) (*types.BacktestReport, error) {
	if err := b.begin(); err != nil {
		return nil, err
	}

	candles, err := b.source.FetchCandles(ctx, req.Symbol, req.Timeframe, req.Range)
	if err != nil {
		b.setStatus(types.BacktestError)
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	if need := b.cfg.WarmupBars + 1; len(candles) < need {
		b.setStatus(types.BacktestError)
		return nil, &ConfigurationError{Message: insufficientDataMsg, Bars: len(candles), Needed: need}
	}

	b.setStatus(types.BacktestRunning)
	report, err := b.simulate(ctx, req, candles, onProgress)
	if err != nil {
		b.setStatus(types.BacktestError)
		return nil, err
	}
	b.setStatus(types.BacktestComplete)
	return report, nil
}

func (b *Backtester) simulate(ctx context.Context, req types.BacktestRequest, candles []types.Candle, onProgress interfaces.ProgressFunc) (*types.BacktestReport, error) {
	warmup := b.cfg.WarmupBars
	contract := decimal.NewFromFloat(b.cfg.ContractSize)
	initial := decimal.NewFromFloat(b.cfg.InitialBalance)
	acct := newAccount(initial)
	total := len(candles) - warmup

	var (
		open   *position
		trades []types.ClosedTrade
		wins   int
		events = []string{"Starting backtest with balance: $" + formatThousands(initial)}
	)

	for i := warmup; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := candles[i]

		if open != nil {
			if exit, hit := open.exitPrice(bar); hit {
				pnl := open.pnl(exit, contract)
				acct.apply(pnl)

				outcome := "LOSS"
				if !pnl.IsNegative() {
					outcome = "WIN"
					wins++
				}
				trades = append(trades, types.ClosedTrade{
					Direction:  open.direction,
					EntryEpoch: open.openedAt,
					ExitEpoch:  bar.Epoch,
					Entry:      open.entry.InexactFloat64(),
					Exit:       exit.InexactFloat64(),
					TP:         open.tp.InexactFloat64(),
					SL:         open.sl.InexactFloat64(),
					PnL:        money(pnl),
					Balance:    money(acct.balance),
					Outcome:    outcome,
				})
				events = append(events, fmt.Sprintf("Closed %s at %s. P/L: $%s. Balance: $%s",
					open.direction, exit.String(), pnl.StringFixed(2), acct.balance.StringFixed(2)))
				logger.Trade(ctx, req.Symbol, string(open.direction), "close", exit.InexactFloat64(),
					"pnl", money(pnl), "balance", money(acct.balance), "outcome", outcome)
				open = nil
			}
		}

		if open == nil {
			d, err := b.decider.Decide(ctx, types.MarketContext{
				Symbol:        req.Symbol,
				Timeframe:     req.Timeframe,
				Candles:       candles[i-warmup : i],
				CurrentPrice:  bar.Close,
				Indicators:    b.cfg.PriorityIndicators,
				RiskTolerance: b.cfg.RiskTolerance,
			})
			if err != nil {
				return nil, fmt.Errorf("decision at bar %d: %w", bar.Epoch, err)
			}
			if d.Actionable(*b.cfg.ConfidenceThreshold) {
				open = openPosition(d, bar)
				events = append(events, fmt.Sprintf("Opened %s @ %s | TP: %s, SL: %s",
					open.direction, open.entry.String(), open.tp.String(), open.sl.String()))
				logger.Trade(ctx, req.Symbol, string(open.direction), "open", bar.Close,
					"tp", d.TP, "sl", d.SL, "confidence", d.Confidence)
			}
		}

		if onProgress != nil {
			onProgress(types.BacktestProgress{Processed: i - warmup + 1, Total: total})
		}
	}

	winRate := 0.0
	if len(trades) > 0 {
		winRate = round(decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(trades)))).Mul(hundred), 2)
	}
	if trades == nil {
		trades = []types.ClosedTrade{}
	}

	return &types.BacktestReport{
		Symbol:         req.Symbol,
		Timeframe:      req.Timeframe,
		Bars:           len(candles),
		InitialBalance: money(initial),
		FinalBalance:   money(acct.balance),
		NetPnL:         money(acct.balance.Sub(initial)),
		WinRate:        winRate,
		Trades:         len(trades),
		Wins:           wins,
		Losses:         len(trades) - wins,
		MaxDrawdown:    round(acct.maxDrawdown, 4),
		TradeLog:       trades,
		Events:         events,
	}, nil
}

func money(d decimal.Decimal) float64 { return round(d, 2) }

func round(d decimal.Decimal, places int32) float64 {
	return d.Round(places).InexactFloat64()
}

// formatThousands renders 10000 as "10,000" and 10000.5 as "10,000.50".
func formatThousands(d decimal.Decimal) string {
	s := d.StringFixed(0)
	frac := ""
	if !d.Equal(d.Truncate(0)) {
		fixed := d.StringFixed(2)
		dot := strings.IndexByte(fixed, '.')
		s, frac = fixed[:dot], fixed[dot:]
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out) + frac
	}
	return string(out) + frac
}

// Summary is a one-line human digest of a report.
func Summary(r *types.BacktestReport) string {
	return "P/L $" + strconv.FormatFloat(r.NetPnL, 'f', 2, 64) +
		" | trades " + strconv.Itoa(r.Trades) +
		" | win rate " + strconv.FormatFloat(r.WinRate, 'f', 2, 64) + "%" +
		" | max drawdown " + strconv.FormatFloat(r.MaxDrawdown, 'f', 2, 64) + "%"
}
