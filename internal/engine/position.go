package engine

import (
	"github.com/shopspring/decimal"

	"deriv-signal-bot/internal/types"
)

// position is the single open simulated trade.
type position struct {
	direction types.Signal
	entry     decimal.Decimal
	tp        decimal.Decimal
	sl        decimal.Decimal
	openedAt  int64
}

func openPosition(d types.Decision, bar types.Candle) *position {
	return &position{
		direction: d.Signal,
		entry:     decimal.NewFromFloat(bar.Close),
		tp:        decimal.NewFromFloat(d.TP),
		sl:        decimal.NewFromFloat(d.SL),
		openedAt:  bar.Epoch,
	}
}

// exitPrice reports the level the bar touched. Take-profit is checked first,
// so a bar that spans both levels closes at tp.
func (p *position) exitPrice(bar types.Candle) (decimal.Decimal, bool) {
	high := decimal.NewFromFloat(bar.High)
	low := decimal.NewFromFloat(bar.Low)

	switch p.direction {
	case types.SignalBuy:
		if high.GreaterThanOrEqual(p.tp) {
			return p.tp, true
		}
		if low.LessThanOrEqual(p.sl) {
			return p.sl, true
		}
	case types.SignalSell:
		if low.LessThanOrEqual(p.tp) {
			return p.tp, true
		}
		if high.GreaterThanOrEqual(p.sl) {
			return p.sl, true
		}
	}
	return decimal.Zero, false
}

func (p *position) pnl(exit, contractSize decimal.Decimal) decimal.Decimal {
	if p.direction == types.SignalSell {
		return p.entry.Sub(exit).Mul(contractSize)
	}
	return exit.Sub(p.entry).Mul(contractSize)
}
