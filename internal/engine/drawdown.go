package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// account tracks balance, its running peak and the worst peak-to-trough drop in percent.
type account struct {
	balance     decimal.Decimal
	peak        decimal.Decimal
	maxDrawdown decimal.Decimal
}

func newAccount(initial decimal.Decimal) *account {
	return &account{balance: initial, peak: initial}
}

func (a *account) apply(pnl decimal.Decimal) {
	a.balance = a.balance.Add(pnl)
	if a.balance.GreaterThan(a.peak) {
		a.peak = a.balance
	}
	if !a.peak.IsPositive() {
		return
	}
	dd := a.peak.Sub(a.balance).Div(a.peak).Mul(hundred)
	if dd.GreaterThan(a.maxDrawdown) {
		a.maxDrawdown = dd
	}
}
