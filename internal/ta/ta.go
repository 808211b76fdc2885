package ta

import (
	"math"

	"github.com/markcheno/go-talib"

	"deriv-signal-bot/internal/types"
)

// Params selects indicator periods for Snapshot.
type Params struct {
	RSIPeriod  int
	SMAWindows []int
	ATRPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	BBWindow   int
	BBStdDev   float64
}

func DefaultParams() Params {
	return Params{
		RSIPeriod:  14,
		SMAWindows: []int{20},
		ATRPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		BBWindow:   20,
		BBStdDev:   2,
	}
}

// Snapshot computes the latest value of each indicator. Values that need more
// history than candles provides are NaN.
func Snapshot(candles []types.Candle, p Params) types.Indicators {
	highs, lows, closes := Series(candles)

	inds := types.Indicators{
		RSI: RSI(closes, p.RSIPeriod),
		SMA: make(map[int]float64, len(p.SMAWindows)),
		ATR: ATR(highs, lows, closes, p.ATRPeriod),
	}
	for _, w := range p.SMAWindows {
		inds.SMA[w] = SMA(closes, w)
	}
	inds.MACD, inds.MACDSignal, inds.MACDHist = MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	inds.BB.Middle, inds.BB.Upper, inds.BB.Lower = Bollinger(closes, p.BBWindow, p.BBStdDev)
	return inds
}

// Series splits candles into high, low and close slices.
func Series(candles []types.Candle) (highs, lows, closes []float64) {
	highs = make([]float64, len(candles))
	lows = make([]float64, len(candles))
	closes = make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	return highs, lows, closes
}

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range closes[len(closes)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// RSI is Wilder's relative strength index of the last bar.
func RSI(closes []float64, period int) float64 {
	if period <= 1 || len(closes) < period+1 {
		return math.NaN()
	}
	return last(talib.Rsi(closes, period))
}

// ATR is Wilder's average true range of the last bar.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	if period <= 0 || len(closes) < period+1 {
		return math.NaN()
	}
	return last(talib.Atr(highs, lows, closes, period))
}

// MACD returns the last MACD line, signal line and histogram values.
func MACD(closes []float64, fast, slow, signal int) (macd, sig, hist float64) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal-1 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	m, s, h := talib.Macd(closes, fast, slow, signal)
	return last(m), last(s), last(h)
}

func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for _, v := range vals[len(vals)-n:] {
		d := v - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	return mid, mid + k*sd, mid - k*sd
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
