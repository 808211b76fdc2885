package types

import "strings"

// Candle is one OHLC bucket; Epoch is the bucket open in Unix seconds.
type Candle struct {
	Epoch int64   `json:"epoch"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Tick is a streamed quote.
type Tick struct {
	Symbol         string  `json:"symbol"`
	Epoch          int64   `json:"epoch"`
	Quote          float64 `json:"quote"`
	Bid            float64 `json:"bid,omitempty"`
	Ask            float64 `json:"ask,omitempty"`
	SubscriptionID string  `json:"-"`
}

// Symbol is one entry of the active instrument catalog.
type Symbol struct {
	Symbol       string `json:"symbol"`
	DisplayName  string `json:"display_name"`
	Market       string `json:"market"`
	Submarket    string `json:"submarket"`
	ExchangeOpen int    `json:"exchange_is_open"`
}

// TimeRange is an inclusive [Start, End] window in Unix seconds.
type TimeRange struct {
	Start int64
	End   int64
}

// LoginValidation is the outcome of an MT5 login lookup. Error is set when Valid is false.
type LoginValidation struct {
	Valid bool
	Error string
}

type Indicators struct {
	RSI        float64
	SMA        map[int]float64
	MACD       float64
	MACDSignal float64
	MACDHist   float64
	ATR        float64
	BB         struct{ Middle, Upper, Lower float64 }
}

type Signal string

const (
	SignalBuy     Signal = "BUY"
	SignalSell    Signal = "SELL"
	SignalNeutral Signal = "NEUTRAL"
)

// ParseSignal normalizes case and surrounding space. ok is false for unknown values.
func ParseSignal(s string) (Signal, bool) {
	switch sig := Signal(strings.ToUpper(strings.TrimSpace(s))); sig {
	case SignalBuy, SignalSell, SignalNeutral:
		return sig, true
	default:
		return "", false
	}
}

// Decision is the oracle's structured answer.
type Decision struct {
	Signal     Signal  `json:"signal"`
	Confidence float64 `json:"confidence"`
	TP         float64 `json:"tp"`
	SL         float64 `json:"sl"`
	Reason     string  `json:"reason"`
}

// Actionable reports whether the decision should open a position at the given threshold.
func (d Decision) Actionable(threshold float64) bool {
	return d.Signal != SignalNeutral && d.Confidence > threshold
}

type RiskTolerance string

const (
	RiskLow    RiskTolerance = "low"
	RiskMedium RiskTolerance = "medium"
	RiskHigh   RiskTolerance = "high"
)

// Sentiment summarizes recent news for a symbol.
type Sentiment struct {
	Overall   string   `json:"overall"` // Bullish, Bearish or Neutral
	Score     float64  `json:"score"`
	Headlines []string `json:"headlines"`
}

// MarketContext is everything the oracle prompt is built from.
type MarketContext struct {
	Symbol        string
	Timeframe     string
	Candles       []Candle
	CurrentPrice  float64
	Indicators    string
	RiskTolerance RiskTolerance
	Sentiment     *Sentiment
}
