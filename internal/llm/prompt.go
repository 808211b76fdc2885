package llm

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"deriv-signal-bot/internal/ta"
	"deriv-signal-bot/internal/types"
)

const (
	// PromptBars is how many trailing candles the prompt shows.
	PromptBars = 20

	DefaultPriorityIndicators = "RSI, MACD"

	// ResponseContract is the exact reply shape the oracle is asked for.
	ResponseContract = `{"signal": "BUY"|"SELL"|"NEUTRAL", "confidence": number, "tp": number, "sl": number, "reason": "string"}`
)

// BuildPrompt renders market context into the oracle prompt.
func BuildPrompt(mc types.MarketContext) string {
	return buildPrompt(mc, ta.DefaultParams())
}

func buildPrompt(mc types.MarketContext, params ta.Params) string {
	candles := mc.Candles
	if len(candles) > PromptBars {
		candles = candles[len(candles)-PromptBars:]
	}

	priority := strings.TrimSpace(mc.Indicators)
	if priority == "" {
		priority = DefaultPriorityIndicators
	}
	risk := mc.RiskTolerance
	if risk == "" {
		risk = types.RiskMedium
	}
	timeframe := mc.Timeframe
	if timeframe == "" {
		timeframe = "M1"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following recent candle data for %s on the %s timeframe.\n", mc.Symbol, timeframe)
	b.WriteString("Technical Data (oldest first):\n")
	for _, c := range candles {
		fmt.Fprintf(&b, "O: %s, H: %s, L: %s, C: %s\n", num(c.Open), num(c.High), num(c.Low), num(c.Close))
	}
	fmt.Fprintf(&b, "Current Price: %s\n", num(mc.CurrentPrice))
	fmt.Fprintf(&b, "Indicators to prioritize: %s.\n", priority)
	fmt.Fprintf(&b, "User risk tolerance is %s.\n", risk)

	if snap := snapshotLine(ta.Snapshot(mc.Candles, params)); snap != "" {
		fmt.Fprintf(&b, "Indicator snapshot: %s\n", snap)
	}

	if s := mc.Sentiment; s != nil {
		b.WriteString("Recent Market Sentiment Analysis:\n")
		fmt.Fprintf(&b, "Overall Sentiment: %s\n", s.Overall)
		if len(s.Headlines) > 0 {
			b.WriteString("Recent Headlines:\n")
			for _, h := range s.Headlines {
				fmt.Fprintf(&b, "- %s\n", h)
			}
		}
	}

	b.WriteString("Based on ALL available data (technical and sentiment), provide a trading signal (BUY, SELL, or NEUTRAL).\n")
	b.WriteString("Calculate a confident Take Profit (TP) and Stop Loss (SL) level.\n")
	b.WriteString("Provide a brief reason for your decision based on the combined analysis.\n")
	b.WriteString("Respond in JSON format: ")
	b.WriteString(ResponseContract)
	return b.String()
}

// snapshotLine lists the indicators that had enough history, in a stable order.
func snapshotLine(inds types.Indicators) string {
	var parts []string
	add := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return
		}
		parts = append(parts, name+"="+strconv.FormatFloat(v, 'f', 4, 64))
	}

	add("RSI", inds.RSI)
	windows := make([]int, 0, len(inds.SMA))
	for w := range inds.SMA {
		windows = append(windows, w)
	}
	sort.Ints(windows)
	for _, w := range windows {
		add("SMA"+strconv.Itoa(w), inds.SMA[w])
	}
	add("MACD", inds.MACD)
	add("MACDSignal", inds.MACDSignal)
	add("MACDHist", inds.MACDHist)
	add("ATR", inds.ATR)
	add("BBUpper", inds.BB.Upper)
	add("BBLower", inds.BB.Lower)
	return strings.Join(parts, ", ")
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
