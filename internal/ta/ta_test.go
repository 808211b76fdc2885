package ta

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"deriv-signal-bot/internal/types"
)

func rising(n int) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = types.Candle{Epoch: int64(i * 60), Open: c - 0.5, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func TestSMA(t *testing.T) {
	assert.Equal(t, 3.5, SMA([]float64{1, 2, 3, 4}, 2))
	assert.True(t, math.IsNaN(SMA([]float64{1}, 2)))
	assert.True(t, math.IsNaN(SMA([]float64{1, 2}, 0)))
}

func TestRSIAllGains(t *testing.T) {
	_, _, closes := Series(rising(30))
	assert.InDelta(t, 100, RSI(closes, 14), 1e-9)
	assert.True(t, math.IsNaN(RSI(closes[:10], 14)))
}

func TestATRConstantRange(t *testing.T) {
	highs, lows, closes := Series(rising(30))
	// Each bar spans 2 and gaps up by 1 so true range is 2.
	assert.InDelta(t, 2, ATR(highs, lows, closes, 14), 1e-9)
	assert.True(t, math.IsNaN(ATR(highs[:5], lows[:5], closes[:5], 14)))
	assert.True(t, math.IsNaN(ATR(highs, lows[:3], closes, 14)))
}

func TestMACDNeedsHistory(t *testing.T) {
	_, _, closes := Series(rising(20))
	m, s, h := MACD(closes, 12, 26, 9)
	assert.True(t, math.IsNaN(m))
	assert.True(t, math.IsNaN(s))
	assert.True(t, math.IsNaN(h))

	_, _, closes = Series(rising(60))
	m, s, _ = MACD(closes, 12, 26, 9)
	assert.Greater(t, m, 0.0)
	assert.Greater(t, s, 0.0)
}

func TestBollingerFlatSeries(t *testing.T) {
	mid, up, low := Bollinger([]float64{5, 5, 5, 5}, 4, 2)
	assert.Equal(t, 5.0, mid)
	assert.Equal(t, 5.0, up)
	assert.Equal(t, 5.0, low)
}

func TestSnapshot(t *testing.T) {
	inds := Snapshot(rising(40), DefaultParams())
	assert.InDelta(t, 100, inds.RSI, 1e-9)
	assert.InDelta(t, 129.5, inds.SMA[20], 1e-9)
	assert.InDelta(t, 2, inds.ATR, 1e-9)
	assert.False(t, math.IsNaN(inds.MACD))
	assert.Greater(t, inds.BB.Upper, inds.BB.Lower)
}
