package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv-signal-bot/internal/types"
)

func TestParseDecisionFencedReply(t *testing.T) {
	text := "```json\n{\"signal\":\"buy\",\"confidence\":72,\"tp\":105,\"sl\":95,\"reason\":\"RSI turning up\"}\n```"

	d, err := ParseDecision(text)
	require.NoError(t, err)
	assert.Equal(t, types.Decision{Signal: types.SignalBuy, Confidence: 72, TP: 105, SL: 95, Reason: "RSI turning up"}, d)
}

func TestParseDecisionSurroundingProse(t *testing.T) {
	text := `Here is my analysis: {"signal": "SELL", "confidence": 64.5, "tp": 1.0812, "sl": 1.0901, "reason": "lower highs {bearish}"} Good luck.`

	d, err := ParseDecision(text)
	require.NoError(t, err)
	assert.Equal(t, types.SignalSell, d.Signal)
	assert.Equal(t, 64.5, d.Confidence)
	assert.Equal(t, "lower highs {bearish}", d.Reason)
}

func TestParseDecisionNeutralAllowsZeroLevels(t *testing.T) {
	d, err := ParseDecision(`{"signal":"NEUTRAL","confidence":10,"tp":0,"sl":0,"reason":"range"}`)
	require.NoError(t, err)
	assert.Equal(t, types.SignalNeutral, d.Signal)
}

func TestParseDecisionRejects(t *testing.T) {
	cases := map[string]string{
		"no json":             "I cannot decide right now.",
		"truncated":           `{"signal":"BUY","confidence":70`,
		"missing field":       `{"signal":"BUY","confidence":70,"tp":105,"reason":"x"}`,
		"unknown signal":      `{"signal":"HOLD","confidence":70,"tp":105,"sl":95,"reason":"x"}`,
		"confidence too high": `{"signal":"BUY","confidence":170,"tp":105,"sl":95,"reason":"x"}`,
		"negative confidence": `{"signal":"BUY","confidence":-1,"tp":105,"sl":95,"reason":"x"}`,
		"string confidence":   `{"signal":"BUY","confidence":"high","tp":105,"sl":95,"reason":"x"}`,
		"negative tp":         `{"signal":"SELL","confidence":70,"tp":-3,"sl":95,"reason":"x"}`,
		"zero sl on buy":      `{"signal":"BUY","confidence":70,"tp":105,"sl":0,"reason":"x"}`,
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDecision(text)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, text, verr.Raw)
			assert.NotEmpty(t, verr.Reason)
		})
	}
}

func TestExtractObjectIgnoresBracesInStrings(t *testing.T) {
	obj, ok := extractObject(`noise {"a":"}{","b":{"c":1}} trailing {"x":2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a":"}{","b":{"c":1}}`, obj)

	_, ok = extractObject(`{"a":`)
	assert.False(t, ok)
}
