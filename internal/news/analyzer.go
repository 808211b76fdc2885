package news

import (
	"strings"
	"unicode"

	"deriv-signal-bot/internal/types"
)

// Analyzer scores headlines with a small market lexicon.
type Analyzer struct {
	positive map[string]float64
	negative map[string]float64
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		positive: map[string]float64{
			"rally": 1, "rallies": 1, "surge": 1, "surges": 1, "soar": 1, "soars": 1,
			"gain": 0.6, "gains": 0.6, "rise": 0.6, "rises": 0.6, "rebound": 0.8, "rebounds": 0.8,
			"bullish": 1, "upbeat": 0.6, "record": 0.5, "beat": 0.5, "beats": 0.5,
			"strong": 0.5, "stronger": 0.5, "upgrade": 0.8, "higher": 0.4, "climbs": 0.6,
			"optimism": 0.6, "recovery": 0.6, "breakout": 0.8,
		},
		negative: map[string]float64{
			"slump": 1, "slumps": 1, "plunge": 1, "plunges": 1, "crash": 1, "crashes": 1,
			"fall": 0.6, "falls": 0.6, "drop": 0.6, "drops": 0.6, "slide": 0.6, "slides": 0.6,
			"bearish": 1, "weak": 0.5, "weaker": 0.5, "downgrade": 0.8, "lower": 0.4,
			"slips": 0.5, "fears": 0.6, "selloff": 1, "sell-off": 1, "recession": 0.8,
			"losses": 0.6, "tumbles": 0.8, "warning": 0.5,
		},
	}
}

// Score returns a headline score clamped to [-1, 1].
func (a *Analyzer) Score(headline string) float64 {
	words := strings.FieldsFunc(strings.ToLower(headline), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})

	s := 0.0
	for _, w := range words {
		s += a.positive[w]
		s -= a.negative[w]
	}
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

// Analyze aggregates headline scores. A side wins only when it has more than
// twice as many headlines as the other side.
func (a *Analyzer) Analyze(headlines []string) types.Sentiment {
	out := types.Sentiment{Overall: Neutral, Headlines: headlines}
	if len(headlines) == 0 {
		return out
	}

	var pos, neg int
	total := 0.0
	for _, h := range headlines {
		s := a.Score(h)
		total += s
		switch {
		case s > 0:
			pos++
		case s < 0:
			neg++
		}
	}
	out.Score = total / float64(len(headlines))

	switch {
	case pos > neg*2:
		out.Overall = Bullish
	case neg > pos*2:
		out.Overall = Bearish
	}
	return out
}

func lower(s string) string { return strings.ToLower(s) }
