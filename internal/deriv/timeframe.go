package deriv

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe maps a chart period to the granularity the history endpoint accepts.
type Timeframe struct {
	Key         string
	Granularity int64
}

func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Granularity) * time.Second
}

var supportedTimeframes = map[string]Timeframe{
	"M1":  {Key: "M1", Granularity: 60},
	"M5":  {Key: "M5", Granularity: 300},
	"M15": {Key: "M15", Granularity: 900},
	"H1":  {Key: "H1", Granularity: 3600},
	"H4":  {Key: "H4", Granularity: 14400},
	"D1":  {Key: "D1", Granularity: 86400},
}

var timeframeAliases = map[string]string{
	"1m":  "M1",
	"5m":  "M5",
	"15m": "M15",
	"1h":  "H1",
	"4h":  "H4",
	"1d":  "D1",
}

// ParseTimeframe accepts M1…D1 in any case as well as 1m…1d.
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.TrimSpace(input)
	if alias, ok := timeframeAliases[strings.ToLower(key)]; ok {
		key = alias
	}
	tf, ok := supportedTimeframes[strings.ToUpper(key)]
	if !ok {
		return Timeframe{}, fmt.Errorf("unsupported timeframe %q (supported: %s)", input, strings.Join(SupportedTimeframes(), ", "))
	}
	return tf, nil
}

// SupportedTimeframes returns the canonical keys ordered by granularity.
func SupportedTimeframes() []string {
	tfs := make([]Timeframe, 0, len(supportedTimeframes))
	for _, tf := range supportedTimeframes {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Granularity < tfs[j].Granularity })
	keys := make([]string, len(tfs))
	for i, tf := range tfs {
		keys[i] = tf.Key
	}
	return keys
}
