package deriv

import (
	"fmt"
	"sync"

	"deriv-signal-bot/internal/types"
)

// CandleCache folds streamed ticks into fixed-granularity candles and keeps
// the most recent ones. It is seeded from history so a live decision has a
// full context window from the first closed bar.
type CandleCache struct {
	mu          sync.RWMutex
	granularity int64
	maxSize     int
	closed      []types.Candle
	forming     *types.Candle
}

func NewCandleCache(tf Timeframe, maxSize int) *CandleCache {
	return &CandleCache{
		granularity: tf.Granularity,
		maxSize:     maxSize,
		closed:      make([]types.Candle, 0, maxSize),
	}
}

// Seed replaces the buffer with history (ascending).
func (cc *CandleCache) Seed(history []types.Candle) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if len(history) > cc.maxSize {
		history = history[len(history)-cc.maxSize:]
	}
	cc.closed = append(cc.closed[:0], history...)
	cc.forming = nil
}

// AddTick updates the forming candle. When the tick starts a new bucket the
// previous candle is closed and returned.
func (cc *CandleCache) AddTick(t types.Tick) (closed *types.Candle) {
	bucket := t.Epoch - t.Epoch%cc.granularity

	cc.mu.Lock()
	defer cc.mu.Unlock()

	if n := len(cc.closed); n > 0 && bucket <= cc.closed[n-1].Epoch {
		// Belongs to a bucket history already covers.
		return nil
	}

	if cc.forming != nil && cc.forming.Epoch == bucket {
		cc.forming.High = max(cc.forming.High, t.Quote)
		cc.forming.Low = min(cc.forming.Low, t.Quote)
		cc.forming.Close = t.Quote
		return nil
	}

	if cc.forming != nil {
		done := *cc.forming
		cc.appendLocked(done)
		closed = &done
	}
	cc.forming = &types.Candle{Epoch: bucket, Open: t.Quote, High: t.Quote, Low: t.Quote, Close: t.Quote}
	return closed
}

func (cc *CandleCache) appendLocked(c types.Candle) {
	cc.closed = append(cc.closed, c)
	if len(cc.closed) > cc.maxSize {
		cc.closed = cc.closed[1:]
	}
}

// Recent returns a copy of the last n closed candles.
func (cc *CandleCache) Recent(n int) ([]types.Candle, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	if len(cc.closed) == 0 {
		return nil, fmt.Errorf("no candles available")
	}
	if n > len(cc.closed) {
		n = len(cc.closed)
	}
	out := make([]types.Candle, n)
	copy(out, cc.closed[len(cc.closed)-n:])
	return out, nil
}

// Len returns the number of closed candles held.
func (cc *CandleCache) Len() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.closed)
}
