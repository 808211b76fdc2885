package deriv

import "time"

const (
	baseReconnectDelay    = time.Second
	defaultMaxReconnDelay = 30 * time.Second
)

// ReconnectDelay returns the wait before reconnect attempt n (n starts at 1).
// The delay doubles from 1s and is capped at maxDelay, so with the default
// 30s cap the sequence is 1s, 2s, 4s, 8s, 16s, 30s, 30s... Every attempt is
// capped, including the first when maxDelay is under 1s.
func ReconnectDelay(attempt int, maxDelay time.Duration) time.Duration {
	if maxDelay <= 0 {
		maxDelay = defaultMaxReconnDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	d := baseReconnectDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}
