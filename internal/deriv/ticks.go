package deriv

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/logger"
	"deriv-signal-bot/internal/types"
)

var _ interfaces.TickStream = (*Session)(nil)

// subscription is the single live tick stream. handle is empty until the
// server acknowledges the subscribe request, and again after a socket loss.
type subscription struct {
	symbol string
	handle string
	onTick interfaces.TickHandler
}

// Subscribe replaces any current subscription with a stream for symbol.
// onTick runs on the session's read goroutine, one tick at a time, in arrival
// order; it must not block for long.
func (s *Session) Subscribe(ctx context.Context, symbol string, onTick interfaces.TickHandler) error {
	if onTick == nil {
		return errors.New("subscribe: nil tick handler")
	}

	s.Unsubscribe(ctx)

	sub := &subscription{symbol: symbol, onTick: onTick}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	handle, err := s.requestTicks(ctx, symbol)
	if err != nil {
		s.mu.Lock()
		if s.sub == sub {
			s.sub = nil
		}
		s.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	s.mu.Lock()
	current := s.sub == sub
	if current {
		sub.handle = handle
	}
	s.mu.Unlock()

	if !current {
		// Replaced or torn down while the request was in flight.
		s.forget(ctx, handle)
		return nil
	}

	logger.Info(ctx, "Subscribed to ticks", "symbol", symbol, "subscription_id", handle)
	return nil
}

// Unsubscribe clears the local subscription and, when possible, asks the
// server to release it. Network errors are ignored.
func (s *Session) Unsubscribe(ctx context.Context) {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	open := s.conn != nil
	s.mu.Unlock()

	if sub == nil || sub.handle == "" || !open {
		return
	}
	s.forget(ctx, sub.handle)
	logger.Info(ctx, "Unsubscribed from ticks", "symbol", sub.symbol, "subscription_id", sub.handle)
}

// ActiveSubscription returns the symbol and server handle of the live stream.
func (s *Session) ActiveSubscription() (symbol, handle string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return "", "", false
	}
	return s.sub.symbol, s.sub.handle, true
}

func (s *Session) requestTicks(ctx context.Context, symbol string) (string, error) {
	resp, err := s.Send(ctx, Request{"ticks": symbol, "subscribe": 1})
	if err != nil {
		return "", err
	}
	handle := resp.Get("subscription.id").String()
	if handle == "" {
		return "", errors.New("reply carried no subscription id")
	}
	return handle, nil
}

func (s *Session) forget(ctx context.Context, handle string) {
	if _, err := s.Send(ctx, Request{"forget": handle}); err != nil {
		logger.Debug(ctx, "Forget request failed", "subscription_id", handle, "error", err)
	}
}

// resubscribe re-opens a stream kept across a reconnect.
func (s *Session) resubscribe(ctx context.Context, sub *subscription) {
	handle, err := s.requestTicks(ctx, sub.symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Resubscribe after reconnect failed", err, "symbol", sub.symbol)
		return
	}

	s.mu.Lock()
	current := s.sub == sub
	if current {
		sub.handle = handle
	}
	s.mu.Unlock()

	if !current {
		s.forget(ctx, handle)
		return
	}
	logger.Info(ctx, "Resubscribed to ticks", "symbol", sub.symbol, "subscription_id", handle)
}

func (s *Session) deliverTick(frame inboundFrame) {
	if frame.errObj.Exists() {
		return
	}
	tick := parseTick(frame.raw)

	s.mu.Lock()
	sub := s.sub
	var onTick interfaces.TickHandler
	if sub != nil && (sub.handle == "" || tick.SubscriptionID == "" || tick.SubscriptionID == sub.handle) {
		onTick = sub.onTick
	}
	s.mu.Unlock()

	if onTick != nil {
		onTick(tick)
	}
}

func parseTick(raw []byte) types.Tick {
	fields := gjson.GetManyBytes(raw,
		"tick.symbol", "tick.epoch", "tick.quote", "tick.bid", "tick.ask", "subscription.id", "tick.id")
	subID := fields[5].String()
	if subID == "" {
		subID = fields[6].String()
	}
	return types.Tick{
		Symbol:         fields[0].String(),
		Epoch:          fields[1].Int(),
		Quote:          fields[2].Float(),
		Bid:            fields[3].Float(),
		Ask:            fields[4].Float(),
		SubscriptionID: subID,
	}
}
