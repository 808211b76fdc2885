package deriv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/types"
)

const latestCandleCount = 100

// marketCategories maps the categories offered to users onto the catalog's market field.
var marketCategories = map[string]string{
	"synthetic_indices": "synthetic_index",
	"forex":             "forex",
	"crypto":            "cryptocurrency",
	"stocks":            "stock",
}

// MarketCategories returns the category keys FetchSymbols accepts.
func MarketCategories() []string {
	keys := make([]string, 0, len(marketCategories))
	for k := range marketCategories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// requester is the part of Session the façade needs.
type requester interface {
	Send(ctx context.Context, req Request) (*Response, error)
	Authorized() bool
}

// MarketData exposes typed queries on top of an authorized session.
type MarketData struct {
	session requester
	catalog singleflight.Group
}

var _ interfaces.MarketData = (*MarketData)(nil)

func NewMarketData(session *Session) *MarketData {
	return &MarketData{session: session}
}

// ActiveSymbols returns the full instrument catalog. Concurrent callers share one request.
func (m *MarketData) ActiveSymbols(ctx context.Context) ([]types.Symbol, error) {
	if !m.session.Authorized() {
		return nil, ErrNotAuthenticated
	}

	// The shared request outlives any one caller's cancellation; Send still
	// bounds it with the session's request timeout.
	shared := context.WithoutCancel(ctx)
	ch := m.catalog.DoChan("active_symbols", func() (any, error) {
		resp, err := m.session.Send(shared, Request{"active_symbols": "brief", "product_type": "basic"})
		if err != nil {
			return nil, err
		}
		var reply struct {
			ActiveSymbols []types.Symbol `json:"active_symbols"`
		}
		if err := resp.Decode(&reply); err != nil {
			return nil, err
		}
		return reply.ActiveSymbols, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]types.Symbol), nil
	}
}

// FetchSymbols returns symbol ids whose market matches category.
func (m *MarketData) FetchSymbols(ctx context.Context, category string) ([]string, error) {
	market, ok := marketCategories[category]
	if !ok {
		return nil, fmt.Errorf("unknown market category %q", category)
	}

	all, err := m.ActiveSymbols(ctx)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(all))
	for _, s := range all {
		if s.Market == market {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

// FetchCandles returns candles ascending by epoch with duplicates removed.
// Without rng the latest 100 are requested; with rng only candles inside
// [rng.Start, rng.End] are returned.
func (m *MarketData) FetchCandles(ctx context.Context, symbol, timeframe string, rng *types.TimeRange) ([]types.Candle, error) {
	if !m.session.Authorized() {
		return nil, ErrNotAuthenticated
	}
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	req := Request{
		"ticks_history": symbol,
		"style":         "candles",
		"granularity":   tf.Granularity,
	}
	if rng == nil {
		req["end"] = "latest"
		req["count"] = latestCandleCount
	} else {
		if rng.End < rng.Start {
			return nil, fmt.Errorf("invalid range: end %d before start %d", rng.End, rng.Start)
		}
		req["start"] = rng.Start
		req["end"] = rng.End
	}

	resp, err := m.session.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	var reply struct {
		Candles []types.Candle `json:"candles"`
	}
	if err := resp.Decode(&reply); err != nil {
		return nil, err
	}
	return normalizeCandles(reply.Candles, rng), nil
}

func normalizeCandles(in []types.Candle, rng *types.TimeRange) []types.Candle {
	out := make([]types.Candle, 0, len(in))
	for _, c := range in {
		if rng != nil && (c.Epoch < rng.Start || c.Epoch > rng.End) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Epoch < out[j].Epoch })

	dedup := out[:0]
	for i, c := range out {
		if i > 0 && c.Epoch == out[i-1].Epoch {
			dedup[len(dedup)-1] = c
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

type mt5Account struct {
	AccountID   string `json:"account_id"`
	AccountType string `json:"account_type"`
	Platform    string `json:"platform"`
}

// ValidateAccountLogin checks that loginID is an MT5 account of the category
// implied by server. The password is not checked; the API cannot verify it.
func (m *MarketData) ValidateAccountLogin(ctx context.Context, loginID, server string) types.LoginValidation {
	if !m.session.Authorized() {
		return types.LoginValidation{Error: ErrNotAuthenticated.Error()}
	}

	resp, err := m.session.Send(ctx, Request{"trading_platform_accounts": 1, "platform": "mt5"})
	if err != nil {
		var serverErr *ServerError
		msg := err.Error()
		if errors.As(err, &serverErr) {
			msg = serverErr.Message
		}
		return types.LoginValidation{Error: "Validation failed: " + msg}
	}

	accountType := "real"
	if strings.Contains(strings.ToLower(server), "demo") {
		accountType = "demo"
	}

	var reply struct {
		Accounts []mt5Account `json:"trading_platform_accounts"`
	}
	if err := resp.Decode(&reply); err != nil {
		return types.LoginValidation{Error: "Validation failed: " + err.Error()}
	}

	for _, acc := range reply.Accounts {
		if acc.Platform == "mt5" && acc.AccountID == loginID && acc.AccountType == accountType {
			return types.LoginValidation{Valid: true}
		}
	}
	return types.LoginValidation{
		Error: fmt.Sprintf("MT5 Login '%s' for %s server not found on this Deriv account.", loginID, accountType),
	}
}
