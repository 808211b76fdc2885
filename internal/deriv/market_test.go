package deriv

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv-signal-bot/internal/types"
)

// stubRequester answers requests from a function instead of a socket.
type stubRequester struct {
	mu         sync.Mutex
	authorized bool
	requests   []Request
	reply      func(req Request) (any, error)
}

func (r *stubRequester) Authorized() bool { return r.authorized }

func (r *stubRequester) Send(_ context.Context, req Request) (*Response, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	v, err := r.reply(req)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Response{Raw: raw}, nil
}

func newStubMarket(reply func(req Request) (any, error)) (*MarketData, *stubRequester) {
	stub := &stubRequester{authorized: true, reply: reply}
	return &MarketData{session: stub}, stub
}

func catalogReply(Request) (any, error) {
	return map[string]any{
		"msg_type": "active_symbols",
		"active_symbols": []map[string]any{
			{"symbol": "R_100", "display_name": "Volatility 100 Index", "market": "synthetic_index"},
			{"symbol": "frxEURUSD", "display_name": "EUR/USD", "market": "forex"},
			{"symbol": "cryBTCUSD", "display_name": "BTC/USD", "market": "cryptocurrency"},
			{"symbol": "R_50", "display_name": "Volatility 50 Index", "market": "synthetic_index"},
		},
	}, nil
}

func TestFetchSymbolsFiltersByCategory(t *testing.T) {
	md, stub := newStubMarket(catalogReply)

	symbols, err := md.FetchSymbols(context.Background(), "synthetic_indices")
	require.NoError(t, err)
	assert.Equal(t, []string{"R_100", "R_50"}, symbols)

	crypto, err := md.FetchSymbols(context.Background(), "crypto")
	require.NoError(t, err)
	assert.Equal(t, []string{"cryBTCUSD"}, crypto)

	stocks, err := md.FetchSymbols(context.Background(), "stocks")
	require.NoError(t, err)
	assert.Empty(t, stocks)

	require.NotEmpty(t, stub.requests)
	assert.Equal(t, "brief", stub.requests[0]["active_symbols"])
	assert.Equal(t, "basic", stub.requests[0]["product_type"])
}

func TestFetchSymbolsRequiresAuthorization(t *testing.T) {
	md, stub := newStubMarket(catalogReply)
	stub.authorized = false

	_, err := md.FetchSymbols(context.Background(), "forex")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, "Deriv API is not connected or authenticated.", err.Error())
	assert.Empty(t, stub.requests)
}

func TestFetchSymbolsPropagatesServerError(t *testing.T) {
	md, _ := newStubMarket(func(Request) (any, error) {
		return nil, &ServerError{Code: "RateLimit", Message: "You have reached the rate limit."}
	})

	_, err := md.FetchSymbols(context.Background(), "forex")
	assert.EqualError(t, err, "You have reached the rate limit.")
}

func TestFetchSymbolsUnknownCategory(t *testing.T) {
	md, _ := newStubMarket(catalogReply)
	_, err := md.FetchSymbols(context.Background(), "bonds")
	assert.Error(t, err)
}

func TestFetchCandlesLatest(t *testing.T) {
	md, stub := newStubMarket(func(Request) (any, error) {
		return map[string]any{
			"msg_type": "candles",
			"candles": []map[string]any{
				{"epoch": 180, "open": 3, "high": 4, "low": 2, "close": 3.5},
				{"epoch": 60, "open": 1, "high": 2, "low": 0.5, "close": 1.5},
				{"epoch": 120, "open": 2, "high": 3, "low": 1, "close": 2.5},
				{"epoch": 120, "open": 2, "high": 3.1, "low": 1, "close": 2.6},
			},
		}, nil
	})

	candles, err := md.FetchCandles(context.Background(), "R_100", "M1", nil)
	require.NoError(t, err)

	require.Len(t, candles, 3)
	assert.Equal(t, []int64{60, 120, 180}, []int64{candles[0].Epoch, candles[1].Epoch, candles[2].Epoch})
	assert.Equal(t, 2.6, candles[1].Close)

	req := stub.requests[0]
	assert.Equal(t, "R_100", req["ticks_history"])
	assert.Equal(t, "candles", req["style"])
	assert.Equal(t, int64(60), req["granularity"])
	assert.Equal(t, "latest", req["end"])
	assert.Equal(t, latestCandleCount, req["count"])
	assert.NotContains(t, req, "start")
}

func TestFetchCandlesRangeIsInclusive(t *testing.T) {
	md, stub := newStubMarket(func(Request) (any, error) {
		return map[string]any{
			"candles": []map[string]any{
				{"epoch": 3540, "open": 1, "high": 1, "low": 1, "close": 1},
				{"epoch": 3600, "open": 2, "high": 2, "low": 2, "close": 2},
				{"epoch": 7200, "open": 3, "high": 3, "low": 3, "close": 3},
				{"epoch": 10800, "open": 4, "high": 4, "low": 4, "close": 4},
			},
		}, nil
	})

	rng := &types.TimeRange{Start: 3600, End: 7200}
	candles, err := md.FetchCandles(context.Background(), "R_50", "1h", rng)
	require.NoError(t, err)

	require.Len(t, candles, 2)
	assert.Equal(t, int64(3600), candles[0].Epoch)
	assert.Equal(t, int64(7200), candles[1].Epoch)

	req := stub.requests[0]
	assert.Equal(t, int64(3600), req["granularity"])
	assert.Equal(t, int64(3600), req["start"])
	assert.Equal(t, int64(7200), req["end"])
	assert.NotContains(t, req, "count")
}

func TestFetchCandlesRejectsBadInput(t *testing.T) {
	md, stub := newStubMarket(func(Request) (any, error) { return map[string]any{}, nil })

	_, err := md.FetchCandles(context.Background(), "R_50", "M2", nil)
	assert.Error(t, err)

	_, err = md.FetchCandles(context.Background(), "R_50", "M1", &types.TimeRange{Start: 10, End: 5})
	assert.Error(t, err)
	assert.Empty(t, stub.requests)
}

func TestFetchCandlesServerError(t *testing.T) {
	md, _ := newStubMarket(func(Request) (any, error) {
		return nil, &ServerError{Code: "InvalidSymbol", Message: "Symbol R_999 is invalid.", MsgType: "candles"}
	})

	_, err := md.FetchCandles(context.Background(), "R_999", "M1", nil)
	assert.EqualError(t, err, "Symbol R_999 is invalid.")
}

func mt5Reply(Request) (any, error) {
	return map[string]any{
		"trading_platform_accounts": []map[string]any{
			{"account_id": "MTD1001", "account_type": "demo", "platform": "mt5"},
			{"account_id": "MTR2002", "account_type": "real", "platform": "mt5"},
			{"account_id": "DX3003", "account_type": "real", "platform": "dxtrade"},
		},
	}, nil
}

func TestValidateAccountLogin(t *testing.T) {
	md, stub := newStubMarket(mt5Reply)
	ctx := context.Background()

	assert.True(t, md.ValidateAccountLogin(ctx, "MTD1001", "Deriv-Demo").Valid)
	assert.True(t, md.ValidateAccountLogin(ctx, "MTR2002", "Deriv-Server-02").Valid)

	res := md.ValidateAccountLogin(ctx, "MTD1001", "Deriv-Server")
	assert.False(t, res.Valid)
	assert.Equal(t, "MT5 Login 'MTD1001' for real server not found on this Deriv account.", res.Error)

	res = md.ValidateAccountLogin(ctx, "DX3003", "Deriv-Server")
	assert.False(t, res.Valid)

	assert.Equal(t, 1, stub.requests[0]["trading_platform_accounts"])
	assert.Equal(t, "mt5", stub.requests[0]["platform"])
}

func TestValidateAccountLoginFailures(t *testing.T) {
	md, stub := newStubMarket(mt5Reply)
	stub.authorized = false

	res := md.ValidateAccountLogin(context.Background(), "MTD1001", "Deriv-Demo")
	assert.False(t, res.Valid)
	assert.Equal(t, "Deriv API is not connected or authenticated.", res.Error)

	md, _ = newStubMarket(func(Request) (any, error) {
		return nil, &ServerError{Code: "PermissionDenied", Message: "Permission denied."}
	})
	res = md.ValidateAccountLogin(context.Background(), "MTD1001", "Deriv-Demo")
	assert.False(t, res.Valid)
	assert.Equal(t, "Validation failed: Permission denied.", res.Error)
}

func TestMarketDataOverSession(t *testing.T) {
	fs := newFakeServer(t)
	s := connectTestSession(t, fs)
	fs.setResponder(func(c *serverConn, msg map[string]any) {
		if msg["ticks_history"] != nil {
			c.send(t, map[string]any{
				"msg_type": "candles",
				"req_id":   msg["req_id"],
				"candles": []map[string]any{
					{"epoch": 60, "open": 1, "high": 2, "low": 0.5, "close": 1.5},
					{"epoch": 120, "open": 1.5, "high": 2.5, "low": 1, "close": 2},
				},
			})
			return
		}
		fs.defaultRespond(c, msg)
	})

	md := NewMarketData(s)
	candles, err := md.FetchCandles(context.Background(), "R_100", "M1", nil)
	require.NoError(t, err)
	assert.Len(t, candles, 2)

	s.Disconnect()
	_, err = md.FetchCandles(context.Background(), "R_100", "M1", nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestActiveSymbolsSurvivesFirstCallerCancel(t *testing.T) {
	release := make(chan struct{})
	m, stub := newStubMarket(func(req Request) (any, error) {
		<-release
		return catalogReply(req)
	})
	requests := func() int {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return len(stub.requests)
	}

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := m.ActiveSymbols(ctx1)
		first <- err
	}()
	require.Eventually(t, func() bool { return requests() == 1 }, time.Second, time.Millisecond)

	type result struct {
		symbols []types.Symbol
		err     error
	}
	second := make(chan result, 1)
	go func() {
		syms, err := m.ActiveSymbols(context.Background())
		second <- result{syms, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel1()
	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	select {
	case r := <-second:
		require.NoError(t, r.err)
		assert.Len(t, r.symbols, 4)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, 1, requests())
}
