package deriv

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv-signal-bot/internal/types"
)

func TestConnectAuthorizes(t *testing.T) {
	fs := newFakeServer(t)
	s := connectTestSession(t, fs)

	assert.Equal(t, StateConnected, s.State())
	assert.True(t, s.Authorized())

	auth := fs.messagesWith("authorize")
	require.Len(t, auth, 1)
	assert.Equal(t, "token-abc", auth[0]["authorize"])
	assert.EqualValues(t, 1, auth[0]["req_id"])
}

func TestConnectMissingReadScope(t *testing.T) {
	fs := newFakeServer(t)
	fs.setResponder(func(c *serverConn, msg map[string]any) {
		c.send(t, map[string]any{
			"msg_type":  "authorize",
			"req_id":    msg["req_id"],
			"authorize": map[string]any{"scopes": []string{"trade"}},
		})
	})
	s := newTestSession(t, fs)

	err := s.Connect(context.Background(), "token-abc")
	require.Error(t, err)

	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, ErrMissingReadScope)
	assert.Equal(t, "Authorization failed: Your API Key is missing the required 'Read' permissions.", err.Error())
	assert.Equal(t, StateError, s.State())
	assert.False(t, s.Authorized())

	// No retry after an authorization failure.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, fs.connCount())
	assert.Equal(t, StateError, s.State())
}

func TestConnectRejectedToken(t *testing.T) {
	fs := newFakeServer(t)
	fs.setResponder(func(c *serverConn, msg map[string]any) {
		c.send(t, map[string]any{
			"msg_type": "authorize",
			"req_id":   msg["req_id"],
			"error":    map[string]any{"code": "InvalidToken", "message": "The token is invalid."},
		})
	})
	s := newTestSession(t, fs)

	err := s.Connect(context.Background(), "bad")

	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "InvalidToken", serverErr.Code)
	assert.Contains(t, err.Error(), "The token is invalid.")
	assert.Equal(t, StateError, s.State())
}

func TestConnectDialFailureIsTerminal(t *testing.T) {
	s, err := NewSession(Config{Endpoint: "ws://127.0.0.1:1", RequestTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(s.Disconnect)

	err = s.Connect(context.Background(), "token")

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "dial", transportErr.Op)
	assert.Equal(t, StateError, s.State())
}

func TestSendWhileDisconnectedFailsFast(t *testing.T) {
	fs := newFakeServer(t)
	s := newTestSession(t, fs)

	start := time.Now()
	_, err := s.Send(context.Background(), Request{"echo": 1})

	assert.ErrorIs(t, err, ErrNotOpen)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRepliesResolvedByCorrelationID(t *testing.T) {
	fs := newFakeServer(t)
	s := connectTestSession(t, fs)

	// Hold the first echo until the second arrives, then answer in reverse order.
	var (
		mu   sync.Mutex
		held []map[string]any
	)
	fs.setResponder(func(c *serverConn, msg map[string]any) {
		if msg["echo"] == nil {
			fs.defaultRespond(c, msg)
			return
		}
		mu.Lock()
		held = append(held, msg)
		ready := len(held) == 2
		mu.Unlock()
		if !ready {
			return
		}
		for i := len(held) - 1; i >= 0; i-- {
			c.send(t, map[string]any{"msg_type": "echo", "req_id": held[i]["req_id"], "echo": held[i]["echo"]})
		}
	})

	ctx := context.Background()
	type result struct {
		echo  string
		reqID int64
		err   error
	}
	results := make(chan result, 2)
	for _, v := range []string{"first", "second"} {
		go func(v string) {
			resp, err := s.Send(ctx, Request{"echo": v})
			if err != nil {
				results <- result{err: err}
				return
			}
			results <- result{echo: resp.Get("echo").String(), reqID: resp.ReqID}
		}(v)
		time.Sleep(20 * time.Millisecond)
	}

	got := map[string]int64{}
	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		got[r.echo] = r.reqID
	}
	require.Len(t, got, 2)
	assert.NotEqual(t, got["first"], got["second"])

	for _, m := range fs.messagesWith("echo") {
		assert.EqualValues(t, got[m["echo"].(string)], m["req_id"])
	}
}

func TestLateReplyAfterTimeoutIsDropped(t *testing.T) {
	fs := newFakeServer(t)
	s, err := NewSession(Config{Endpoint: fs.endpoint(), RequestTimeout: 150 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(s.Disconnect)
	require.NoError(t, s.Connect(context.Background(), "token"))

	fs.setResponder(func(c *serverConn, msg map[string]any) {
		if msg["echo"] == "slow" {
			go func() {
				time.Sleep(300 * time.Millisecond)
				c.send(t, map[string]any{"msg_type": "echo", "req_id": msg["req_id"], "echo": "slow"})
			}()
			return
		}
		fs.defaultRespond(c, msg)
	})

	_, err = s.Send(context.Background(), Request{"echo": "slow"})
	require.ErrorIs(t, err, ErrRequestTimeout)
	assert.Equal(t, "Request timed out.", err.Error())
	assert.Equal(t, 0, s.PendingCount())

	// Let the late reply arrive; it must not resolve the next request.
	time.Sleep(250 * time.Millisecond)
	resp, err := s.Send(context.Background(), Request{"echo": "fast"})
	require.NoError(t, err)
	assert.Equal(t, "fast", resp.Get("echo").String())
	assert.Equal(t, 0, s.PendingCount())
	assert.Equal(t, StateConnected, s.State())
}

func TestDisconnectRejectsPendingAndResetsIDs(t *testing.T) {
	fs := newFakeServer(t)
	s := connectTestSession(t, fs)

	fs.setResponder(func(c *serverConn, msg map[string]any) {
		if msg["echo"] != nil {
			return // never answered
		}
		fs.defaultRespond(c, msg)
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), Request{"echo": "hang"})
		errCh <- err
	}()
	require.Eventually(t, func() bool { return s.PendingCount() == 1 }, time.Second, 5*time.Millisecond)

	s.Disconnect()
	s.Disconnect()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionClosing)
	case <-time.After(time.Second):
		t.Fatal("pending request was not rejected on disconnect")
	}
	assert.Equal(t, StateDisconnected, s.State())

	_, err := s.Send(context.Background(), Request{"echo": 1})
	assert.ErrorIs(t, err, ErrNotOpen)

	fs.setResponder(fs.defaultRespond)
	require.NoError(t, s.Connect(context.Background(), "token"))
	auth := fs.messagesWith("authorize")
	require.Len(t, auth, 2)
	assert.EqualValues(t, 1, auth[1]["req_id"])
}

func TestPingAnsweredWithPong(t *testing.T) {
	fs := newFakeServer(t)
	connectTestSession(t, fs)

	fs.lastConn().send(t, map[string]any{"msg_type": "ping", "ping": "pong"})

	require.Eventually(t, func() bool {
		return len(fs.messagesWith("pong")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMalformedFramesIgnored(t *testing.T) {
	fs := newFakeServer(t)
	s := connectTestSession(t, fs)

	c := fs.lastConn()
	c.mu.Lock()
	_ = c.ws.WriteMessage(websocket.TextMessage, []byte("{not json"))
	c.mu.Unlock()
	c.send(t, map[string]any{"msg_type": "echo", "req_id": 999, "echo": "orphan"})

	resp, err := s.Send(context.Background(), Request{"echo": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Get("echo").String())
	assert.Equal(t, StateConnected, s.State())
}

func TestReconnectAfterUnexpectedClose(t *testing.T) {
	fs := newFakeServer(t)

	var (
		mu     sync.Mutex
		states []State
	)
	s := newTestSession(t, fs, WithStateListener(func(st State, _ string) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	}))
	var attempts []int
	s.setDelayForTest(func(attempt int) time.Duration {
		mu.Lock()
		attempts = append(attempts, attempt)
		mu.Unlock()
		return 10 * time.Millisecond
	})
	require.NoError(t, s.Connect(context.Background(), "token-abc"))

	ticks := make(chan float64, 4)
	require.NoError(t, s.Subscribe(context.Background(), "R_100", func(tk types.Tick) { ticks <- tk.Quote }))

	fs.lastConn().close()

	require.Eventually(t, func() bool {
		return fs.connCount() == 2 && s.State() == StateConnected
	}, 2*time.Second, 5*time.Millisecond)

	// Same credential reused, subscription re-established on the new socket.
	auth := fs.messagesWith("authorize")
	require.Len(t, auth, 2)
	assert.Equal(t, "token-abc", auth[1]["authorize"])
	require.Eventually(t, func() bool {
		return len(fs.messagesWith("ticks")) == 2
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, handle, ok := s.ActiveSubscription()
		return ok && handle == "sub-R_100"
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1}, attempts)
	assert.Contains(t, states, StateReconnecting)
	assert.Equal(t, StateConnected, states[len(states)-1])
	assert.Equal(t, 0, s.attemptsForTest())
}

func TestReconnectBacksOffWhileServerUnavailable(t *testing.T) {
	fs := newFakeServer(t)
	dialer := &flakyDialer{inner: NewWebsocketDialer(time.Second)}
	s := newTestSession(t, fs, WithDialer(dialer))

	var (
		mu       sync.Mutex
		attempts []int
	)
	s.setDelayForTest(func(attempt int) time.Duration {
		mu.Lock()
		attempts = append(attempts, attempt)
		mu.Unlock()
		return 5 * time.Millisecond
	})
	require.NoError(t, s.Connect(context.Background(), "token"))

	dialer.failNext(3)
	fs.lastConn().close()

	require.Eventually(t, func() bool { return s.State() == StateConnected && fs.connCount() == 2 },
		2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4}, attempts)
	assert.Equal(t, 0, s.attemptsForTest())
}

func TestReauthorizationFailureStopsReconnecting(t *testing.T) {
	fs := newFakeServer(t)
	var authCount atomic.Int32
	fs.setResponder(func(c *serverConn, msg map[string]any) {
		if msg["authorize"] != nil && authCount.Add(1) > 1 {
			c.send(t, map[string]any{
				"msg_type": "authorize",
				"req_id":   msg["req_id"],
				"error":    map[string]any{"code": "InvalidToken", "message": "The token is invalid."},
			})
			return
		}
		fs.defaultRespond(c, msg)
	})

	s := newTestSession(t, fs)
	s.setDelayForTest(func(int) time.Duration { return 5 * time.Millisecond })
	require.NoError(t, s.Connect(context.Background(), "token-abc"))
	assert.Equal(t, "token-abc", s.credentialForTest())

	fs.lastConn().close()

	require.Eventually(t, func() bool { return s.State() == StateError }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, fs.connCount())

	// Terminal: no further dials, attempts reset, credential forgotten.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, fs.connCount())
	assert.Equal(t, StateError, s.State())
	assert.False(t, s.Authorized())
	assert.Equal(t, 0, s.attemptsForTest())
	assert.Empty(t, s.credentialForTest())
	assert.EqualValues(t, 2, authCount.Load())
}

func TestDisconnectCancelsScheduledReconnect(t *testing.T) {
	fs := newFakeServer(t)
	s := connectTestSession(t, fs)
	s.setDelayForTest(func(int) time.Duration { return 100 * time.Millisecond })

	fs.lastConn().close()
	require.Eventually(t, func() bool { return s.State() == StateReconnecting }, time.Second, 5*time.Millisecond)

	s.Disconnect()
	time.Sleep(250 * time.Millisecond)

	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, 1, fs.connCount())
}

func TestRapidConnectDisconnectLeavesNoSockets(t *testing.T) {
	fs := newFakeServer(t)
	dialer := &countingDialer{inner: NewWebsocketDialer(time.Second)}
	s := newTestSession(t, fs, WithDialer(dialer))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Connect(context.Background(), "token")
		}()
		go func() {
			defer wg.Done()
			s.Disconnect()
		}()
	}
	wg.Wait()
	s.Disconnect()

	assert.LessOrEqual(t, dialer.maxLive.Load(), int32(1))
	assert.Equal(t, int32(0), dialer.live.Load())
	require.Eventually(t, func() bool { return fs.open.Load() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestConnectWhileConnectedReplacesSocket(t *testing.T) {
	fs := newFakeServer(t)
	dialer := &countingDialer{inner: NewWebsocketDialer(time.Second)}
	s := connectTestSession(t, fs, WithDialer(dialer))

	require.NoError(t, s.Connect(context.Background(), "token-2"))

	assert.Equal(t, int32(1), dialer.live.Load())
	assert.Equal(t, int32(1), dialer.maxLive.Load())
	assert.Equal(t, 2, fs.connCount())
	require.Eventually(t, func() bool { return fs.open.Load() == 1 }, time.Second, 5*time.Millisecond)
}

// flakyDialer fails a configurable number of dials before delegating.
type flakyDialer struct {
	inner Dialer
	mu    sync.Mutex
	fails int
}

func (d *flakyDialer) failNext(n int) {
	d.mu.Lock()
	d.fails = n
	d.mu.Unlock()
}

func (d *flakyDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	if d.fails > 0 {
		d.fails--
		d.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	d.mu.Unlock()
	return d.inner.Dial(ctx, endpoint)
}

func (s *Session) attemptsForTest() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Session) credentialForTest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

func (s *Session) setDelayForTest(fn func(int) time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = fn
}
