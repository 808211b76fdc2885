package deriv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeServer is a scripted stand-in for the Deriv websocket API.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	respond  func(c *serverConn, msg map[string]any)
	received []map[string]any
	conns    []*serverConn

	open atomic.Int32
}

type serverConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *serverConn) send(t *testing.T, frame any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(frame)
	if err != nil {
		t.Errorf("marshal frame: %v", err)
		return
	}
	_ = c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *serverConn) close() {
	_ = c.ws.Close()
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t}
	fs.respond = fs.defaultRespond
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) endpoint() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) setResponder(fn func(c *serverConn, msg map[string]any)) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.respond = fn
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &serverConn{ws: ws}

	fs.mu.Lock()
	fs.conns = append(fs.conns, c)
	fs.mu.Unlock()
	fs.open.Add(1)
	defer fs.open.Add(-1)
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		fs.mu.Lock()
		fs.received = append(fs.received, msg)
		respond := fs.respond
		fs.mu.Unlock()

		respond(c, msg)
	}
}

// defaultRespond authorizes any token with read scope and acknowledges ticks/forget.
func (fs *fakeServer) defaultRespond(c *serverConn, msg map[string]any) {
	reqID := msg["req_id"]
	switch {
	case msg["authorize"] != nil:
		c.send(fs.t, map[string]any{
			"msg_type":  "authorize",
			"req_id":    reqID,
			"authorize": map[string]any{"loginid": "CR100", "scopes": []string{"read", "trade"}},
		})
	case msg["ticks"] != nil:
		symbol := msg["ticks"].(string)
		c.send(fs.t, map[string]any{
			"msg_type":     "tick",
			"req_id":       reqID,
			"tick":         map[string]any{"symbol": symbol, "epoch": 1700000000, "quote": 100.0, "id": "sub-" + symbol},
			"subscription": map[string]any{"id": "sub-" + symbol},
		})
	case msg["forget"] != nil:
		c.send(fs.t, map[string]any{"msg_type": "forget", "req_id": reqID, "forget": 1})
	case msg["echo"] != nil:
		c.send(fs.t, map[string]any{"msg_type": "echo", "req_id": reqID, "echo": msg["echo"]})
	}
}

func (fs *fakeServer) messages() []map[string]any {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]map[string]any, len(fs.received))
	copy(out, fs.received)
	return out
}

func (fs *fakeServer) messagesWith(key string) []map[string]any {
	var out []map[string]any
	for _, m := range fs.messages() {
		if _, ok := m[key]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (fs *fakeServer) lastConn() *serverConn {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.conns) == 0 {
		return nil
	}
	return fs.conns[len(fs.conns)-1]
}

func (fs *fakeServer) connCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.conns)
}

func newTestSession(t *testing.T, fs *fakeServer, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(Config{
		Endpoint:       fs.endpoint(),
		AppID:          "1089",
		RequestTimeout: 2 * time.Second,
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Disconnect)
	return s
}

func connectTestSession(t *testing.T, fs *fakeServer, opts ...Option) *Session {
	t.Helper()
	s := newTestSession(t, fs, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx, "token-abc"))
	return s
}

// countingDialer tracks how many dialled sockets are still open on the client side.
type countingDialer struct {
	inner   Dialer
	live    atomic.Int32
	maxLive atomic.Int32
}

func (d *countingDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	c, err := d.inner.Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	n := d.live.Add(1)
	for {
		m := d.maxLive.Load()
		if n <= m || d.maxLive.CompareAndSwap(m, n) {
			break
		}
	}
	return &countedConn{Conn: c, d: d}, nil
}

type countedConn struct {
	Conn
	d    *countingDialer
	once sync.Once
}

func (c *countedConn) Close() error {
	c.once.Do(func() { c.d.live.Add(-1) })
	return c.Conn.Close()
}
