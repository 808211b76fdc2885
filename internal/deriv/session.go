package deriv

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"deriv-signal-bot/internal/logger"
)

const (
	DefaultEndpoint       = "wss://ws.binaryws.com/websockets/v3"
	DefaultAppID          = "1089"
	defaultRequestTimeout = 10 * time.Second
	defaultWriteTimeout   = 10 * time.Second
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// StateListener is told about every state transition. reason is empty for
// ordinary transitions and carries the error text otherwise.
type StateListener func(state State, reason string)

type Config struct {
	Endpoint          string
	AppID             string
	RequestTimeout    time.Duration
	WriteTimeout      time.Duration
	MaxReconnectDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = defaultMaxReconnDelay
	}
}

type Option func(*Session)

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithStateListener registers a listener at construction time.
func WithStateListener(l StateListener) Option {
	return func(s *Session) { s.listeners = append(s.listeners, l) }
}

// Session owns the single socket to the API. It authenticates once per socket,
// multiplexes requests over it, routes tick pushes to one handler and
// reconnects with backoff after losing an authorized connection.
type Session struct {
	cfg      Config
	endpoint string
	dialer   Dialer
	delay    func(attempt int) time.Duration

	connectMu sync.Mutex // serializes Connect
	writeMu   sync.Mutex // one concurrent writer per socket

	mu             sync.Mutex
	state          State
	conn           Conn
	gen            uint64 // bumped whenever a socket is dropped; stale callbacks compare against it
	credential     string
	authorized     bool
	retrying       bool
	attempts       int
	reconnectTimer *time.Timer
	nextID         int64
	pending        map[int64]*pendingRequest
	sub            *subscription
	listeners      []StateListener
}

func NewSession(cfg Config, opts ...Option) (*Session, error) {
	cfg.applyDefaults()
	endpoint, err := buildEndpoint(cfg.Endpoint, cfg.AppID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		endpoint: endpoint,
		state:    StateDisconnected,
		nextID:   1,
		pending:  make(map[int64]*pendingRequest),
	}
	s.delay = func(attempt int) time.Duration { return ReconnectDelay(attempt, cfg.MaxReconnectDelay) }
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = NewWebsocketDialer(cfg.RequestTimeout)
	}
	return s, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authorized reports whether the current socket has completed authorization.
func (s *Session) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorized
}

func (s *Session) OnStateChange(l StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Connect opens a socket and authorizes it with credential. Any existing
// socket is torn down first. A failure here leaves the session in StateError
// and is not retried.
func (s *Session) Connect(ctx context.Context, credential string) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.Disconnect()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	notify := s.setStateLocked(StateConnecting, "")
	s.mu.Unlock()
	notify()

	logger.Info(ctx, "Connecting to Deriv API", "endpoint", s.cfg.Endpoint, "app_id", s.cfg.AppID)
	return s.establish(ctx, gen, credential, false)
}

// Disconnect closes the socket on purpose: no reconnect follows, pending
// requests fail with ErrConnectionClosing, correlation IDs restart at 1 and
// the subscription is dropped. Calling it again is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected && s.conn == nil && s.reconnectTimer == nil {
		s.mu.Unlock()
		return
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.retrying = false
	s.attempts = 0
	conn := s.detachLocked(ErrConnectionClosing)
	s.nextID = 1
	s.sub = nil
	s.credential = ""
	notify := s.setStateLocked(StateDisconnected, "")
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	notify()
	logger.Info(context.Background(), "Disconnected from Deriv API")
}

// establish dials, starts the read loop and authorizes. gen identifies this
// attempt; if the session moved on while we were blocked the new socket is
// closed and ErrConnectionClosing returned.
func (s *Session) establish(ctx context.Context, gen uint64, credential string, reconnecting bool) error {
	conn, err := s.dialer.Dial(ctx, s.endpoint)
	if err != nil {
		return s.connectFailed(ctx, gen, &TransportError{Op: "dial", Err: err}, reconnecting)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = conn.Close()
		return &TransportError{Op: "dial", Err: ErrConnectionClosing}
	}
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(conn, gen)

	if err := s.authorize(ctx, credential); err != nil {
		return s.connectFailed(ctx, gen, err, reconnecting)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return &TransportError{Op: "authorize", Err: ErrConnectionClosing}
	}
	s.authorized = true
	s.credential = credential
	s.attempts = 0
	s.retrying = false
	var resub *subscription
	if reconnecting && s.sub != nil {
		resub = s.sub
	}
	notify := s.setStateLocked(StateConnected, "")
	s.mu.Unlock()
	notify()

	logger.Info(ctx, "Deriv API authorized", "reconnect", reconnecting)

	if resub != nil {
		s.resubscribe(ctx, resub)
	}
	return nil
}

func (s *Session) authorize(ctx context.Context, credential string) error {
	resp, err := s.Send(ctx, Request{"authorize": credential})
	if err != nil {
		var serverErr *ServerError
		if errors.As(err, &serverErr) {
			return &AuthorizationError{Err: fmt.Errorf("Authorization failed: %w", serverErr)}
		}
		return err
	}

	for _, scope := range resp.Get("authorize.scopes").Array() {
		if scope.String() == "read" {
			return nil
		}
	}
	return &AuthorizationError{Err: ErrMissingReadScope}
}

// connectFailed decides what a failed connect attempt means. Authorization
// failures and failures of a caller's own Connect are terminal; transport
// failures inside a reconnect cycle schedule the next attempt.
func (s *Session) connectFailed(ctx context.Context, gen uint64, cause error, reconnecting bool) error {
	var authErr *AuthorizationError
	fatal := errors.As(cause, &authErr) || !reconnecting

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return cause
	}
	conn := s.detachLocked(ErrConnectionLost)
	var notify func()
	if fatal {
		s.retrying = false
		s.attempts = 0
		s.credential = ""
		notify = s.setStateLocked(StateError, cause.Error())
	} else {
		notify = s.scheduleReconnectLocked(cause.Error())
	}
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	notify()

	if fatal {
		logger.ErrorWithErr(ctx, "Deriv API connection failed", cause)
	}
	return cause
}

// handleClosed runs when the read loop of socket gen ends.
func (s *Session) handleClosed(gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	live := s.state == StateConnected || s.retrying
	conn := s.detachLocked(ErrConnectionLost)
	var notify func()
	if live {
		if s.sub != nil {
			s.sub.handle = ""
		}
		notify = s.scheduleReconnectLocked(cause.Error())
	} else {
		notify = s.setStateLocked(StateError, cause.Error())
	}
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	notify()
}

// scheduleReconnectLocked must be called with s.mu held and no socket attached.
func (s *Session) scheduleReconnectLocked(reason string) func() {
	s.attempts++
	s.retrying = true
	attempt := s.attempts
	delay := s.delay(attempt)
	gen := s.gen

	s.reconnectTimer = time.AfterFunc(delay, func() { s.reconnect(gen) })

	notify := s.setStateLocked(StateReconnecting, reason)
	return func() {
		logger.Warn(context.Background(), "Deriv API connection lost, reconnecting",
			"attempt", attempt,
			"delay", delay.String(),
			"reason", reason,
		)
		notify()
	}
}

func (s *Session) reconnect(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || !s.retrying {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = nil
	credential := s.credential
	notify := s.setStateLocked(StateConnecting, "")
	s.mu.Unlock()
	notify()

	ctx, cancel := context.WithTimeout(context.Background(), 2*s.cfg.RequestTimeout)
	defer cancel()
	if err := s.establish(ctx, gen, credential, true); err != nil {
		logger.Warn(ctx, "Reconnect attempt failed", "error", err)
	}
}

// detachLocked drops the current socket: it invalidates callbacks tied to the
// old generation and fails every pending request with reason. The caller
// closes the returned Conn after releasing s.mu.
func (s *Session) detachLocked(reason error) Conn {
	s.gen++
	conn := s.conn
	s.conn = nil
	s.authorized = false
	for id, p := range s.pending {
		delete(s.pending, id)
		p.done <- requestResult{err: &TransportError{Op: "request", Err: reason}}
	}
	return conn
}

func (s *Session) setStateLocked(state State, reason string) func() {
	s.state = state
	listeners := slices.Clone(s.listeners)
	return func() {
		for _, l := range listeners {
			l(state, reason)
		}
	}
}
