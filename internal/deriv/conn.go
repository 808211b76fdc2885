package deriv

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the part of *websocket.Conn the session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a socket to the API endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

type wsDialer struct {
	dialer *websocket.Dialer
}

// NewWebsocketDialer returns a Dialer backed by gorilla/websocket.
func NewWebsocketDialer(handshakeTimeout time.Duration) Dialer {
	return &wsDialer{dialer: &websocket.Dialer{
		Proxy:             websocket.DefaultDialer.Proxy,
		HandshakeTimeout:  handshakeTimeout,
		EnableCompression: true,
	}}
}

func (d *wsDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake failed with HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return conn, nil
}

func buildEndpoint(endpoint, appID string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if appID != "" {
		q := u.Query()
		q.Set("app_id", appID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
