package deriv

import (
	"errors"
	"fmt"
)

var (
	ErrNotOpen           = errors.New("WebSocket is not open.")
	ErrRequestTimeout    = errors.New("Request timed out.")
	ErrConnectionClosing = errors.New("Connection closing.")
	ErrConnectionLost    = errors.New("Connection lost.")
	ErrNotAuthenticated  = errors.New("Deriv API is not connected or authenticated.")
	ErrMissingReadScope  = errors.New("Authorization failed: Your API Key is missing the required 'Read' permissions.")
)

// TransportError is a socket-level failure. The session recovers from these by
// reconnecting once it has been authorized.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("deriv %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthorizationError is fatal for the session; it is never retried.
type AuthorizationError struct {
	Err error
}

func (e *AuthorizationError) Error() string {
	return e.Err.Error()
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// ServerError is an error payload returned in reply to a request.
type ServerError struct {
	Code    string
	Message string
	MsgType string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("deriv %s rejected: %s", e.MsgType, e.Code)
	}
	return e.Message
}
