package deriv

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"deriv-signal-bot/internal/logger"
)

type requestResult struct {
	resp *Response
	err  error
}

// pendingRequest is one in-flight correlation ID. done has room for exactly
// one result and is written only by whoever removed the entry from the table.
type pendingRequest struct {
	id   int64
	done chan requestResult
}

// Send writes req tagged with a fresh correlation ID and waits for the
// matching reply, the request timeout or ctx, whichever comes first.
func (s *Session) Send(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return nil, &TransportError{Op: "send", Err: ErrNotOpen}
	}
	conn := s.conn
	id := s.nextID
	s.nextID++
	p := &pendingRequest{id: id, done: make(chan requestResult, 1)}
	s.pending[id] = p
	s.mu.Unlock()

	frame, err := encodeRequest(id, req)
	if err != nil {
		s.release(id)
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if err := s.write(conn, frame); err != nil {
		if s.release(id) {
			return nil, &TransportError{Op: "write", Err: err}
		}
		// The socket was detached under us and the entry already rejected.
		res := <-p.done
		return res.resp, res.err
	}

	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case res := <-p.done:
		return res.resp, res.err
	case <-timer.C:
		if s.release(id) {
			logger.Debug(ctx, "Request timed out", "req_id", id)
			return nil, ErrRequestTimeout
		}
	case <-ctx.Done():
		if s.release(id) {
			return nil, ctx.Err()
		}
	}
	// Lost the race: the entry was resolved between the wake-up and release.
	res := <-p.done
	return res.resp, res.err
}

// release removes id from the pending table and reports whether it was still there.
func (s *Session) release(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

// resolve hands res to the waiter for id. A late reply for a released id is dropped.
func (s *Session) resolve(id int64, res requestResult) bool {
	s.mu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	p.done <- res
	return true
}

// PendingCount returns the number of requests awaiting a reply.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Session) write(conn Conn, frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// readLoop is the only reader of conn. Frames are dispatched in arrival order.
func (s *Session) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClosed(gen, err)
			return
		}
		s.dispatch(conn, data)
	}
}

func (s *Session) dispatch(conn Conn, data []byte) {
	frame, ok := peekFrame(data)
	if !ok {
		logger.Debug(context.Background(), "Ignoring malformed frame", "bytes", len(data))
		return
	}

	if frame.hasID && s.resolve(frame.reqID, frame.result()) {
		return
	}

	switch frame.msgType {
	case "tick":
		s.deliverTick(frame)
	case "ping":
		if err := s.write(conn, pongFrame); err != nil {
			logger.Debug(context.Background(), "Keep-alive reply failed", "error", err)
		}
	}
}
