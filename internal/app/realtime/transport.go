/*
Package realtime contains the core logic of the realtime synchronization service.

This file defines the Transport and Session abstractions over the pub/sub
broker, and the production WebSocket implementation. Tests inject an in-memory
fake through the same interfaces.
*/
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"storesync/internal/app/event"
	"storesync/internal/pkg/errs"
	"storesync/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a Pong from the broker.
	pongWait = 60 * time.Second

	// frequency at which Ping messages are sent.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a broker frame.
	maxFrameSize = 65536
)

// Session is one live, authenticated broker connection.
type Session interface {
	// ReadFrame blocks until the next well-formed frame arrives. A returned
	// error means the session is lost.
	ReadFrame() (event.Frame, error)

	// WriteFrame sends one frame. Safe for concurrent callers.
	WriteFrame(frame event.Frame) error

	// Close tears the session down. Safe to call more than once.
	Close() error
}

// Transport dials broker sessions.
type Transport interface {
	Dial(ctx context.Context, brokerURL, token string) (Session, error)
}

// WebSocketTransport is the production Transport on gorilla/websocket.
// The bearer credential travels in the handshake's Authorization header; a
// 401 or 403 handshake rejection surfaces as an AuthFailure.
type WebSocketTransport struct {
	logger zerolog.Logger
}

// NewWebSocketTransport constructs the production transport.
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{logger: logx.Component("transport")}
}

// Dial implements Transport.
func (t *WebSocketTransport) Dial(ctx context.Context, brokerURL, token string) (Session, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, res, err := dialer.DialContext(ctx, brokerURL, header)
	if err != nil {
		if res != nil && (res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden) {
			t.logger.Warn().Int("status", res.StatusCode).Msg("Broker rejected credential during handshake.")
			return nil, errs.NewError(errs.ErrAuthFailure)
		}
		return nil, err
	}

	session := &wsSession{
		conn:   conn,
		done:   make(chan struct{}),
		logger: t.logger,
	}
	session.start()

	return session, nil
}

// wsSession wraps one gorilla connection with the single-writer discipline and
// the ping/pong heartbeat.
type wsSession struct {
	conn *websocket.Conn

	// writeMu serializes writers; gorilla permits only one concurrent writer.
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

// start arms the read deadline, the pong handler, and the ping ticker.
func (s *wsSession) start() {
	s.conn.SetReadLimit(maxFrameSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.pingLoop()
}

// pingLoop keeps the heartbeat going until the session closes.
func (s *wsSession) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()

			if err != nil {
				s.logger.Debug().Err(err).Msg("Ping write failed; read loop will observe the loss.")
				return
			}

		case <-s.done:
			return
		}
	}
}

// ReadFrame implements Session. Frames that are not valid JSON are logged and
// skipped so one malformed frame cannot take the session down.
func (s *wsSession) ReadFrame() (event.Frame, error) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Broker connection closed unexpectedly.")
			}
			return event.Frame{}, err
		}

		var frame event.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Warn().Err(err).Bytes("frame_bytes", raw).Msg("Broker sent invalid JSON frame. Dropping.")
			continue
		}

		return frame, nil
	}
}

// WriteFrame implements Session.
func (s *wsSession) WriteFrame(frame event.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return s.conn.WriteJSON(frame)
}

// Close implements Session.
func (s *wsSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
