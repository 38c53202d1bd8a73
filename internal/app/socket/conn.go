package socket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"chatsync/internal/config"
	"chatsync/internal/core/contracts"

	"github.com/gorilla/websocket"
)

// WebSocket adapts a gorilla connection to contracts.Socket.
type WebSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pongWait     time.Duration
	wmu          sync.Mutex
	closeOnce    sync.Once
}

// NewWebSocket wraps conn. With a positive pongWait, a read fails once
// nothing (frame or pong) has arrived for that long, so a half-open peer
// surfaces as a read error.
func NewWebSocket(conn *websocket.Conn, writeTimeout, pongWait time.Duration) *WebSocket {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	w := &WebSocket{conn: conn, writeTimeout: writeTimeout, pongWait: pongWait}
	if pongWait > 0 {
		w.extendReadDeadline()
		conn.SetPongHandler(func(string) error {
			w.extendReadDeadline()
			return nil
		})
	}
	return w
}

func (w *WebSocket) extendReadDeadline() {
	if w.pongWait > 0 {
		_ = w.conn.SetReadDeadline(time.Now().Add(w.pongWait))
	}
}

// ReadMessage returns the next text or binary frame.
func (w *WebSocket) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		w.extendReadDeadline()
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *WebSocket) WriteMessage(data []byte) error {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocket) Ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeTimeout))
}

// Close sends a normal closure frame when possible and closes the socket.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = w.conn.Close()
	})
	return err
}

// IsUnexpectedClose reports whether err is anything but a clean shutdown.
func IsUnexpectedClose(err error) bool {
	if err == nil {
		return false
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	}
	return true
}

// Dialer opens gorilla websocket connections.
type Dialer struct {
	dialer       *websocket.Dialer
	readLimit    int64
	writeTimeout time.Duration
	pongWait     time.Duration
}

var _ contracts.Dialer = (*Dialer)(nil)

func NewDialer(cfg config.SocketConfig) *Dialer {
	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		readLimit:    cfg.ReadLimit,
		writeTimeout: cfg.WriteTimeout,
		pongWait:     pongWait(cfg),
	}
}

// pongWait only applies when the client pings; otherwise an idle but healthy
// connection would time out.
func pongWait(cfg config.SocketConfig) time.Duration {
	if cfg.PingInterval <= 0 {
		return 0
	}
	if cfg.PongWait > cfg.PingInterval {
		return cfg.PongWait
	}
	return 2 * cfg.PingInterval
}

func (d *Dialer) Dial(ctx context.Context, url string, header http.Header) (contracts.Socket, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			if resp.Body != nil {
				resp.Body.Close()
			}
			return nil, fmt.Errorf("websocket handshake %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}
	return NewWebSocket(conn, d.writeTimeout, d.pongWait), nil
}
