package client

import (
	"context"
	"fmt"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/jam/src/types"
)

// Dialer opens the session socket.
type Dialer interface {
	Dial(ctx context.Context, url string) (types.Conn, error)
}

// WSDialer dials with fasthttp/websocket.
type WSDialer struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

// NewWSDialer creates a WSDialer.
func NewWSDialer(handshakeTimeout, writeTimeout time.Duration) *WSDialer {
	return &WSDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		writeTimeout: writeTimeout,
	}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (types.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{conn: conn, writeTimeout: d.writeTimeout}, nil
}

// wsConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (w *wsConn) WriteJSON(v any) error {
	if w.writeTimeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	return w.conn.WriteJSON(v)
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) Close() error { return w.conn.Close() }
