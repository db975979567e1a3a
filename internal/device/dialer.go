package device

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	webSocketReadBufferSize  = 8192 * 2
	webSocketWriteBufferSize = 512
	defaultHandshakeTimeout  = 10 * time.Second
)

// Conn is a message-oriented device connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens device connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the device over a plain binary WebSocket with no
// subprotocol.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	// ReadLimit caps the size of an inbound message; zero means no limit.
	ReadLimit int64
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		ReadBufferSize:   webSocketReadBufferSize,
		WriteBufferSize:  webSocketWriteBufferSize,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}

	return conn, nil
}
