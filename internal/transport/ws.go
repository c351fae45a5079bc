package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/halma/sternd/internal/protocol"
)

// WebSocketConn carries one CBOR payload per binary frame. Control frames
// (ping/pong/close) are the library's business; a data frame that is not
// binary is a protocol error.
type WebSocketConn struct {
	conn *websocket.Conn

	mu sync.Mutex
}

// NewWebSocketConn wraps an upgraded connection. maxFrame <= 0 selects the
// protocol default cap.
func NewWebSocketConn(conn *websocket.Conn, maxFrame int) *WebSocketConn {
	if maxFrame <= 0 {
		maxFrame = protocol.DefaultMaxFrameBytes
	}
	conn.SetReadLimit(int64(maxFrame))
	return &WebSocketConn{conn: conn}
}

func (c *WebSocketConn) ReadMessage() ([]byte, error) {
	kind, payload, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: websocket message type %d", protocol.ErrUnexpectedFrameKind, kind)
	}
	return payload, nil
}

func (c *WebSocketConn) WriteMessage(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, payload)
}

func (c *WebSocketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *WebSocketConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

func (c *WebSocketConn) Close() error {
	return c.conn.Close()
}
