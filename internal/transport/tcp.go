package transport

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/halma/sternd/internal/protocol"
)

// StreamConn frames messages over a byte stream with a big-endian u32
// length prefix.
type StreamConn struct {
	conn net.Conn
	r    *protocol.FrameReader

	mu sync.Mutex
	w  *protocol.FrameWriter
}

// NewStreamConn wraps a stream connection. maxFrame <= 0 selects the
// protocol default cap.
func NewStreamConn(conn net.Conn, maxFrame int) *StreamConn {
	return &StreamConn{
		conn: conn,
		r:    protocol.NewFrameReader(bufio.NewReader(conn), maxFrame),
		w:    protocol.NewFrameWriter(conn, maxFrame),
	}
}

func (c *StreamConn) ReadMessage() ([]byte, error) {
	return c.r.ReadFrame()
}

func (c *StreamConn) WriteMessage(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.WriteFrame(payload)
}

func (c *StreamConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *StreamConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

func (c *StreamConn) Close() error {
	return c.conn.Close()
}
