// Package transport adapts raw connections to the message-oriented interface
// the client actor pumps. The two implementations differ only in framing:
// a 4-byte length prefix on TCP streams, one binary frame per message on
// WebSocket. Payload bytes are identical on both.
package transport

import "time"

// MessageConn is one framed connection. WriteMessage is safe for concurrent
// use; ReadMessage is not and belongs to a single reader goroutine.
type MessageConn interface {
	// ReadMessage returns the next payload.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one payload in a single frame.
	WriteMessage(payload []byte) error
	// SetReadDeadline bounds the next ReadMessage.
	SetReadDeadline(t time.Time) error
	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string
	// Close tears the connection down.
	Close() error
}
