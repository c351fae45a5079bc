package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Stream framing: a 4-byte big-endian unsigned length followed by the CBOR
// payload. The length cap protects the server from untrusted sizes; a frame
// above it is rejected before any payload allocation happens.

// DefaultMaxFrameBytes caps a single frame at 1 MiB unless configured
// otherwise.
const DefaultMaxFrameBytes = 1 << 20

// frameHeaderLen is the size of the length prefix.
const frameHeaderLen = 4

// ErrFrameTooLarge is returned when a frame length exceeds the configured cap.
var ErrFrameTooLarge = errors.New("frame exceeds maximum length")

// ErrUnexpectedFrameKind is returned by the WebSocket transport when a peer
// sends a non-binary data frame.
var ErrUnexpectedFrameKind = errors.New("unexpected frame kind")

// FrameReader decodes length-prefixed frames from a byte stream.
type FrameReader struct {
	r   io.Reader
	max int
}

// NewFrameReader wraps r with a frame decoder. max <= 0 selects
// DefaultMaxFrameBytes.
func NewFrameReader(r io.Reader, max int) *FrameReader {
	if max <= 0 {
		max = DefaultMaxFrameBytes
	}
	return &FrameReader{r: r, max: max}
}

// ReadFrame reads the next payload. io.EOF is returned unwrapped when the
// stream ends cleanly on a frame boundary.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(fr.r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if int64(length) > int64(fr.max) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, fr.max)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// FrameWriter encodes length-prefixed frames onto a byte stream.
type FrameWriter struct {
	w   io.Writer
	max int
}

// NewFrameWriter wraps w with a frame encoder. max <= 0 selects
// DefaultMaxFrameBytes.
func NewFrameWriter(w io.Writer, max int) *FrameWriter {
	if max <= 0 {
		max = DefaultMaxFrameBytes
	}
	return &FrameWriter{w: w, max: max}
}

// WriteFrame writes one payload with its length prefix in a single Write
// call so frames are never interleaved by concurrent writers upstream.
func (fw *FrameWriter) WriteFrame(payload []byte) error {
	if len(payload) > fw.max {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), fw.max)
	}

	buf := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderLen:], payload)

	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}
