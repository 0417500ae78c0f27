package response

import (
	"bytes"
	"io"
	"io/ioutil"

	"github.com/pkg/errors"
)

// StreamHandle is a lease on a pooled connection. It carries the
// bytes read past the response head in a window buffer and hands out
// at most one body reader per response.
type StreamHandle struct {
	conn        io.ReadWriteCloser
	destination string
	state       HandleState

	buf         []byte
	windowStart int
	windowEnd   int
}

func NewStreamHandle(
	conn io.ReadWriteCloser,
	destination string,
) *StreamHandle {
	return &StreamHandle{
		conn:        conn,
		destination: destination,
		state:       HandleStateOpen,
	}
}

func (s *StreamHandle) Destination() string {
	return s.destination
}

func (s *StreamHandle) State() HandleState {
	return s.state
}

// SetWindow hands over bytes that were read ahead of the body. They
// are served to the body reader before reading the connection again.
func (s *StreamHandle) SetWindow(buf []byte) {
	s.buf = buf
	s.windowStart = 0
	s.windowEnd = len(buf)
}

// Read serves window bytes first, then the connection. Used while
// the handle is open, the body reader takes over afterwards.
func (s *StreamHandle) Read(p []byte) (int, error) {
	if s.windowStart < s.windowEnd {
		n := copy(p, s.buf[s.windowStart:s.windowEnd])
		s.windowStart += n
		return n, nil
	}
	return s.conn.Read(p)
}

func (s *StreamHandle) Write(p []byte) (int, error) {
	if s.state != HandleStateOpen {
		return 0, errors.Wrapf(ErrHandleNotOpen, "write in state %s", s.state)
	}
	return s.conn.Write(p)
}

// Close tears down the underlying connection. Terminal, repeated
// calls have no effect.
func (s *StreamHandle) Close() error {
	if s.state == HandleStateClosed {
		return nil
	}
	s.state = HandleStateClosed
	s.buf = nil
	s.windowStart = 0
	s.windowEnd = 0
	return s.conn.Close()
}

// Reset re-arms a released handle for the next request on the same
// connection.
func (s *StreamHandle) Reset() error {
	if s.state != HandleStateReleased {
		return errors.Wrapf(ErrHandleNotOpen, "reset in state %s", s.state)
	}
	s.state = HandleStateOpen
	s.buf = nil
	s.windowStart = 0
	s.windowEnd = 0
	return nil
}

// claimBody hands out the single body reader. The window is reset,
// its bytes now belong to the returned reader, which continues
// reading from the connection. Limited to contentLength when known.
func (s *StreamHandle) claimBody(contentLength int64) (io.ReadCloser, error) {
	if s.state != HandleStateOpen {
		return nil, errors.Wrapf(ErrHandleNotOpen, "body claim in state %s", s.state)
	}
	s.state = HandleStateCloned
	window := s.buf[s.windowStart:s.windowEnd]
	s.buf = nil
	s.windowStart = 0
	s.windowEnd = 0
	var reader io.Reader = io.MultiReader(bytes.NewReader(window), s.conn)
	if contentLength >= 0 {
		reader = io.LimitReader(reader, contentLength)
	}
	return ioutil.NopCloser(reader), nil
}

func (s *StreamHandle) markReleased() {
	s.state = HandleStateReleased
}
