// Package transport defines the bidirectional frame stream a session runs on.
package transport

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// FrameKind identifies a websocket frame type.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
	FramePing
	FrameClose
)

// String returns the string representation of FrameKind
func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FramePing:
		return "ping"
	case FrameClose:
		return "close"
	default:
		return "unknown"
	}
}

// Frame is a single websocket message.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Conn abstracts a client websocket connection.
// Implementations answer server pings themselves and treat every inbound
// frame, pongs included, as a sign of life when enforcing the read timeout.
type Conn interface {
	// ReadFrame returns the next text or binary frame.
	// An orderly close from the peer is reported as a *CloseError.
	ReadFrame(ctx context.Context) (Frame, error)

	// WriteFrame sends a data, ping or close frame. Only one goroutine may
	// write data frames at a time.
	WriteFrame(ctx context.Context, f Frame) error

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens a Conn to a websocket URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// ErrPeerClosed matches any *CloseError.
var ErrPeerClosed = errors.New("peer closed connection")

// CloseError reports a close frame received from the peer.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("peer closed connection: %d %s", e.Code, e.Text)
}

// Is makes errors.Is(err, ErrPeerClosed) true for close frames.
func (e *CloseError) Is(target error) bool {
	return target == ErrPeerClosed
}

// StatusAbnormalClosure is reported by libraries when the stream ended
// without a close frame; it is a failure, not an orderly close.
const StatusAbnormalClosure = 1006
