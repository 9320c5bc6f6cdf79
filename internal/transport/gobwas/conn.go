// Package gobwas implements transport.Conn on github.com/gobwas/ws, working
// at the frame level so control frames are handled by this package.
package gobwas

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/pkg/errors"

	"github.com/omochice/openim-session/internal/transport"
)

// Options tunes deadlines and limits of a connection.
type Options struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	// ReadLimit caps the size of a single inbound message; 0 means no limit.
	ReadLimit int64
}

// ErrReadLimit is returned when an inbound message exceeds Options.ReadLimit.
var ErrReadLimit = errors.New("websocket: read limit exceeded")

// Dialer dials gateway connections.
type Dialer struct {
	opts   Options
	dialer ws.Dialer
}

// NewDialer creates a Dialer with the given options.
func NewDialer(opts Options) *Dialer {
	return &Dialer{
		opts:   opts,
		dialer: ws.Dialer{Timeout: opts.HandshakeTimeout},
	}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	conn, br, _, err := d.dialer.Dial(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to server")
	}
	return NewConn(conn, br, d.opts), nil
}

// Conn is a client-side websocket connection over a raw net.Conn.
type Conn struct {
	conn      net.Conn
	src       io.Reader
	opts      Options
	wmu       sync.Mutex
	closeOnce sync.Once
}

// NewConn wraps an upgraded connection. br holds bytes the dialer buffered
// past the handshake and may be nil.
func NewConn(conn net.Conn, br *bufio.Reader, opts Options) *Conn {
	c := &Conn{conn: conn, src: conn, opts: opts}
	if br != nil {
		c.src = br
	}
	return c
}

// ReadFrame implements transport.Conn.
func (c *Conn) ReadFrame(ctx context.Context) (transport.Frame, error) {
	if err := c.conn.SetReadDeadline(transport.Deadline(ctx, c.opts.ReadTimeout)); err != nil {
		return transport.Frame{}, errors.Wrap(err, "failed to set read deadline")
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	// text payloads are handed to the codec as-is, as gorilla does
	rd := wsutil.Reader{
		Source:         c.src,
		State:          ws.StateClientSide,
		OnIntermediate: c.handleControl,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return transport.Frame{}, errors.Wrap(err, "failed to read frame")
		}
		c.extendReadDeadline()

		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, &rd); err != nil {
				return transport.Frame{}, err
			}
			continue
		}
		if hdr.OpCode != ws.OpText && hdr.OpCode != ws.OpBinary {
			if err := rd.Discard(); err != nil {
				return transport.Frame{}, errors.Wrap(err, "failed to discard frame")
			}
			continue
		}

		data, err := c.readPayload(hdr, &rd)
		if err != nil {
			return transport.Frame{}, err
		}
		kind := transport.FrameBinary
		if hdr.OpCode == ws.OpText {
			kind = transport.FrameText
		}
		return transport.Frame{Kind: kind, Data: data}, nil
	}
}

func (c *Conn) readPayload(hdr ws.Header, rd *wsutil.Reader) ([]byte, error) {
	limit := c.opts.ReadLimit
	if limit <= 0 {
		data, err := io.ReadAll(rd)
		return data, errors.Wrap(err, "failed to read frame payload")
	}
	if hdr.Length > limit {
		c.closeTooBig()
		return nil, errors.Wrapf(ErrReadLimit, "frame of %d bytes", hdr.Length)
	}
	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read frame payload")
	}
	if int64(len(data)) > limit {
		c.closeTooBig()
		return nil, errors.Wrapf(ErrReadLimit, "message over %d bytes", limit)
	}
	return data, nil
}

func (c *Conn) closeTooBig() {
	body := ws.NewCloseFrameBody(ws.StatusMessageTooBig, "")
	_ = c.writeMessage(ws.OpClose, body, time.Now().Add(time.Second))
}

// handleControl answers pings, and turns a close frame into a CloseError
// after echoing it back.
func (c *Conn) handleControl(hdr ws.Header, r io.Reader) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "failed to read control frame")
	}

	switch hdr.OpCode {
	case ws.OpPing:
		return c.writeMessage(ws.OpPong, payload, time.Now().Add(c.writeTimeout()))
	case ws.OpPong:
		return nil
	case ws.OpClose:
		code, reason := ws.ParseCloseFrameData(payload)
		if code == 0 {
			code = ws.StatusNoStatusRcvd
		}
		reply := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = c.writeMessage(ws.OpClose, reply, time.Now().Add(time.Second))
		return &transport.CloseError{Code: int(code), Text: reason}
	}
	return nil
}

func (c *Conn) extendReadDeadline() {
	if c.opts.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
}

func (c *Conn) writeTimeout() time.Duration {
	if c.opts.WriteTimeout > 0 {
		return c.opts.WriteTimeout
	}
	return 10 * time.Second
}

// writeMessage serializes whole frames; pong replies from the reader and
// data from the writer share the socket.
func (c *Conn) writeMessage(op ws.OpCode, payload []byte, deadline time.Time) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return wsutil.WriteClientMessage(c.conn, op, payload)
}

// WriteFrame implements transport.Conn.
func (c *Conn) WriteFrame(ctx context.Context, f transport.Frame) error {
	var op ws.OpCode
	payload := f.Data
	switch f.Kind {
	case transport.FrameText:
		op = ws.OpText
	case transport.FrameBinary:
		op = ws.OpBinary
	case transport.FramePing:
		op = ws.OpPing
	case transport.FrameClose:
		op = ws.OpClose
		payload = ws.NewCloseFrameBody(ws.StatusNormalClosure, string(f.Data))
	default:
		return errors.Errorf("unsupported frame kind %s", f.Kind)
	}

	if err := c.writeMessage(op, payload, transport.Deadline(ctx, c.writeTimeout())); err != nil {
		return errors.Wrapf(err, "failed to send %s frame", f.Kind)
	}
	return nil
}

// Close sends a normal close frame and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = c.writeMessage(ws.OpClose, body, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
