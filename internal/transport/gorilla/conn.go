// Package gorilla implements transport.Conn on github.com/gorilla/websocket.
package gorilla

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/omochice/openim-session/internal/transport"
)

// Options tunes deadlines of a connection.
type Options struct {
	// ReadTimeout is the dead-peer timeout. Every inbound frame or pong
	// pushes it forward.
	ReadTimeout time.Duration
	// WriteTimeout bounds each write.
	WriteTimeout time.Duration
	// ReadLimit caps the size of a single inbound message; 0 means no limit.
	ReadLimit int64
	// HandshakeTimeout bounds the HTTP upgrade.
	HandshakeTimeout time.Duration
}

// Dialer dials gateway connections.
type Dialer struct {
	opts   Options
	dialer *websocket.Dialer
}

// NewDialer creates a Dialer with the given options.
func NewDialer(opts Options) *Dialer {
	return &Dialer{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "failed to connect to server (http %d)", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "failed to connect to server")
	}
	return NewConn(ws, d.opts), nil
}

// Conn adapts a gorilla websocket.Conn to transport.Conn.
type Conn struct {
	conn      *websocket.Conn
	opts      Options
	closeOnce sync.Once
}

// NewConn wraps an established websocket connection.
func NewConn(ws *websocket.Conn, opts Options) *Conn {
	c := &Conn{conn: ws, opts: opts}
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	}
	ws.SetPongHandler(func(string) error {
		return c.extendReadDeadline()
	})
	ws.SetPingHandler(func(appData string) error {
		_ = c.extendReadDeadline()
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout()))
		if err == websocket.ErrCloseSent {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})
	return c
}

func (c *Conn) writeTimeout() time.Duration {
	if c.opts.WriteTimeout > 0 {
		return c.opts.WriteTimeout
	}
	return 10 * time.Second
}

func (c *Conn) extendReadDeadline() error {
	if c.opts.ReadTimeout <= 0 {
		return nil
	}
	return c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
}

// ReadFrame implements transport.Conn.
func (c *Conn) ReadFrame(ctx context.Context) (transport.Frame, error) {
	if err := c.conn.SetReadDeadline(transport.Deadline(ctx, c.opts.ReadTimeout)); err != nil {
		return transport.Frame{}, errors.Wrap(err, "failed to set read deadline")
	}
	// gorilla reads cannot observe ctx; expire the deadline on cancellation.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		return transport.Frame{}, classify(err)
	}
	kind := transport.FrameBinary
	if mt == websocket.TextMessage {
		kind = transport.FrameText
	}
	return transport.Frame{Kind: kind, Data: data}, nil
}

// WriteFrame implements transport.Conn.
func (c *Conn) WriteFrame(ctx context.Context, f transport.Frame) error {
	deadline := transport.Deadline(ctx, c.writeTimeout())

	var err error
	switch f.Kind {
	case transport.FramePing:
		err = c.conn.WriteControl(websocket.PingMessage, f.Data, deadline)
	case transport.FrameClose:
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(f.Data))
		err = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	case transport.FrameText, transport.FrameBinary:
		mt := websocket.BinaryMessage
		if f.Kind == transport.FrameText {
			mt = websocket.TextMessage
		}
		if err = c.conn.SetWriteDeadline(deadline); err == nil {
			err = c.conn.WriteMessage(mt, f.Data)
		}
	default:
		return errors.Errorf("unsupported frame kind %s", f.Kind)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to send %s frame", f.Kind)
	}
	return nil
}

// Close sends a normal close frame and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func classify(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		return &transport.CloseError{Code: ce.Code, Text: ce.Text}
	}
	return errors.Wrap(err, "failed to read frame")
}
