// Package session runs one authenticated connection to an IM gateway:
// handshake, heartbeat, push delivery and request/response correlation.
package session

import (
	"context"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/omochice/openim-session/internal/config"
	"github.com/omochice/openim-session/internal/logger"
	"github.com/omochice/openim-session/internal/metrics"
	"github.com/omochice/openim-session/internal/transport"
	"github.com/omochice/openim-session/pkg/protocol"
	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

type outbound struct {
	frame  transport.Frame
	result chan error // optional, buffered
}

// Session is a single-use gateway session. Run drives it from Idle to
// Closed; Request may be called from any goroutine while it is Running.
type Session struct {
	supplier config.Supplier
	dialer   transport.Dialer
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// set by Run before the state becomes Running
	cfg         config.Session
	operationID string
	outbound    chan outbound
	dispatch    *dispatcher

	state   atomic.Int32
	msgIncr atomic.Uint64
	pending *pendingTable
	dedup   *Dedup
	sink    MessageSink
	events  chan Event

	closeOnce sync.Once

	mu        sync.Mutex
	cancel    context.CancelFunc
	triggered bool
	reason    CloseReason
	cause     error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = logger.OrNop(l) }
}

// WithMetrics sets the collectors. The default registers on a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock overrides the clock used for operationID.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates an idle session. sink receives deduplicated pushed messages.
func New(supplier config.Supplier, dialer transport.Dialer, sink MessageSink, opts ...Option) *Session {
	s := &Session{
		supplier: supplier,
		dialer:   dialer,
		sink:     sink,
		log:      zap.NewNop(),
		now:      time.Now,
		pending:  newPendingTable(),
		events:   make(chan Event, 4),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	if s.sink == nil {
		s.sink = MessageSinkFunc(func(string, *sdkws.MsgData, bool) {})
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.SessionState.Set(float64(st))
	s.log.Debug("session state", zap.Stringer("state", st))
}

// Events returns the event stream. It is closed after EventClosed.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Reason returns why the session closed. Meaningful once State is Closed.
func (s *Session) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// OperationID returns the trace ID sent with the connection and every request.
func (s *Session) OperationID() string {
	if s.State() < StateHandshaking {
		return ""
	}
	return s.operationID
}

// Close asks the session to shut down. Safe to call more than once and
// before Run.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.trigger(CloseNormal, nil)
	})
}

// trigger records the first close reason and cancels the run context.
func (s *Session) trigger(reason CloseReason, cause error) {
	s.mu.Lock()
	if !s.triggered {
		s.triggered = true
		s.reason = reason
		s.cause = cause
	}
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// fail closes with TransportFailed unless the session is already stopping.
func (s *Session) fail(ctx context.Context, op string, err error) {
	if ctx.Err() != nil {
		s.trigger(CloseNormal, nil)
		return
	}
	s.trigger(CloseTransportFailed, &TransportError{Op: op, Err: err})
}

func (s *Session) emit(e Event) {
	s.events <- e
}

// Run connects, performs the handshake and serves the session until it
// closes. It returns nil for normal, kicked and logged-out closes, a
// *HandshakeRejectedError on rejection, and an error matching
// ErrTransportFailed on transport failure.
func (s *Session) Run(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return ErrAlreadyStarted
	}
	s.setState(StateConnecting)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	triggered := s.triggered
	s.mu.Unlock()
	if triggered {
		cancel()
	}

	conn, ok := s.connect(runCtx)
	if !ok {
		return s.finish(nil, false)
	}
	if !s.handshake(runCtx, conn) {
		return s.finish(conn, false)
	}

	s.setState(StateRunning)
	s.emit(Event{Kind: EventConnected})
	s.log.Info("session running",
		zap.String("userID", s.cfg.UserID),
		zap.String("operationID", s.operationID),
		zap.String("remote", conn.RemoteAddr()))

	var wg sync.WaitGroup
	wg.Add(2)
	writerDone := make(chan struct{})
	go func() {
		defer wg.Done()
		s.readLoop(runCtx, conn)
	}()
	go func() {
		defer close(writerDone)
		s.writeLoop(runCtx, conn)
	}()
	go func() {
		defer wg.Done()
		if err := runHeartbeat(runCtx, s.cfg.HeartbeatInterval, s.ping); err != nil {
			s.log.Warn("heartbeat stopped", zap.Error(err))
			s.fail(runCtx, "heartbeat", err)
		}
	}()

	<-runCtx.Done()
	s.trigger(CloseNormal, nil)
	s.setState(StateClosing)

	// the close frame goes out after whatever the writer flushes
	<-writerDone
	err := conn.Close()
	wg.Wait()
	if err != nil {
		s.log.Debug("close transport", zap.Error(err))
	}
	return s.finish(nil, true)
}

func (s *Session) connect(ctx context.Context) (transport.Conn, bool) {
	cfg, err := s.supplier.SessionConfig()
	if err != nil {
		s.trigger(CloseTransportFailed, &TransportError{Op: "config", Err: err})
		return nil, false
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = config.Default().HeartbeatInterval
	}
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = config.Default().OutboundBuffer
	}
	s.cfg = cfg
	s.operationID = strconv.FormatInt(s.now().UnixMilli(), 10)
	s.outbound = make(chan outbound, cfg.OutboundBuffer)
	s.dedup = NewDedup(cfg.DedupCapacity)
	s.log = s.log.With(zap.String("userID", cfg.UserID), zap.String("operationID", s.operationID))
	s.dispatch = &dispatcher{
		pending:  s.pending,
		dedup:    s.dedup,
		sink:     s.sink,
		metrics:  s.metrics,
		log:      s.log,
		maxFrame: cfg.MaxFrameSize,
	}

	dialCtx := ctx
	if cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.HandshakeTimeout)
		defer cancel()
	}
	conn, err := s.dialer.Dial(dialCtx, cfg.URL(s.operationID))
	if err != nil {
		s.fail(ctx, "dial", err)
		return nil, false
	}
	return conn, true
}

func (s *Session) handshake(ctx context.Context, conn transport.Conn) bool {
	s.setState(StateHandshaking)

	hsCtx := ctx
	if s.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
		defer cancel()
	}
	f, err := conn.ReadFrame(hsCtx)
	if err != nil {
		s.fail(ctx, "handshake", err)
		return false
	}
	s.metrics.FramesReceived.WithLabelValues(f.Kind.String()).Inc()

	hs, err := protocol.DecodeHandshake(f.Data)
	if err != nil {
		s.fail(ctx, "handshake", err)
		return false
	}
	if !hs.OK() {
		s.log.Warn("handshake rejected",
			zap.Int32("errCode", hs.ErrCode),
			zap.String("errMsg", hs.ErrMsg),
			zap.String("errDlt", hs.ErrDlt))
		s.trigger(CloseHandshakeRejected, &HandshakeRejectedError{Code: hs.ErrCode, Msg: hs.ErrMsg, Detail: hs.ErrDlt})
		return false
	}
	return true
}

// finish performs the Closing → Closed steps shared by every exit path.
func (s *Session) finish(conn transport.Conn, running bool) error {
	if conn != nil {
		_ = conn.Close()
	}
	if n := s.pending.failAll(ErrSessionClosed); n > 0 {
		s.log.Debug("failed pending requests", zap.Int("count", n))
	}
	if s.dedup != nil {
		s.dedup.Clear()
	}

	s.mu.Lock()
	if !s.triggered {
		s.triggered = true
		s.reason = CloseNormal
	}
	reason, cause := s.reason, s.cause
	s.mu.Unlock()

	s.setState(StateClosed)
	s.emit(Event{Kind: EventClosed, Reason: reason, Err: cause})
	close(s.events)

	fields := []zap.Field{zap.Stringer("reason", reason), zap.Bool("wasRunning", running)}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	s.log.Info("session closed", fields...)

	switch reason {
	case CloseHandshakeRejected, CloseTransportFailed:
		return cause
	default:
		return nil
	}
}

func (s *Session) readLoop(ctx context.Context, conn transport.Conn) {
	for {
		f, err := conn.ReadFrame(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, transport.ErrPeerClosed), errors.Is(err, io.EOF):
				s.log.Info("gateway closed connection", zap.Error(err))
				s.trigger(CloseNormal, nil)
			default:
				s.fail(ctx, "read", err)
			}
			return
		}

		reason, closing := s.dispatch.handle(f)
		if !closing {
			continue
		}
		switch reason {
		case CloseKicked:
			s.emit(Event{Kind: EventKicked})
		case CloseLoggedOut:
			s.emit(Event{Kind: EventLoggedOut})
		}
		s.trigger(reason, nil)
		return
	}
}

// writeLoop is the only writer of data and ping frames. On shutdown it
// flushes what is already queued before returning.
func (s *Session) writeLoop(ctx context.Context, conn transport.Conn) {
	for {
		select {
		case <-ctx.Done():
			s.drain(conn)
			return
		case item := <-s.outbound:
			err := conn.WriteFrame(ctx, item.frame)
			if item.result != nil {
				item.result <- err
			}
			if err != nil {
				if ctx.Err() != nil {
					s.drain(conn)
					return
				}
				s.log.Warn("write failed", zap.Stringer("kind", item.frame.Kind), zap.Error(err))
				s.fail(ctx, "write", err)
				return
			}
		}
	}
}

// drain writes the data frames still queued, within one write timeout.
// Pings are dropped. Nothing is flushed after a transport failure.
func (s *Session) drain(conn transport.Conn) {
	s.mu.Lock()
	failed := s.reason == CloseTransportFailed
	s.mu.Unlock()

	timeout := s.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	flushed := 0
	for {
		select {
		case item := <-s.outbound:
			if failed || item.frame.Kind == transport.FramePing {
				if item.result != nil {
					item.result <- ErrSessionClosed
				}
				continue
			}
			err := conn.WriteFrame(ctx, item.frame)
			if item.result != nil {
				item.result <- err
			}
			if err != nil {
				s.log.Debug("stopped flushing outbound queue", zap.Int("flushed", flushed), zap.Error(err))
				failed = true
				continue
			}
			flushed++
		default:
			if flushed > 0 {
				s.log.Debug("flushed outbound queue", zap.Int("frames", flushed))
			}
			return
		}
	}
}

func (s *Session) ping(ctx context.Context) error {
	result := make(chan error, 1)
	select {
	case s.outbound <- outbound{frame: transport.Frame{Kind: transport.FramePing}, result: result}:
	case <-ctx.Done():
		return nil
	}

	select {
	case err := <-result:
		if err == nil {
			s.metrics.HeartbeatsSent.Inc()
		}
		return err
	case <-ctx.Done():
		return nil
	}
}
