// Package mockgateway is an in-process IM gateway speaking the client
// protocol. It backs end-to-end tests and local development.
package mockgateway

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/omochice/openim-session/internal/logger"
	"github.com/omochice/openim-session/pkg/protocol"
	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

// Handshake error codes.
const (
	ErrCodeArgs         int32 = 1001
	ErrCodeTokenInvalid int32 = 1501
	ErrCodeUnsupported  int32 = 1004
)

var requiredParams = []string{
	"token", "sendID", "platformID", "operationID",
	"compression", "isBackground", "isMsgResp", "sdkType",
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Options configures a Server.
type Options struct {
	// Tokens maps userID to the only token accepted for it. Users not in
	// the map are accepted with any non-empty token.
	Tokens map[string]string
	Logger *zap.Logger
}

type client struct {
	conn     *websocket.Conn
	userID   string
	gzip     bool
	outgoing chan []byte
}

// Server is a fake gateway.
type Server struct {
	address  string
	opts     Options
	log      *zap.Logger
	listener net.Listener
	server   *http.Server
	clients  map[*client]bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	store    *store
	pings    atomic.Int64
	requests atomic.Int64
}

// New creates a Server that will listen on address.
func New(address string, opts Options) *Server {
	return &Server{
		address: address,
		opts:    opts,
		log:     logger.OrNop(opts.Logger),
		clients: make(map[*client]bool),
		store:   newStore(),
	}
}

// Handler returns the websocket endpoint, for use with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	return mux
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return errors.Wrap(err, "failed to start gateway")
	}
	s.listener = listener
	s.server = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	s.log.Info("gateway started", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("gateway stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop closes the listener and every client connection.
func (s *Server) Stop() {
	if s.server != nil {
		s.server.Close()
	}

	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// URL returns the websocket base URL clients should dial.
func (s *Server) URL() string {
	return "ws://" + s.Addr()
}

// ClientCount returns the number of sessions that passed the handshake.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// PingCount returns how many client pings were received.
func (s *Server) PingCount() int64 { return s.pings.Load() }

// RequestCount returns how many request envelopes were received.
func (s *Server) RequestCount() int64 { return s.requests.Load() }

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	q := r.URL.Query()
	hs := s.authenticate(q.Get("sendID"), q.Get("token"))
	for _, key := range requiredParams {
		if !q.Has(key) {
			hs = &protocol.Handshake{ErrCode: ErrCodeArgs, ErrMsg: "ArgsError", ErrDlt: "missing query parameter " + key}
			break
		}
	}

	raw, err := hs.Encode()
	if err != nil {
		conn.Close()
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil || !hs.OK() {
		s.log.Info("handshake refused", zap.String("sendID", q.Get("sendID")), zap.String("errDlt", hs.ErrDlt))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, hs.ErrMsg),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	c := &client{
		conn:     conn,
		userID:   q.Get("sendID"),
		gzip:     q.Get("compression") == "gzip",
		outgoing: make(chan []byte, 64),
	}
	conn.SetPingHandler(func(appData string) error {
		s.pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	s.log.Info("client connected", zap.String("userID", c.userID), zap.String("operationID", q.Get("operationID")))

	s.wg.Add(1)
	go s.handleClient(c)
}

func (s *Server) authenticate(userID, token string) *protocol.Handshake {
	if token == "" {
		return &protocol.Handshake{ErrCode: ErrCodeTokenInvalid, ErrMsg: "token invalid", ErrDlt: "empty token"}
	}
	if want, ok := s.opts.Tokens[userID]; ok && want != token {
		return &protocol.Handshake{ErrCode: ErrCodeTokenInvalid, ErrMsg: "token invalid", ErrDlt: "token mismatch"}
	}
	return &protocol.Handshake{}
}

func (s *Server) handleClient(c *client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		close(c.outgoing)
		c.conn.Close()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for data := range c.outgoing {
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				s.log.Debug("failed to send to client", zap.Error(err))
				return
			}
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket error", zap.Error(err))
			}
			return
		}

		env := &protocol.Envelope{}
		if err := env.Decode(data); err != nil {
			s.log.Warn("failed to decode request", zap.Error(err))
			continue
		}
		s.requests.Add(1)
		s.handleRequest(c, env)
	}
}

// send queues a frame without blocking the caller.
func (s *Server) send(c *client, env *protocol.Envelope, compress bool) bool {
	raw, err := env.Encode()
	if err != nil {
		return false
	}
	if compress {
		if raw, err = protocol.Deflate(raw); err != nil {
			return false
		}
	}
	select {
	case c.outgoing <- raw:
		return true
	default:
		s.log.Warn("client queue full, dropping frame", zap.String("userID", c.userID))
		return false
	}
}

func (s *Server) reply(c *client, req *protocol.Envelope, code int32, msg string, data []byte) {
	s.send(c, &protocol.Envelope{
		ReqIdentifier: req.ReqIdentifier,
		SendID:        req.SendID,
		OperationID:   req.OperationID,
		MsgIncr:       req.MsgIncr,
		ErrCode:       code,
		ErrMsg:        msg,
		Data:          data,
	}, false)
}

func (s *Server) handleRequest(c *client, req *protocol.Envelope) {
	switch req.ReqIdentifier {
	case protocol.WSGetNewestSeq:
		resp := &sdkws.GetMaxSeqResp{MaxSeqs: s.store.maxSeqs()}
		s.reply(c, req, 0, "", resp.Marshal())

	case protocol.WSSendMsg:
		msg := &sdkws.MsgData{}
		if err := msg.Unmarshal(req.Data); err != nil {
			s.reply(c, req, ErrCodeArgs, "invalid message", nil)
			return
		}
		convID, batch := s.accept(msg)
		ack := &sdkws.SendMsgResp{ServerMsgID: msg.ServerMsgID, ClientMsgID: msg.ClientMsgID, SendTime: msg.SendTime}
		s.reply(c, req, 0, "", ack.Marshal())
		s.fanOut(msg, convID, batch)

	case protocol.WSPullMsgBySeqList:
		in := &sdkws.PullMessageBySeqsReq{}
		if err := in.Unmarshal(req.Data); err != nil {
			s.reply(c, req, ErrCodeArgs, "invalid pull request", nil)
			return
		}
		resp := &sdkws.PullMessageBySeqsResp{}
		for _, r := range in.SeqRanges {
			entry := &sdkws.ConversationMsgs{ConversationID: r.ConversationID}
			entry.Msgs = s.store.rangeOf(r.ConversationID, r.Begin, r.End, r.Num)
			entry.IsEnd = true
			resp.Msgs = append(resp.Msgs, entry)
		}
		s.reply(c, req, 0, "", resp.Marshal())

	case protocol.WSGetConvMaxReadSeq:
		in := &sdkws.ConversationsReq{}
		if err := in.Unmarshal(req.Data); err != nil {
			s.reply(c, req, ErrCodeArgs, "invalid conversations request", nil)
			return
		}
		resp := &sdkws.ConvMaxReadSeqResp{Seqs: make(map[string]sdkws.Seqs)}
		for id, seq := range s.filter(s.store.maxSeqs(), in.ConversationIDs) {
			resp.Seqs[id] = sdkws.Seqs{MaxSeq: seq}
		}
		s.reply(c, req, 0, "", resp.Marshal())

	case protocol.WSPullConvLastMessage:
		in := &sdkws.ConversationsReq{}
		if err := in.Unmarshal(req.Data); err != nil {
			s.reply(c, req, ErrCodeArgs, "invalid conversations request", nil)
			return
		}
		resp := &sdkws.LastMessageResp{Msgs: make(map[string]*sdkws.MsgData)}
		for id := range s.filter(s.store.maxSeqs(), in.ConversationIDs) {
			if msg := s.store.last(id); msg != nil {
				resp.Msgs[id] = msg
			}
		}
		s.reply(c, req, 0, "", resp.Marshal())

	case protocol.WSSetBackgroundStatus:
		s.reply(c, req, 0, "", nil)

	default:
		s.reply(c, req, ErrCodeUnsupported, "unsupported request "+req.ReqIdentifier.String(), nil)
	}
}

func (s *Server) filter(seqs map[string]int64, ids []string) map[string]int64 {
	if len(ids) == 0 {
		return seqs
	}
	out := make(map[string]int64, len(ids))
	for _, id := range ids {
		if seq, ok := seqs[id]; ok {
			out[id] = seq
		}
	}
	return out
}

// accept stamps and stores a sent message and builds its push batch.
func (s *Server) accept(msg *sdkws.MsgData) (string, *sdkws.PushMessages) {
	if msg.SessionType == 0 {
		msg.SessionType = protocol.SessionSingleChat
	}
	msg.ServerMsgID = uuid.NewString()
	msg.SendTime = time.Now().UnixMilli()
	msg.CreateTime = msg.SendTime
	if msg.ClientMsgID == "" {
		msg.ClientMsgID = uuid.NewString()
	}
	convID := protocol.ConversationID(msg.SessionType, msg.SendID, msg.RecvID, msg.GroupID)
	s.store.append(convID, msg)

	return convID, &sdkws.PushMessages{Msgs: sdkws.ConversationMap{{
		ConversationID: convID,
		PullMsgs:       sdkws.PullMsgs{Msgs: []*sdkws.MsgData{msg}},
	}}}
}

// fanOut pushes an accepted message to the recipient and echoes it to the
// sender's sessions. It runs after the sender's ack is queued.
func (s *Server) fanOut(msg *sdkws.MsgData, convID string, batch *sdkws.PushMessages) {
	n := s.Push(msg.RecvID, batch)
	if msg.RecvID != msg.SendID {
		n += s.Push(msg.SendID, batch)
	}
	s.log.Debug("message accepted",
		zap.String("conversationID", convID),
		zap.String("clientMsgID", msg.ClientMsgID),
		zap.Int64("seq", msg.Seq),
		zap.Int("sessions", n))
}

// Push sends a message batch to every session of userID, gzip-compressed
// when the session asked for it. It returns the number of sessions reached.
func (s *Server) Push(userID string, batch *sdkws.PushMessages) int {
	return s.pushTo(userID, &protocol.Envelope{
		ReqIdentifier: protocol.WSPushMsg,
		SendID:        userID,
		Data:          batch.Marshal(),
	})
}

// Kick tells every session of userID it was logged in elsewhere.
func (s *Server) Kick(userID string) int {
	return s.pushTo(userID, &protocol.Envelope{ReqIdentifier: protocol.WSKickOnlineMsg, SendID: userID})
}

// Logout tells every session of userID its token was revoked.
func (s *Server) Logout(userID string) int {
	return s.pushTo(userID, &protocol.Envelope{ReqIdentifier: protocol.WSLogoutMsg, SendID: userID})
}

func (s *Server) pushTo(userID string, env *protocol.Envelope) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for c := range s.clients {
		if c.userID == userID && s.send(c, env, c.gzip) {
			n++
		}
	}
	return n
}

// Deliver stores msg in its conversation and pushes it to userID, as if
// another user had sent it.
func (s *Server) Deliver(userID string, msg *sdkws.MsgData) int {
	if msg.SessionType == 0 {
		msg.SessionType = protocol.SessionSingleChat
	}
	if msg.ClientMsgID == "" {
		msg.ClientMsgID = uuid.NewString()
	}
	if msg.SendTime == 0 {
		msg.SendTime = time.Now().UnixMilli()
	}
	convID := protocol.ConversationID(msg.SessionType, msg.SendID, userID, msg.GroupID)
	s.store.append(convID, msg)
	return s.Push(userID, &sdkws.PushMessages{Msgs: sdkws.ConversationMap{{
		ConversationID: convID,
		PullMsgs:       sdkws.PullMsgs{Msgs: []*sdkws.MsgData{msg}},
	}}})
}
