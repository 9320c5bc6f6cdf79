package session

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/omochice/openim-session/internal/metrics"
	"github.com/omochice/openim-session/internal/transport"
	"github.com/omochice/openim-session/pkg/protocol"
	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

// Request sends data as a reqID request and waits for the response with
// the same msgIncr. The deadline is ctx's, or the configured request
// timeout when ctx has none. A full outbound queue fails fast with ErrBusy.
func (s *Session) Request(ctx context.Context, reqID protocol.ReqIdentifier, data []byte) ([]byte, error) {
	if !reqID.IsRequest() {
		return nil, errors.WithMessagef(protocol.ErrUnknownType, "%s is not a request type", reqID)
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	resp, result, err := s.roundTrip(ctx, reqID, data)
	s.metrics.Requests.WithLabelValues(reqID.String(), result).Inc()
	return resp, err
}

// ready fails unless the session is Running. The connection config is
// published before the state turns Running, so s.cfg may be read only after
// ready returns nil.
func (s *Session) ready() error {
	switch s.State() {
	case StateRunning:
		return nil
	case StateIdle, StateConnecting, StateHandshaking:
		return ErrNotRunning
	default:
		return ErrSessionClosed
	}
}

func (s *Session) roundTrip(ctx context.Context, reqID protocol.ReqIdentifier, data []byte) ([]byte, string, error) {
	incr := strconv.FormatUint(s.msgIncr.Add(1), 10)
	w, err := s.pending.register(incr, reqID)
	if err != nil {
		return nil, metrics.ResultClosed, err
	}

	env := protocol.Envelope{
		ReqIdentifier: reqID,
		Token:         s.cfg.Token,
		SendID:        s.cfg.UserID,
		OperationID:   s.operationID,
		MsgIncr:       incr,
		Data:          data,
	}
	raw, err := env.Encode()
	if err != nil {
		s.pending.remove(incr)
		return nil, metrics.ResultCanceled, err
	}

	select {
	case s.outbound <- outbound{frame: transport.Frame{Kind: transport.FrameBinary, Data: raw}}:
	default:
		s.pending.remove(incr)
		return nil, metrics.ResultBusy, ErrBusy
	}

	if _, ok := ctx.Deadline(); !ok && s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	select {
	case r := <-w.result:
		var serverErr *ServerError
		switch {
		case r.err == nil:
			return r.data, metrics.ResultOK, nil
		case errors.As(r.err, &serverErr):
			return r.data, metrics.ResultServerError, r.err
		default:
			return nil, metrics.ResultClosed, r.err
		}
	case <-ctx.Done():
		s.pending.remove(incr)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.log.Warn("request timed out",
				zap.Stringer("reqIdentifier", reqID),
				zap.String("msgIncr", incr))
			return nil, metrics.ResultTimeout, ErrTimeout
		}
		return nil, metrics.ResultCanceled, ctx.Err()
	}
}

// GetNewestSeq asks for the max and min seq of every conversation of the user.
func (s *Session) GetNewestSeq(ctx context.Context) (*sdkws.GetMaxSeqResp, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	req := &sdkws.GetMaxSeqReq{UserID: s.cfg.UserID}
	data, err := s.Request(ctx, protocol.WSGetNewestSeq, req.Marshal())
	if err != nil {
		return nil, err
	}
	resp := &sdkws.GetMaxSeqResp{}
	if err := resp.Unmarshal(data); err != nil {
		return nil, errors.WithMessagef(protocol.ErrPayloadDecode, "get newest seq: %v", err)
	}
	return resp, nil
}

// PullMsgBySeqList pulls messages in the given seq ranges.
func (s *Session) PullMsgBySeqList(ctx context.Context, req *sdkws.PullMessageBySeqsReq) (*sdkws.PullMessageBySeqsResp, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		req.UserID = s.cfg.UserID
	}
	data, err := s.Request(ctx, protocol.WSPullMsgBySeqList, req.Marshal())
	if err != nil {
		return nil, err
	}
	resp := &sdkws.PullMessageBySeqsResp{}
	if err := resp.Unmarshal(data); err != nil {
		return nil, errors.WithMessagef(protocol.ErrPayloadDecode, "pull by seq list: %v", err)
	}
	return resp, nil
}

// SendMsg sends one message. SendID defaults to the session user.
func (s *Session) SendMsg(ctx context.Context, msg *sdkws.MsgData) (*sdkws.SendMsgResp, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if msg.SendID == "" {
		msg.SendID = s.cfg.UserID
	}
	if msg.SenderPlatformID == 0 {
		msg.SenderPlatformID = s.cfg.PlatformID
	}
	data, err := s.Request(ctx, protocol.WSSendMsg, msg.Marshal())
	if err != nil {
		return nil, err
	}
	resp := &sdkws.SendMsgResp{}
	if err := resp.Unmarshal(data); err != nil {
		return nil, errors.WithMessagef(protocol.ErrPayloadDecode, "send msg: %v", err)
	}
	return resp, nil
}

// PullMsg issues a raw pull request; the payload schema is gateway specific.
func (s *Session) PullMsg(ctx context.Context, data []byte) ([]byte, error) {
	return s.Request(ctx, protocol.WSPullMsg, data)
}

func (s *Session) GetConvMaxReadSeq(ctx context.Context, conversationIDs ...string) (*sdkws.ConvMaxReadSeqResp, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	req := &sdkws.ConversationsReq{UserID: s.cfg.UserID, ConversationIDs: conversationIDs}
	data, err := s.Request(ctx, protocol.WSGetConvMaxReadSeq, req.Marshal())
	if err != nil {
		return nil, err
	}
	resp := &sdkws.ConvMaxReadSeqResp{}
	if err := resp.Unmarshal(data); err != nil {
		return nil, errors.WithMessagef(protocol.ErrPayloadDecode, "conv max read seq: %v", err)
	}
	return resp, nil
}

func (s *Session) PullConvLastMessage(ctx context.Context, conversationIDs ...string) (*sdkws.LastMessageResp, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	req := &sdkws.ConversationsReq{UserID: s.cfg.UserID, ConversationIDs: conversationIDs}
	data, err := s.Request(ctx, protocol.WSPullConvLastMessage, req.Marshal())
	if err != nil {
		return nil, err
	}
	resp := &sdkws.LastMessageResp{}
	if err := resp.Unmarshal(data); err != nil {
		return nil, errors.WithMessagef(protocol.ErrPayloadDecode, "conv last message: %v", err)
	}
	return resp, nil
}

// SetBackgroundStatus tells the gateway whether the app is in the background,
// which changes how it pushes offline notifications.
func (s *Session) SetBackgroundStatus(ctx context.Context, isBackground bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	req := &sdkws.SetAppBackgroundStatusReq{UserID: s.cfg.UserID, IsBackground: isBackground}
	_, err := s.Request(ctx, protocol.WSSetBackgroundStatus, req.Marshal())
	return err
}
