package session

import (
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/omochice/openim-session/internal/metrics"
	"github.com/omochice/openim-session/internal/transport"
	"github.com/omochice/openim-session/pkg/protocol"
	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

// MessageSink receives every pushed message that is not a repeat, in
// arrival order. Deliver is called from the read loop and should not block.
type MessageSink interface {
	Deliver(conversationID string, msg *sdkws.MsgData, isNotification bool)
}

// MessageSinkFunc adapts a function to MessageSink.
type MessageSinkFunc func(conversationID string, msg *sdkws.MsgData, isNotification bool)

// Deliver implements MessageSink.
func (f MessageSinkFunc) Deliver(conversationID string, msg *sdkws.MsgData, isNotification bool) {
	f(conversationID, msg, isNotification)
}

const sampleLen = 64

// dispatcher routes decoded frames to pending requests or the push path.
type dispatcher struct {
	pending  *pendingTable
	dedup    *Dedup
	sink     MessageSink
	metrics  *metrics.Metrics
	log      *zap.Logger
	maxFrame int64
}

// handle processes one inbound frame. It reports a close reason when the
// frame ends the session.
func (d *dispatcher) handle(f transport.Frame) (CloseReason, bool) {
	d.metrics.FramesReceived.WithLabelValues(f.Kind.String()).Inc()

	env, err := protocol.DecodeFrameLimit(f.Data, f.Kind == transport.FrameBinary, d.maxFrame)
	if err != nil {
		d.drop(err, f.Data)
		return 0, false
	}

	if env.ReqIdentifier.IsRequest() {
		if d.completeRequest(env) {
			return 0, false
		}
		if env.ReqIdentifier != protocol.WSSetBackgroundStatus {
			d.metrics.UnmatchedResponses.Inc()
			d.log.Warn("dropping response without pending request",
				zap.Stringer("reqIdentifier", env.ReqIdentifier),
				zap.String("msgIncr", env.MsgIncr),
				zap.Int32("errCode", env.ErrCode))
			return 0, false
		}
	}

	push, err := protocol.DecodePush(env)
	if err != nil {
		d.drop(err, f.Data)
		return 0, false
	}

	switch push.Type {
	case protocol.WSPushMsg:
		d.deliver(push.Messages)
	case protocol.WSKickOnlineMsg:
		d.log.Warn("kicked by gateway")
		return CloseKicked, true
	case protocol.WSLogoutMsg:
		d.log.Info("logged out by gateway")
		return CloseLoggedOut, true
	default:
		d.log.Debug("ignoring push", zap.Stringer("reqIdentifier", push.Type))
	}
	return 0, false
}

func (d *dispatcher) completeRequest(env *protocol.Envelope) bool {
	var err error
	if env.ErrCode != 0 {
		err = &ServerError{Code: env.ErrCode, Msg: env.ErrMsg}
	}
	w := d.pending.complete(env.MsgIncr, env.Data, err)
	if w == nil {
		return false
	}
	d.metrics.RequestDuration.WithLabelValues(w.reqID.String()).Observe(time.Since(w.sentAt).Seconds())
	return true
}

// deliver walks normal messages then notifications, each in server order.
func (d *dispatcher) deliver(batch *sdkws.PushMessages) {
	if batch == nil {
		return
	}
	d.deliverMap(batch.Msgs, false)
	d.deliverMap(batch.NotificationMsgs, true)
}

func (d *dispatcher) deliverMap(m sdkws.ConversationMap, isNotification bool) {
	for _, conv := range m {
		for _, msg := range conv.Msgs {
			if msg == nil {
				continue
			}
			// Messages without an ID cannot be deduplicated; pass them through.
			if msg.ClientMsgID != "" && !d.dedup.MarkSeen(msg.ClientMsgID) {
				d.metrics.Duplicates.Inc()
				d.log.Debug("suppressed duplicate message",
					zap.String("conversationID", conv.ConversationID),
					zap.String("clientMsgID", msg.ClientMsgID))
				continue
			}
			d.sink.Deliver(conv.ConversationID, msg, isNotification)
			d.metrics.Delivered(isNotification)
		}
	}
}

func (d *dispatcher) drop(err error, raw []byte) {
	reason := metrics.DropMalformed
	switch {
	case errors.Is(err, protocol.ErrUnknownType):
		reason = metrics.DropUnknownType
	case errors.Is(err, protocol.ErrPayloadDecode):
		reason = metrics.DropPayloadDecode
	}
	d.metrics.FramesDropped.WithLabelValues(reason).Inc()

	sample := raw
	if len(sample) > sampleLen {
		sample = sample[:sampleLen]
	}
	d.log.Warn("dropping inbound frame",
		zap.String("reason", reason),
		zap.Error(err),
		zap.Int("size", len(raw)),
		zap.String("sample", hex.EncodeToString(sample)))
}
