package sink

import (
	"go.uber.org/zap"

	"github.com/omochice/openim-session/internal/logger"
	"github.com/omochice/openim-session/pkg/protocol"
	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

// Log renders delivered messages to a zap logger.
type Log struct {
	log *zap.Logger
}

// NewLog creates a Log sink. A nil logger discards everything.
func NewLog(l *zap.Logger) *Log {
	return &Log{log: logger.OrNop(l).Named("messages")}
}

// Deliver implements Sink.
func (s *Log) Deliver(conversationID string, msg *sdkws.MsgData, isNotification bool) {
	msgType := "message"
	if isNotification {
		msgType = "notification"
	}
	s.log.Info(msgType,
		zap.String("conversationID", conversationID),
		zap.String("from", msg.SendID),
		zap.Int32("senderPlatformID", msg.SenderPlatformID),
		zap.String("clientMsgID", msg.ClientMsgID),
		zap.Int64("seq", msg.Seq),
		zap.Int64("sendTime", msg.SendTime),
		zap.Stringer("contentType", protocol.ContentType(msg.ContentType)),
		zap.String("text", Text(msg)))
}
