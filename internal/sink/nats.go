package sink

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/omochice/openim-session/internal/logger"
	"github.com/omochice/openim-session/pkg/protocol"
	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

// Publisher is the part of *nats.Conn the relay needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Record is the JSON document published for each delivered message.
type Record struct {
	ConversationID string `json:"conversationID"`
	Notification   bool   `json:"notification"`
	ClientMsgID    string `json:"clientMsgID"`
	ServerMsgID    string `json:"serverMsgID"`
	SendID         string `json:"sendID"`
	SenderPlatform int32  `json:"senderPlatformID"`
	RecvID         string `json:"recvID,omitempty"`
	GroupID        string `json:"groupID,omitempty"`
	SessionType    int32  `json:"sessionType"`
	ContentType    string `json:"contentType"`
	Content        string `json:"content"`
	Seq            int64  `json:"seq"`
	SendTime       int64  `json:"sendTime"`
}

// NATS relays delivered messages to "<prefix>.<conversationID>".
type NATS struct {
	pub    Publisher
	prefix string
	log    *zap.Logger
}

// NewNATS creates a relay publishing through pub.
func NewNATS(pub Publisher, prefix string, l *zap.Logger) *NATS {
	return &NATS{pub: pub, prefix: prefix, log: logger.OrNop(l)}
}

// Connect dials a NATS server for use as the relay Publisher.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to nats")
	}
	return nc, nil
}

// Subject returns the subject a conversation is published on.
func (s *NATS) Subject(conversationID string) string {
	if s.prefix == "" {
		return conversationID
	}
	return s.prefix + "." + conversationID
}

// Deliver implements Sink. Publish failures are logged; delivery to other
// sinks is never blocked by the relay.
func (s *NATS) Deliver(conversationID string, msg *sdkws.MsgData, isNotification bool) {
	data, err := json.Marshal(&Record{
		ConversationID: conversationID,
		Notification:   isNotification,
		ClientMsgID:    msg.ClientMsgID,
		ServerMsgID:    msg.ServerMsgID,
		SendID:         msg.SendID,
		SenderPlatform: msg.SenderPlatformID,
		RecvID:         msg.RecvID,
		GroupID:        msg.GroupID,
		SessionType:    msg.SessionType,
		ContentType:    protocol.ContentType(msg.ContentType).String(),
		Content:        Text(msg),
		Seq:            msg.Seq,
		SendTime:       msg.SendTime,
	})
	if err != nil {
		s.log.Warn("failed to encode record", zap.Error(err))
		return
	}
	if err := s.pub.Publish(s.Subject(conversationID), data); err != nil {
		s.log.Warn("failed to publish message",
			zap.String("conversationID", conversationID),
			zap.String("clientMsgID", msg.ClientMsgID),
			zap.Error(err))
	}
}
