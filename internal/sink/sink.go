// Package sink holds consumers of delivered messages.
package sink

import (
	"encoding/json"

	"github.com/omochice/openim-session/pkg/protocol"
	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

// Sink receives every message the session delivers exactly once.
type Sink interface {
	Deliver(conversationID string, msg *sdkws.MsgData, isNotification bool)
}

// Multi fans a delivery out to several sinks in order.
type Multi []Sink

// Deliver implements Sink.
func (m Multi) Deliver(conversationID string, msg *sdkws.MsgData, isNotification bool) {
	for _, s := range m {
		if s != nil {
			s.Deliver(conversationID, msg, isNotification)
		}
	}
}

// Text returns the human readable part of a message: the "content" field
// of text-like payloads, the raw payload otherwise.
func Text(msg *sdkws.MsgData) string {
	switch protocol.ContentType(msg.ContentType) {
	case protocol.ContentText, protocol.ContentAtText, protocol.ContentQuote:
		var body struct {
			Content string `json:"content"`
			Text    string `json:"text"`
		}
		if err := json.Unmarshal(msg.Content, &body); err == nil {
			if body.Content != "" {
				return body.Content
			}
			if body.Text != "" {
				return body.Text
			}
		}
	}
	return string(msg.Content)
}
