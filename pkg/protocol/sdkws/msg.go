package sdkws

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// MsgData is a single chat or notification message.
type MsgData struct {
	SendID           string
	RecvID           string
	GroupID          string
	ClientMsgID      string
	ServerMsgID      string
	SenderPlatformID int32
	SenderNickname   string
	SenderFaceURL    string
	SessionType      int32
	MsgFrom          int32
	ContentType      int32
	Content          []byte
	Seq              int64
	SendTime         int64
	CreateTime       int64
	Status           int32
	IsRead           bool
	AtUserIDList     []string
	AttachedInfo     string
	Ex               string
}

// Marshal encodes the message in protobuf wire format.
func (m *MsgData) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.SendID)
	b = appendString(b, 2, m.RecvID)
	b = appendString(b, 3, m.GroupID)
	b = appendString(b, 4, m.ClientMsgID)
	b = appendString(b, 5, m.ServerMsgID)
	b = appendInt32(b, 6, m.SenderPlatformID)
	b = appendString(b, 7, m.SenderNickname)
	b = appendString(b, 8, m.SenderFaceURL)
	b = appendInt32(b, 9, m.SessionType)
	b = appendInt32(b, 10, m.MsgFrom)
	b = appendInt32(b, 11, m.ContentType)
	b = appendBytes(b, 12, m.Content)
	b = appendInt64(b, 14, m.Seq)
	b = appendInt64(b, 15, m.SendTime)
	b = appendInt64(b, 16, m.CreateTime)
	b = appendInt32(b, 17, m.Status)
	b = appendBool(b, 18, m.IsRead)
	for _, id := range m.AtUserIDList {
		b = protowire.AppendTag(b, 21, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	b = appendString(b, 22, m.AttachedInfo)
	b = appendString(b, 23, m.Ex)
	return b
}

// Unmarshal decodes the message from protobuf wire format. Unknown fields
// (options, offline push info) are skipped.
func (m *MsgData) Unmarshal(b []byte) error {
	*m = MsgData{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, v, &m.SendID)
		case 2:
			return consumeString(typ, v, &m.RecvID)
		case 3:
			return consumeString(typ, v, &m.GroupID)
		case 4:
			return consumeString(typ, v, &m.ClientMsgID)
		case 5:
			return consumeString(typ, v, &m.ServerMsgID)
		case 6:
			return consumeInt32(typ, v, &m.SenderPlatformID)
		case 7:
			return consumeString(typ, v, &m.SenderNickname)
		case 8:
			return consumeString(typ, v, &m.SenderFaceURL)
		case 9:
			return consumeInt32(typ, v, &m.SessionType)
		case 10:
			return consumeInt32(typ, v, &m.MsgFrom)
		case 11:
			return consumeInt32(typ, v, &m.ContentType)
		case 12:
			return consumeBytes(typ, v, &m.Content)
		case 14:
			return consumeInt64(typ, v, &m.Seq)
		case 15:
			return consumeInt64(typ, v, &m.SendTime)
		case 16:
			return consumeInt64(typ, v, &m.CreateTime)
		case 17:
			return consumeInt32(typ, v, &m.Status)
		case 18:
			return consumeBool(typ, v, &m.IsRead)
		case 21:
			var id string
			n, err := consumeString(typ, v, &id)
			if err == nil {
				m.AtUserIDList = append(m.AtUserIDList, id)
			}
			return n, err
		case 22:
			return consumeString(typ, v, &m.AttachedInfo)
		case 23:
			return consumeString(typ, v, &m.Ex)
		}
		return skipField(num, typ, v)
	})
	return errors.WithMessage(err, "msg data")
}

// PullMsgs is the list of messages of one conversation.
type PullMsgs struct {
	Msgs  []*MsgData
	IsEnd bool
}

func (p *PullMsgs) marshal() []byte {
	var b []byte
	for _, msg := range p.Msgs {
		b = appendMessage(b, 1, msg.Marshal())
	}
	b = appendBool(b, 2, p.IsEnd)
	return b
}

func (p *PullMsgs) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, v, func(raw []byte) error {
				msg := &MsgData{}
				if err := msg.Unmarshal(raw); err != nil {
					return err
				}
				p.Msgs = append(p.Msgs, msg)
				return nil
			})
		case 2:
			return consumeBool(typ, v, &p.IsEnd)
		}
		return skipField(num, typ, v)
	})
}

// ConversationMsgs is one entry of a conversationID → PullMsgs map.
// Entries keep the order in which they appeared on the wire.
type ConversationMsgs struct {
	ConversationID string
	PullMsgs
}

// ConversationMap is an ordered map<string, PullMsgs>.
type ConversationMap []*ConversationMsgs

// Get returns the entry for conversationID, or nil.
func (c ConversationMap) Get(conversationID string) *ConversationMsgs {
	for _, entry := range c {
		if entry.ConversationID == conversationID {
			return entry
		}
	}
	return nil
}

// Count returns the number of messages across all conversations.
func (c ConversationMap) Count() int {
	n := 0
	for _, entry := range c {
		n += len(entry.Msgs)
	}
	return n
}

func (c ConversationMap) appendTo(b []byte, num protowire.Number) []byte {
	for _, entry := range c {
		var e []byte
		e = appendString(e, 1, entry.ConversationID)
		e = appendMessage(e, 2, entry.PullMsgs.marshal())
		b = appendMessage(b, num, e)
	}
	return b
}

// consumeEntry decodes one map entry. A repeated key replaces the earlier
// value in place, matching protobuf map semantics.
func (c *ConversationMap) consumeEntry(raw []byte) error {
	entry := &ConversationMsgs{}
	err := walk(raw, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, v, &entry.ConversationID)
		case 2:
			return consumeMessage(typ, v, func(msg []byte) error {
				entry.PullMsgs = PullMsgs{}
				return entry.PullMsgs.unmarshal(msg)
			})
		}
		return skipField(num, typ, v)
	})
	if err != nil {
		return err
	}
	for i, existing := range *c {
		if existing.ConversationID == entry.ConversationID {
			(*c)[i] = entry
			return nil
		}
	}
	*c = append(*c, entry)
	return nil
}

// PushMessages is the payload of WS_PUSH_MSG: normal messages and
// notifications, each grouped by conversation.
type PushMessages struct {
	Msgs             ConversationMap
	NotificationMsgs ConversationMap
}

// Marshal encodes the batch in protobuf wire format.
func (p *PushMessages) Marshal() []byte {
	var b []byte
	b = p.Msgs.appendTo(b, 1)
	b = p.NotificationMsgs.appendTo(b, 2)
	return b
}

// Unmarshal decodes the batch from protobuf wire format.
func (p *PushMessages) Unmarshal(b []byte) error {
	*p = PushMessages{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, v, p.Msgs.consumeEntry)
		case 2:
			return consumeMessage(typ, v, p.NotificationMsgs.consumeEntry)
		}
		return skipField(num, typ, v)
	})
	return errors.WithMessage(err, "push messages")
}

// Empty reports whether the batch carries no message at all.
func (p *PushMessages) Empty() bool {
	return p.Msgs.Count() == 0 && p.NotificationMsgs.Count() == 0
}
