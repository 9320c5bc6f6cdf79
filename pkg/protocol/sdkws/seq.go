package sdkws

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// GetMaxSeqReq is the request of GET_NEWEST_SEQ.
type GetMaxSeqReq struct {
	UserID string
}

func (r *GetMaxSeqReq) Marshal() []byte {
	return appendString(nil, 1, r.UserID)
}

func (r *GetMaxSeqReq) Unmarshal(b []byte) error {
	*r = GetMaxSeqReq{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num == 1 {
			return consumeString(typ, v, &r.UserID)
		}
		return skipField(num, typ, v)
	})
}

// GetMaxSeqResp maps conversation IDs to their newest and oldest seq.
type GetMaxSeqResp struct {
	MaxSeqs map[string]int64
	MinSeqs map[string]int64
}

func (r *GetMaxSeqResp) Marshal() []byte {
	var b []byte
	b = appendInt64Map(b, 1, r.MaxSeqs)
	b = appendInt64Map(b, 2, r.MinSeqs)
	return b
}

func (r *GetMaxSeqResp) Unmarshal(b []byte) error {
	*r = GetMaxSeqResp{MaxSeqs: map[string]int64{}, MinSeqs: map[string]int64{}}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeMessage(typ, v, func(e []byte) error { return consumeInt64MapEntry(e, r.MaxSeqs) })
		case 2:
			return consumeMessage(typ, v, func(e []byte) error { return consumeInt64MapEntry(e, r.MinSeqs) })
		}
		return skipField(num, typ, v)
	})
	return errors.WithMessage(err, "get max seq resp")
}

// SeqRange selects messages [Begin, End] of one conversation.
type SeqRange struct {
	ConversationID string
	Begin          int64
	End            int64
	Num            int64
}

func (s *SeqRange) marshal() []byte {
	var b []byte
	b = appendString(b, 1, s.ConversationID)
	b = appendInt64(b, 2, s.Begin)
	b = appendInt64(b, 3, s.End)
	b = appendInt64(b, 4, s.Num)
	return b
}

func (s *SeqRange) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, v, &s.ConversationID)
		case 2:
			return consumeInt64(typ, v, &s.Begin)
		case 3:
			return consumeInt64(typ, v, &s.End)
		case 4:
			return consumeInt64(typ, v, &s.Num)
		}
		return skipField(num, typ, v)
	})
}

// Pull orders.
const (
	PullOrderAsc  int32 = 0
	PullOrderDesc int32 = 1
)

// PullMessageBySeqsReq is the request of PULL_MSG_BY_SEQ_LIST.
type PullMessageBySeqsReq struct {
	UserID    string
	SeqRanges []*SeqRange
	Order     int32
}

func (r *PullMessageBySeqsReq) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, r.UserID)
	for _, sr := range r.SeqRanges {
		b = appendMessage(b, 2, sr.marshal())
	}
	b = appendInt32(b, 3, r.Order)
	return b
}

func (r *PullMessageBySeqsReq) Unmarshal(b []byte) error {
	*r = PullMessageBySeqsReq{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, v, &r.UserID)
		case 2:
			return consumeMessage(typ, v, func(raw []byte) error {
				sr := &SeqRange{}
				if err := sr.unmarshal(raw); err != nil {
					return err
				}
				r.SeqRanges = append(r.SeqRanges, sr)
				return nil
			})
		case 3:
			return consumeInt32(typ, v, &r.Order)
		}
		return skipField(num, typ, v)
	})
}

// PullMessageBySeqsResp has the same shape as a push batch.
type PullMessageBySeqsResp struct {
	Msgs             ConversationMap
	NotificationMsgs ConversationMap
}

func (r *PullMessageBySeqsResp) Marshal() []byte {
	p := PushMessages{Msgs: r.Msgs, NotificationMsgs: r.NotificationMsgs}
	return p.Marshal()
}

func (r *PullMessageBySeqsResp) Unmarshal(b []byte) error {
	var p PushMessages
	if err := p.Unmarshal(b); err != nil {
		return errors.WithMessage(err, "pull by seqs resp")
	}
	r.Msgs, r.NotificationMsgs = p.Msgs, p.NotificationMsgs
	return nil
}

// SendMsgResp acknowledges SEND_MSG.
type SendMsgResp struct {
	ServerMsgID string
	ClientMsgID string
	SendTime    int64
}

func (r *SendMsgResp) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, r.ServerMsgID)
	b = appendString(b, 2, r.ClientMsgID)
	b = appendInt64(b, 3, r.SendTime)
	return b
}

func (r *SendMsgResp) Unmarshal(b []byte) error {
	*r = SendMsgResp{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, v, &r.ServerMsgID)
		case 2:
			return consumeString(typ, v, &r.ClientMsgID)
		case 3:
			return consumeInt64(typ, v, &r.SendTime)
		}
		return skipField(num, typ, v)
	})
}

// ConversationsReq is shared by GET_CONV_MAX_READ_SEQ and
// PULL_CONV_LAST_MESSAGE. An empty list means all conversations.
type ConversationsReq struct {
	UserID          string
	ConversationIDs []string
}

func (r *ConversationsReq) Marshal() []byte {
	b := appendString(nil, 1, r.UserID)
	for _, id := range r.ConversationIDs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	return b
}

func (r *ConversationsReq) Unmarshal(b []byte) error {
	*r = ConversationsReq{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, v, &r.UserID)
		case 2:
			var id string
			n, err := consumeString(typ, v, &id)
			if err == nil {
				r.ConversationIDs = append(r.ConversationIDs, id)
			}
			return n, err
		}
		return skipField(num, typ, v)
	})
}

// Seqs is the read state of one conversation.
type Seqs struct {
	MaxSeq     int64
	HasReadSeq int64
	MaxSeqTime int64
}

// ConvMaxReadSeqResp answers GET_CONV_MAX_READ_SEQ.
type ConvMaxReadSeqResp struct {
	Seqs map[string]Seqs
}

func (r *ConvMaxReadSeqResp) Marshal() []byte {
	var b []byte
	for _, k := range sortedKeys(r.Seqs) {
		s := r.Seqs[k]
		var val []byte
		val = appendInt64(val, 1, s.MaxSeq)
		val = appendInt64(val, 2, s.HasReadSeq)
		val = appendInt64(val, 3, s.MaxSeqTime)
		var entry []byte
		entry = appendString(entry, 1, k)
		entry = appendMessage(entry, 2, val)
		b = appendMessage(b, 1, entry)
	}
	return b
}

func (r *ConvMaxReadSeqResp) Unmarshal(b []byte) error {
	*r = ConvMaxReadSeqResp{Seqs: map[string]Seqs{}}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != 1 {
			return skipField(num, typ, v)
		}
		return consumeMessage(typ, v, func(raw []byte) error {
			var key string
			var s Seqs
			err := walk(raw, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
				switch num {
				case 1:
					return consumeString(typ, v, &key)
				case 2:
					return consumeMessage(typ, v, func(val []byte) error {
						return walk(val, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
							switch num {
							case 1:
								return consumeInt64(typ, v, &s.MaxSeq)
							case 2:
								return consumeInt64(typ, v, &s.HasReadSeq)
							case 3:
								return consumeInt64(typ, v, &s.MaxSeqTime)
							}
							return skipField(num, typ, v)
						})
					})
				}
				return skipField(num, typ, v)
			})
			if err != nil {
				return err
			}
			r.Seqs[key] = s
			return nil
		})
	})
}

// LastMessageResp answers PULL_CONV_LAST_MESSAGE.
type LastMessageResp struct {
	Msgs map[string]*MsgData
}

func (r *LastMessageResp) Marshal() []byte {
	var b []byte
	for _, k := range sortedKeys(r.Msgs) {
		var entry []byte
		entry = appendString(entry, 1, k)
		entry = appendMessage(entry, 2, r.Msgs[k].Marshal())
		b = appendMessage(b, 1, entry)
	}
	return b
}

func (r *LastMessageResp) Unmarshal(b []byte) error {
	*r = LastMessageResp{Msgs: map[string]*MsgData{}}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != 1 {
			return skipField(num, typ, v)
		}
		return consumeMessage(typ, v, func(raw []byte) error {
			var key string
			msg := &MsgData{}
			err := walk(raw, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
				switch num {
				case 1:
					return consumeString(typ, v, &key)
				case 2:
					return consumeMessage(typ, v, msg.Unmarshal)
				}
				return skipField(num, typ, v)
			})
			if err != nil {
				return err
			}
			r.Msgs[key] = msg
			return nil
		})
	})
}

// SetAppBackgroundStatusReq is the request of SET_BACKGROUND_STATUS.
type SetAppBackgroundStatusReq struct {
	UserID       string
	IsBackground bool
}

func (r *SetAppBackgroundStatusReq) Marshal() []byte {
	b := appendString(nil, 1, r.UserID)
	return appendBool(b, 2, r.IsBackground)
}

func (r *SetAppBackgroundStatusReq) Unmarshal(b []byte) error {
	*r = SetAppBackgroundStatusReq{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			return consumeString(typ, v, &r.UserID)
		case 2:
			return consumeBool(typ, v, &r.IsBackground)
		}
		return skipField(num, typ, v)
	})
}
