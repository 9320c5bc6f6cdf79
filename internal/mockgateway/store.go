package mockgateway

import (
	"sync"

	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

// store keeps every message per conversation; seq is the 1-based index.
type store struct {
	mu    sync.Mutex
	convs map[string][]*sdkws.MsgData
}

func newStore() *store {
	return &store{convs: make(map[string][]*sdkws.MsgData)}
}

func (s *store) append(conversationID string, msg *sdkws.MsgData) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.convs[conversationID] = append(s.convs[conversationID], msg)
	msg.Seq = int64(len(s.convs[conversationID]))
	return msg.Seq
}

func (s *store) maxSeqs() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(s.convs))
	for id, msgs := range s.convs {
		out[id] = int64(len(msgs))
	}
	return out
}

// rangeOf returns messages with begin <= seq <= end, at most num if num > 0.
func (s *store) rangeOf(conversationID string, begin, end, num int64) []*sdkws.MsgData {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.convs[conversationID]
	if begin < 1 {
		begin = 1
	}
	if end > int64(len(msgs)) {
		end = int64(len(msgs))
	}
	var out []*sdkws.MsgData
	for seq := begin; seq <= end; seq++ {
		if num > 0 && int64(len(out)) >= num {
			break
		}
		out = append(out, msgs[seq-1])
	}
	return out
}

func (s *store) last(conversationID string) *sdkws.MsgData {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.convs[conversationID]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}
