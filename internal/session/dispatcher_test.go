package session

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/omochice/openim-session/internal/metrics"
	"github.com/omochice/openim-session/internal/transport"
	"github.com/omochice/openim-session/pkg/protocol"
	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

type delivery struct {
	conv         string
	clientMsgID  string
	notification bool
}

func newTestDispatcher() (*dispatcher, *[]delivery) {
	var got []delivery
	d := &dispatcher{
		pending: newPendingTable(),
		dedup:   NewDedup(0),
		sink: MessageSinkFunc(func(conv string, msg *sdkws.MsgData, n bool) {
			got = append(got, delivery{conv, msg.ClientMsgID, n})
		}),
		metrics: metrics.New(nil),
		log:     zap.NewNop(),
	}
	return d, &got
}

func frameOf(t *testing.T, env protocol.Envelope) transport.Frame {
	t.Helper()
	raw, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return transport.Frame{Kind: transport.FrameBinary, Data: raw}
}

func pushFrame(t *testing.T, batch *sdkws.PushMessages) transport.Frame {
	return frameOf(t, protocol.Envelope{ReqIdentifier: protocol.WSPushMsg, Data: batch.Marshal()})
}

func msgs(conv string, ids ...string) *sdkws.ConversationMsgs {
	c := &sdkws.ConversationMsgs{ConversationID: conv}
	for _, id := range ids {
		c.Msgs = append(c.Msgs, &sdkws.MsgData{ClientMsgID: id, ContentType: int32(protocol.ContentText)})
	}
	return c
}

func TestDispatcher_DeliversNormalThenNotifications(t *testing.T) {
	d, got := newTestDispatcher()

	batch := &sdkws.PushMessages{
		Msgs:             sdkws.ConversationMap{msgs("c2", "a", "b"), msgs("c1", "c")},
		NotificationMsgs: sdkws.ConversationMap{msgs("n1", "x")},
	}
	if _, closing := d.handle(pushFrame(t, batch)); closing {
		t.Fatal("handle() reported closing for a push")
	}

	want := []delivery{{"c2", "a", false}, {"c2", "b", false}, {"c1", "c", false}, {"n1", "x", true}}
	if len(*got) != len(want) {
		t.Fatalf("deliveries = %v, want %v", *got, want)
	}
	for i := range want {
		if (*got)[i] != want[i] {
			t.Errorf("delivery[%d] = %v, want %v", i, (*got)[i], want[i])
		}
	}
}

func TestDispatcher_SuppressesRepeats(t *testing.T) {
	d, got := newTestDispatcher()
	batch := &sdkws.PushMessages{Msgs: sdkws.ConversationMap{msgs("c1", "m1")}}

	d.handle(pushFrame(t, batch))
	d.handle(pushFrame(t, batch))

	if len(*got) != 1 {
		t.Errorf("deliveries = %d, want 1", len(*got))
	}
	if n := testutil.ToFloat64(d.metrics.Duplicates); n != 1 {
		t.Errorf("duplicates_suppressed_total = %v, want 1", n)
	}
}

func TestDispatcher_EmptyBatch(t *testing.T) {
	d, got := newTestDispatcher()

	d.handle(pushFrame(t, &sdkws.PushMessages{}))

	if len(*got) != 0 || d.dedup.Len() != 0 {
		t.Errorf("empty batch delivered %d messages and recorded %d IDs", len(*got), d.dedup.Len())
	}
}

func TestDispatcher_CompletesPendingRequest(t *testing.T) {
	d, _ := newTestDispatcher()
	w, _ := d.pending.register("5", protocol.WSGetConvMaxReadSeq)

	d.handle(frameOf(t, protocol.Envelope{ReqIdentifier: protocol.WSGetConvMaxReadSeq, MsgIncr: "5", Data: []byte("D")}))

	r := <-w.result
	if string(r.data) != "D" || r.err != nil {
		t.Errorf("result = %q, %v", r.data, r.err)
	}
}

func TestDispatcher_ServerError(t *testing.T) {
	d, _ := newTestDispatcher()
	w, _ := d.pending.register("1", protocol.WSGetNewestSeq)

	d.handle(frameOf(t, protocol.Envelope{ReqIdentifier: protocol.WSGetNewestSeq, MsgIncr: "1", ErrCode: 42, ErrMsg: "x"}))

	r := <-w.result
	var serverErr *ServerError
	if !errors.As(r.err, &serverErr) || serverErr.Code != 42 || serverErr.Msg != "x" {
		t.Errorf("result error = %v, want ServerError{42, x}", r.err)
	}
}

func TestDispatcher_UnmatchedResponse(t *testing.T) {
	d, got := newTestDispatcher()

	d.handle(frameOf(t, protocol.Envelope{ReqIdentifier: protocol.WSSendMsg, MsgIncr: "99"}))

	if n := testutil.ToFloat64(d.metrics.UnmatchedResponses); n != 1 {
		t.Errorf("unmatched_responses_total = %v, want 1", n)
	}
	if len(*got) != 0 {
		t.Errorf("unmatched response reached the sink")
	}
}

func TestDispatcher_KickAndLogout(t *testing.T) {
	tests := []struct {
		id   protocol.ReqIdentifier
		want CloseReason
	}{
		{protocol.WSKickOnlineMsg, CloseKicked},
		{protocol.WSLogoutMsg, CloseLoggedOut},
	}
	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			d, _ := newTestDispatcher()
			reason, closing := d.handle(frameOf(t, protocol.Envelope{ReqIdentifier: tt.id}))
			if !closing || reason != tt.want {
				t.Errorf("handle() = %v, %v; want %v, true", reason, closing, tt.want)
			}
		})
	}
}

func TestDispatcher_DropsUndecodableFrames(t *testing.T) {
	tests := []struct {
		name   string
		frame  transport.Frame
		reason string
	}{
		{"truncated gzip", transport.Frame{Kind: transport.FrameBinary, Data: []byte{0x1f, 0x8b, 0x00}}, metrics.DropMalformed},
		{"unknown type", transport.Frame{Kind: transport.FrameText, Data: []byte(`{"reqIdentifier":3000}`)}, metrics.DropUnknownType},
		{"bad push payload", frameOf(t, protocol.Envelope{ReqIdentifier: protocol.WSPushMsg, Data: []byte{0x0a, 0x09}}), metrics.DropPayloadDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, got := newTestDispatcher()
			if _, closing := d.handle(tt.frame); closing {
				t.Error("handle() reported closing for a bad frame")
			}
			if n := testutil.ToFloat64(d.metrics.FramesDropped.WithLabelValues(tt.reason)); n != 1 {
				t.Errorf("frames_dropped_total{%s} = %v, want 1", tt.reason, n)
			}
			if len(*got) != 0 {
				t.Error("bad frame reached the sink")
			}
		})
	}
}

func TestDispatcher_DropsOversizedInflatedFrame(t *testing.T) {
	d, got := newTestDispatcher()
	d.maxFrame = 256

	batch := &sdkws.PushMessages{Msgs: sdkws.ConversationMap{msgs("c1", "m1")}}
	batch.Msgs[0].Msgs[0].Content = make([]byte, 1024)
	raw := pushFrame(t, batch).Data
	compressed, err := protocol.Deflate(raw)
	if err != nil {
		t.Fatal(err)
	}

	if _, closing := d.handle(transport.Frame{Kind: transport.FrameBinary, Data: compressed}); closing {
		t.Error("handle() reported closing for an oversized frame")
	}
	if n := testutil.ToFloat64(d.metrics.FramesDropped.WithLabelValues(metrics.DropMalformed)); n != 1 {
		t.Errorf("frames_dropped_total{malformed} = %v, want 1", n)
	}
	if len(*got) != 0 {
		t.Error("oversized frame reached the sink")
	}

	d.maxFrame = int64(len(raw))
	d.handle(transport.Frame{Kind: transport.FrameBinary, Data: compressed})
	if len(*got) != 1 {
		t.Errorf("deliveries at the cap = %d, want 1", len(*got))
	}
}

func TestDispatcher_MessagesWithoutIDAreNotDeduplicated(t *testing.T) {
	d, got := newTestDispatcher()
	batch := &sdkws.PushMessages{Msgs: sdkws.ConversationMap{msgs("c1", "", "")}}

	d.handle(pushFrame(t, batch))

	if len(*got) != 2 {
		t.Errorf("deliveries = %d, want 2", len(*got))
	}
}
