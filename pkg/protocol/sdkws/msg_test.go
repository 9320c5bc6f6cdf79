package sdkws_test

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

func conv(id string, clientMsgIDs ...string) *sdkws.ConversationMsgs {
	entry := &sdkws.ConversationMsgs{ConversationID: id}
	for _, cid := range clientMsgIDs {
		entry.Msgs = append(entry.Msgs, &sdkws.MsgData{ClientMsgID: cid, ContentType: 101})
	}
	return entry
}

func TestMsgData_Unmarshal(t *testing.T) {
	msg := &sdkws.MsgData{
		SendID:           "u1",
		ClientMsgID:      "m1",
		SenderPlatformID: 5,
		ContentType:      101,
		Content:          []byte(`{"content":"hi"}`),
		SendTime:         1763127685000,
		Status:           -1,
		AtUserIDList:     []string{"a", "b"},
	}

	// options (19) is a map the client does not model and must be skipped
	raw := msg.Marshal()
	raw = protowire.AppendTag(raw, 19, protowire.BytesType)
	raw = protowire.AppendBytes(raw, []byte{0x0a, 0x01, 'k', 0x10, 0x01})

	var got sdkws.MsgData
	if err := got.Unmarshal(raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.ClientMsgID != "m1" || got.SendID != "u1" || got.SenderPlatformID != 5 {
		t.Errorf("Unmarshal() identity fields = %+v", got)
	}
	if string(got.Content) != `{"content":"hi"}` {
		t.Errorf("Content = %q", got.Content)
	}
	if got.SendTime != 1763127685000 {
		t.Errorf("SendTime = %d, want 1763127685000", got.SendTime)
	}
	if got.Status != -1 {
		t.Errorf("Status = %d, want -1", got.Status)
	}
	if len(got.AtUserIDList) != 2 || got.AtUserIDList[1] != "b" {
		t.Errorf("AtUserIDList = %v", got.AtUserIDList)
	}
}

func TestPushMessages_PreservesOrder(t *testing.T) {
	batch := &sdkws.PushMessages{
		Msgs:             sdkws.ConversationMap{conv("c2", "m3", "m4"), conv("c1", "m1", "m2")},
		NotificationMsgs: sdkws.ConversationMap{conv("n1", "x1")},
	}

	var got sdkws.PushMessages
	if err := got.Unmarshal(batch.Marshal()); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	var order []string
	for _, entry := range got.Msgs {
		for _, msg := range entry.Msgs {
			order = append(order, entry.ConversationID+"/"+msg.ClientMsgID)
		}
	}
	want := []string{"c2/m3", "c2/m4", "c1/m1", "c1/m2"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
	if got.NotificationMsgs.Count() != 1 || got.NotificationMsgs.Get("n1") == nil {
		t.Errorf("NotificationMsgs = %+v", got.NotificationMsgs)
	}
}

func TestPushMessages_RepeatedKeyReplacesInPlace(t *testing.T) {
	first := &sdkws.PushMessages{Msgs: sdkws.ConversationMap{conv("c1", "old"), conv("c2", "m2")}}
	second := &sdkws.PushMessages{Msgs: sdkws.ConversationMap{conv("c1", "new")}}
	raw := append(first.Marshal(), second.Marshal()...)

	var got sdkws.PushMessages
	if err := got.Unmarshal(raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got.Msgs) != 2 {
		t.Fatalf("len(Msgs) = %d, want 2", len(got.Msgs))
	}
	if got.Msgs[0].ConversationID != "c1" || got.Msgs[0].Msgs[0].ClientMsgID != "new" {
		t.Errorf("Msgs[0] = %+v, want c1 with the later value", got.Msgs[0])
	}
}

func TestPushMessages_Empty(t *testing.T) {
	var got sdkws.PushMessages
	if err := got.Unmarshal(nil); err != nil {
		t.Fatalf("Unmarshal(nil) error = %v", err)
	}
	if !got.Empty() {
		t.Error("Empty() = false for an empty payload")
	}

	withEmptyConv := &sdkws.PushMessages{Msgs: sdkws.ConversationMap{conv("c1")}}
	if err := got.Unmarshal(withEmptyConv.Marshal()); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !got.Empty() {
		t.Error("Empty() = false for a conversation without messages")
	}
}

func TestPushMessages_Truncated(t *testing.T) {
	batch := &sdkws.PushMessages{Msgs: sdkws.ConversationMap{conv("c1", "m1")}}
	raw := batch.Marshal()

	var got sdkws.PushMessages
	if err := got.Unmarshal(raw[:len(raw)-2]); err == nil {
		t.Error("Unmarshal(truncated) error = nil, want error")
	}
}
