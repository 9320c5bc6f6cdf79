package sdkws_test

import (
	"os"
	"regexp"
	"slices"
	"strconv"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

var fieldNumber = regexp.MustCompile(`=\s*(\d+);`)

// schemaFields returns the field numbers declared for message name.
func schemaFields(t *testing.T, schema, name string) []protowire.Number {
	t.Helper()
	block := regexp.MustCompile(`(?s)\nmessage ` + name + ` \{(.*?)\n\}`).FindStringSubmatch(schema)
	if block == nil {
		t.Fatalf("message %s not found in sdkws.proto", name)
	}
	var nums []protowire.Number
	for _, m := range fieldNumber.FindAllStringSubmatch(block[1], -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			t.Fatal(err)
		}
		nums = append(nums, protowire.Number(n))
	}
	slices.Sort(nums)
	return nums
}

// wireFields returns the distinct top-level field numbers present in b.
func wireFields(t *testing.T, b []byte) []protowire.Number {
	t.Helper()
	var nums []protowire.Number
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			t.Fatalf("bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			t.Fatalf("bad field %d: %v", num, protowire.ParseError(m))
		}
		b = b[m:]
		if !slices.Contains(nums, num) {
			nums = append(nums, num)
		}
	}
	slices.Sort(nums)
	return nums
}

func TestSchemaMatchesEncoders(t *testing.T) {
	raw, err := os.ReadFile("sdkws.proto")
	if err != nil {
		t.Fatalf("Failed to read schema: %v", err)
	}
	schema := string(raw)

	full := &sdkws.MsgData{
		SendID: "u1", RecvID: "u2", GroupID: "g1", ClientMsgID: "c1", ServerMsgID: "s1",
		SenderPlatformID: 5, SenderNickname: "alice", SenderFaceURL: "http://face",
		SessionType: 1, MsgFrom: 100, ContentType: 101, Content: []byte("x"),
		Seq: 1, SendTime: 2, CreateTime: 3, Status: 2, IsRead: true,
		AtUserIDList: []string{"u3"}, AttachedInfo: "a", Ex: "e",
	}
	batch := sdkws.ConversationMap{conv("si_u1_u2", "c1")}

	tests := []struct {
		name string
		data []byte
	}{
		{"MsgData", full.Marshal()},
		{"PushMessages", (&sdkws.PushMessages{Msgs: batch, NotificationMsgs: batch}).Marshal()},
		{"GetMaxSeqReq", (&sdkws.GetMaxSeqReq{UserID: "u1"}).Marshal()},
		{"GetMaxSeqResp", (&sdkws.GetMaxSeqResp{MaxSeqs: map[string]int64{"a": 1}, MinSeqs: map[string]int64{"a": 1}}).Marshal()},
		{"PullMessageBySeqsReq", (&sdkws.PullMessageBySeqsReq{UserID: "u1", SeqRanges: []*sdkws.SeqRange{{ConversationID: "a", Begin: 1, End: 2, Num: 2}}, Order: sdkws.PullOrderDesc}).Marshal()},
		{"PullMessageBySeqsResp", (&sdkws.PullMessageBySeqsResp{Msgs: batch, NotificationMsgs: batch}).Marshal()},
		{"SendMsgResp", (&sdkws.SendMsgResp{ServerMsgID: "s1", ClientMsgID: "c1", SendTime: 1}).Marshal()},
		{"ConversationsReq", (&sdkws.ConversationsReq{UserID: "u1", ConversationIDs: []string{"a"}}).Marshal()},
		{"ConvMaxReadSeqResp", (&sdkws.ConvMaxReadSeqResp{Seqs: map[string]sdkws.Seqs{"a": {MaxSeq: 1}}}).Marshal()},
		{"LastMessageResp", (&sdkws.LastMessageResp{Msgs: map[string]*sdkws.MsgData{"a": full}}).Marshal()},
		{"SetAppBackgroundStatusReq", (&sdkws.SetAppBackgroundStatusReq{UserID: "u1", IsBackground: true}).Marshal()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := schemaFields(t, schema, tt.name)
			if got := wireFields(t, tt.data); !slices.Equal(got, want) {
				t.Errorf("encoded fields = %v, schema declares %v", got, want)
			}
		})
	}
}
