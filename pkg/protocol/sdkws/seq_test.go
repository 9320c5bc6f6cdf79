package sdkws_test

import (
	"testing"

	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

func TestGetMaxSeqResp_Unmarshal(t *testing.T) {
	resp := &sdkws.GetMaxSeqResp{
		MaxSeqs: map[string]int64{"si_u1_u2": 42, "sg_g1": 7},
		MinSeqs: map[string]int64{"si_u1_u2": 1},
	}

	var got sdkws.GetMaxSeqResp
	if err := got.Unmarshal(resp.Marshal()); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.MaxSeqs["si_u1_u2"] != 42 || got.MaxSeqs["sg_g1"] != 7 {
		t.Errorf("MaxSeqs = %v", got.MaxSeqs)
	}
	if got.MinSeqs["si_u1_u2"] != 1 {
		t.Errorf("MinSeqs = %v", got.MinSeqs)
	}
}

func TestPullMessageBySeqsReq_Unmarshal(t *testing.T) {
	req := &sdkws.PullMessageBySeqsReq{
		UserID: "u1",
		SeqRanges: []*sdkws.SeqRange{
			{ConversationID: "c1", Begin: 1, End: 20, Num: 20},
			{ConversationID: "c2", Begin: 5, End: 6, Num: 2},
		},
		Order: sdkws.PullOrderDesc,
	}

	var got sdkws.PullMessageBySeqsReq
	if err := got.Unmarshal(req.Marshal()); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.UserID != "u1" || got.Order != sdkws.PullOrderDesc || len(got.SeqRanges) != 2 {
		t.Fatalf("Unmarshal() = %+v", got)
	}
	if *got.SeqRanges[1] != *req.SeqRanges[1] {
		t.Errorf("SeqRanges[1] = %+v, want %+v", *got.SeqRanges[1], *req.SeqRanges[1])
	}
}

func TestConvMaxReadSeqResp_Unmarshal(t *testing.T) {
	resp := &sdkws.ConvMaxReadSeqResp{Seqs: map[string]sdkws.Seqs{
		"c1": {MaxSeq: 10, HasReadSeq: 8, MaxSeqTime: 1700000000000},
	}}

	var got sdkws.ConvMaxReadSeqResp
	if err := got.Unmarshal(resp.Marshal()); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Seqs["c1"] != resp.Seqs["c1"] {
		t.Errorf("Seqs[c1] = %+v, want %+v", got.Seqs["c1"], resp.Seqs["c1"])
	}
}

func TestLastMessageResp_Unmarshal(t *testing.T) {
	resp := &sdkws.LastMessageResp{Msgs: map[string]*sdkws.MsgData{
		"c1": {ClientMsgID: "m9", Seq: 9},
	}}

	var got sdkws.LastMessageResp
	if err := got.Unmarshal(resp.Marshal()); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg := got.Msgs["c1"]; msg == nil || msg.ClientMsgID != "m9" || msg.Seq != 9 {
		t.Errorf("Msgs[c1] = %+v", got.Msgs["c1"])
	}
}
