package protocol_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/omochice/openim-session/pkg/protocol"
	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

func TestEnvelope_EncodeDataIsBase64(t *testing.T) {
	env := protocol.Envelope{
		ReqIdentifier: protocol.WSGetNewestSeq,
		Token:         "tok",
		SendID:        "u1",
		OperationID:   "1700000000000",
		MsgIncr:       "1",
		Data:          []byte{0x00, 0xff, 0x10},
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if raw["data"] != "AP8Q" {
		t.Errorf("data = %v, want %q", raw["data"], "AP8Q")
	}
	if raw["reqIdentifier"] != float64(1001) {
		t.Errorf("reqIdentifier = %v, want 1001", raw["reqIdentifier"])
	}
}

func TestEnvelope_EncodeNilDataIsEmptyString(t *testing.T) {
	env := protocol.Envelope{ReqIdentifier: protocol.WSGetNewestSeq}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(string(data), `"data":""`) {
		t.Errorf("Encode() = %s, want data encoded as empty string", data)
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	frame := `{"reqIdentifier":1003,"token":"t","sendID":"u1","operationID":"op","msgIncr":"7","errCode":0,"errMsg":"","data":"aGk="}`

	env, err := protocol.DecodeFrame([]byte(frame), false)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if string(env.Data) != "hi" {
		t.Errorf("Data = %q, want %q", env.Data, "hi")
	}

	out, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(out) != frame {
		t.Errorf("Encode(Decode(frame)) = %s, want %s", out, frame)
	}
}

func TestEnvelope_EmptyDataDecodesToZeroLength(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"empty string", `{"reqIdentifier":2002,"data":""}`},
		{"missing field", `{"reqIdentifier":2002}`},
		{"null", `{"reqIdentifier":2002,"data":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := protocol.DecodeFrame([]byte(tt.frame), false)
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if env.Data == nil {
				t.Error("Data is nil, want zero-length slice")
			}
			if len(env.Data) != 0 {
				t.Errorf("len(Data) = %d, want 0", len(env.Data))
			}
		})
	}
}

func TestDecodeFrame_GzipBinary(t *testing.T) {
	env := protocol.Envelope{ReqIdentifier: protocol.WSPushMsg, MsgIncr: "", Data: []byte("payload")}
	plain, _ := env.Encode()
	compressed, err := protocol.Deflate(plain)
	if err != nil {
		t.Fatalf("Deflate() error = %v", err)
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"compressed", compressed},
		{"uncompressed binary", plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.DecodeFrame(tt.raw, true)
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if got.ReqIdentifier != protocol.WSPushMsg {
				t.Errorf("ReqIdentifier = %v, want %v", got.ReqIdentifier, protocol.WSPushMsg)
			}
			if string(got.Data) != "payload" {
				t.Errorf("Data = %q, want %q", got.Data, "payload")
			}
		})
	}
}

func TestDecodeFrame_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		binary  bool
		wantErr error
	}{
		{"truncated gzip", []byte{0x1f, 0x8b, 0x00}, true, protocol.ErrMalformedFrame},
		{"not json", []byte("hello"), false, protocol.ErrMalformedFrame},
		{"bad base64", []byte(`{"reqIdentifier":2001,"data":"!!!"}`), false, protocol.ErrMalformedFrame},
		{"unknown type", []byte(`{"reqIdentifier":4242,"data":""}`), false, protocol.ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.DecodeFrame(tt.raw, tt.binary)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeFrame() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMaybeInflate(t *testing.T) {
	input := bytes.Repeat([]byte("abc"), 100)
	compressed, err := protocol.Deflate(input)
	if err != nil {
		t.Fatalf("Deflate() error = %v", err)
	}
	if !protocol.IsGzip(compressed) {
		t.Fatal("Deflate() output does not start with gzip magic")
	}

	got, err := protocol.MaybeInflate(compressed)
	if err != nil {
		t.Fatalf("MaybeInflate() error = %v", err)
	}
	if !bytes.Equal(got, input) {
		t.Error("MaybeInflate(Deflate(x)) != x")
	}

	passthrough, err := protocol.MaybeInflate([]byte("{}"))
	if err != nil || string(passthrough) != "{}" {
		t.Errorf("MaybeInflate(plain) = %q, %v; want unchanged", passthrough, err)
	}
}

func TestMaybeInflateLimit(t *testing.T) {
	bomb, err := protocol.Deflate(make([]byte, 1<<20))
	if err != nil {
		t.Fatalf("Deflate() error = %v", err)
	}

	tests := []struct {
		name    string
		limit   int64
		wantErr bool
	}{
		{"under limit", 2 << 20, false},
		{"exactly at limit", 1 << 20, false},
		{"over limit", 1024, true},
		{"zero means default", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := protocol.MaybeInflateLimit(bomb, tt.limit)
			if tt.wantErr {
				if !errors.Is(err, protocol.ErrMalformedFrame) {
					t.Errorf("MaybeInflateLimit() error = %v, want ErrMalformedFrame", err)
				}
				return
			}
			if err != nil || len(out) != 1<<20 {
				t.Errorf("MaybeInflateLimit() = %d bytes, %v", len(out), err)
			}
		})
	}
}

func TestDecodeFrameLimit_OversizedPush(t *testing.T) {
	raw, err := (&protocol.Envelope{ReqIdentifier: protocol.WSPushMsg, Data: make([]byte, 4096)}).Encode()
	if err != nil {
		t.Fatal(err)
	}
	compressed, err := protocol.Deflate(raw)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := protocol.DecodeFrameLimit(compressed, true, 512); !errors.Is(err, protocol.ErrMalformedFrame) {
		t.Errorf("DecodeFrameLimit() error = %v, want ErrMalformedFrame", err)
	}
	if _, err := protocol.DecodeFrameLimit(compressed, true, int64(len(raw))); err != nil {
		t.Errorf("DecodeFrameLimit() at size error = %v", err)
	}
}

func TestDecodePush(t *testing.T) {
	batch := &sdkws.PushMessages{
		Msgs: sdkws.ConversationMap{
			{ConversationID: "c1", PullMsgs: sdkws.PullMsgs{Msgs: []*sdkws.MsgData{{ClientMsgID: "m1", Content: []byte("hi")}}}},
		},
	}

	push, err := protocol.DecodePush(&protocol.Envelope{ReqIdentifier: protocol.WSPushMsg, Data: batch.Marshal()})
	if err != nil {
		t.Fatalf("DecodePush() error = %v", err)
	}
	if push.Messages == nil || push.Messages.Msgs.Count() != 1 {
		t.Fatalf("DecodePush() messages = %+v, want one message", push.Messages)
	}

	_, err = protocol.DecodePush(&protocol.Envelope{ReqIdentifier: protocol.WSPushMsg, Data: []byte{0x0a, 0x05, 0x01}})
	if !errors.Is(err, protocol.ErrPayloadDecode) {
		t.Errorf("DecodePush(garbage) error = %v, want ErrPayloadDecode", err)
	}

	kick, err := protocol.DecodePush(&protocol.Envelope{ReqIdentifier: protocol.WSKickOnlineMsg, Data: []byte{}})
	if err != nil || kick.Type != protocol.WSKickOnlineMsg {
		t.Errorf("DecodePush(kick) = %+v, %v", kick, err)
	}

	_, err = protocol.DecodePush(&protocol.Envelope{ReqIdentifier: protocol.WSSendMsg})
	if !errors.Is(err, protocol.ErrUnknownType) {
		t.Errorf("DecodePush(response type) error = %v, want ErrUnknownType", err)
	}
}

func TestDecodeHandshake(t *testing.T) {
	ok, err := protocol.DecodeHandshake([]byte(`{"errCode":0,"errMsg":"","errDlt":""}`))
	if err != nil {
		t.Fatalf("DecodeHandshake() error = %v", err)
	}
	if !ok.OK() {
		t.Error("OK() = false, want true")
	}

	rejected, err := protocol.DecodeHandshake([]byte(`{"errCode":1501,"errMsg":"token expired","errDlt":"detail"}`))
	if err != nil {
		t.Fatalf("DecodeHandshake() error = %v", err)
	}
	if rejected.OK() || rejected.ErrCode != 1501 || rejected.ErrDlt != "detail" {
		t.Errorf("DecodeHandshake() = %+v", rejected)
	}

	if _, err := protocol.DecodeHandshake([]byte("nope")); !errors.Is(err, protocol.ErrMalformedFrame) {
		t.Errorf("DecodeHandshake(garbage) error = %v, want ErrMalformedFrame", err)
	}
}
