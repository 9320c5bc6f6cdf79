package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/omochice/openim-session/pkg/protocol/sdkws"
)

// Envelope is the JSON wrapper shared by requests, responses and pushes.
// Data is base64 on the wire; encoding/json handles that for []byte.
type Envelope struct {
	ReqIdentifier ReqIdentifier `json:"reqIdentifier"`
	Token         string        `json:"token"`
	SendID        string        `json:"sendID"`
	OperationID   string        `json:"operationID"`
	MsgIncr       string        `json:"msgIncr"`
	ErrCode       int32         `json:"errCode"`
	ErrMsg        string        `json:"errMsg"`
	Data          []byte        `json:"data"`
}

// Encode serializes the envelope. A nil Data is written as "" rather than null.
func (e *Envelope) Encode() ([]byte, error) {
	out := *e
	if out.Data == nil {
		out.Data = []byte{}
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode envelope")
	}
	return data, nil
}

// Decode parses a JSON envelope. Missing or empty data decodes to a
// zero-length slice, never nil.
func (e *Envelope) Decode(data []byte) error {
	if err := json.Unmarshal(data, e); err != nil {
		return errors.WithMessagef(ErrMalformedFrame, "envelope json: %v", err)
	}
	if e.Data == nil {
		e.Data = []byte{}
	}
	return nil
}

// DecodeFrame turns an inbound websocket payload into an envelope. Binary
// frames are inflated first when they carry the gzip magic.
func DecodeFrame(raw []byte, binary bool) (*Envelope, error) {
	return DecodeFrameLimit(raw, binary, DefaultMaxFrameSize)
}

// DecodeFrameLimit is DecodeFrame with an explicit cap on the inflated size.
func DecodeFrameLimit(raw []byte, binary bool, maxSize int64) (*Envelope, error) {
	payload := raw
	if binary {
		inflated, err := MaybeInflateLimit(raw, maxSize)
		if err != nil {
			return nil, err
		}
		payload = inflated
	}

	env := &Envelope{}
	if err := env.Decode(payload); err != nil {
		return nil, err
	}
	if !env.ReqIdentifier.Known() {
		return env, errors.WithMessagef(ErrUnknownType, "reqIdentifier %d", int32(env.ReqIdentifier))
	}
	return env, nil
}

// Push is a decoded server-initiated payload.
type Push struct {
	Type     ReqIdentifier
	Messages *sdkws.PushMessages // set for WSPushMsg only
}

// DecodePush decodes the data of a push-type envelope.
func DecodePush(env *Envelope) (*Push, error) {
	p := &Push{Type: env.ReqIdentifier}
	switch env.ReqIdentifier {
	case WSPushMsg:
		msgs := &sdkws.PushMessages{}
		if err := msgs.Unmarshal(env.Data); err != nil {
			return nil, errors.WithMessagef(ErrPayloadDecode, "push messages: %v", err)
		}
		p.Messages = msgs
	case WSKickOnlineMsg, WSLogoutMsg, WSSetBackgroundStatus:
	default:
		return nil, errors.WithMessagef(ErrUnknownType, "not a push type: %s", env.ReqIdentifier)
	}
	return p, nil
}
