package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Handshake is the first frame the gateway sends after the upgrade.
type Handshake struct {
	ErrCode int32  `json:"errCode"`
	ErrMsg  string `json:"errMsg"`
	ErrDlt  string `json:"errDlt"`
}

// OK reports whether the gateway accepted the session.
func (h *Handshake) OK() bool {
	return h.ErrCode == 0
}

// Encode serializes the handshake frame.
func (h *Handshake) Encode() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode handshake")
	}
	return data, nil
}

// DecodeHandshake parses the handshake frame. Compressed frames are accepted.
func DecodeHandshake(raw []byte) (*Handshake, error) {
	payload, err := MaybeInflate(raw)
	if err != nil {
		return nil, err
	}
	h := &Handshake{}
	if err := json.Unmarshal(payload, h); err != nil {
		return nil, errors.WithMessagef(ErrMalformedFrame, "handshake json: %v", err)
	}
	return h, nil
}
