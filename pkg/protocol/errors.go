package protocol

import "github.com/pkg/errors"

// Decode failures. None of them is fatal to a session: the offending frame
// is dropped and reading continues.
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown message type")
	ErrPayloadDecode  = errors.New("payload decode failed")
)
