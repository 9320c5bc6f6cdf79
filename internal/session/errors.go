package session

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTransportFailed matches every *TransportError.
	ErrTransportFailed = errors.New("transport failed")
	// ErrTimeout is returned when a request's deadline passes before its response.
	ErrTimeout = errors.New("request timed out")
	// ErrSessionClosed completes requests outstanding at shutdown and
	// rejects requests made after it.
	ErrSessionClosed = errors.New("session closed")
	// ErrBusy is returned when the outbound queue is full.
	ErrBusy = errors.New("outbound queue full")
	// ErrNotRunning is returned by Request before the handshake completes.
	ErrNotRunning = errors.New("session not running")
	// ErrAlreadyStarted is returned by a second call to Run.
	ErrAlreadyStarted = errors.New("session already started")
)

// TransportError is a connect, read or write failure. Fatal to the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransportFailed) true.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransportFailed
}

// ServerError is a non-zero errCode carried by a response.
type ServerError struct {
	Code int32
	Msg  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Msg)
}

// HandshakeRejectedError is returned by Run when the gateway refuses the
// session in its first frame.
type HandshakeRejectedError struct {
	Code   int32
	Msg    string
	Detail string
}

func (e *HandshakeRejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("handshake rejected %d: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("handshake rejected %d: %s (%s)", e.Code, e.Msg, e.Detail)
}
