package session

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/omochice/openim-session/pkg/protocol"
)

type response struct {
	data []byte
	err  error
}

type waiter struct {
	reqID  protocol.ReqIdentifier
	sentAt time.Time
	result chan response
}

// pendingTable maps msgIncr to the request waiting for it.
type pendingTable struct {
	mu      sync.Mutex
	waiters map[string]*waiter
	closed  bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{waiters: make(map[string]*waiter)}
}

func (t *pendingTable) register(msgIncr string, reqID protocol.ReqIdentifier) (*waiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrSessionClosed
	}
	if _, ok := t.waiters[msgIncr]; ok {
		return nil, errors.Errorf("msgIncr %s already in flight", msgIncr)
	}
	w := &waiter{reqID: reqID, sentAt: time.Now(), result: make(chan response, 1)}
	t.waiters[msgIncr] = w
	return w, nil
}

// complete hands the result to the waiter registered under msgIncr and
// removes it. It returns nil when nothing was waiting.
func (t *pendingTable) complete(msgIncr string, data []byte, err error) *waiter {
	t.mu.Lock()
	w, ok := t.waiters[msgIncr]
	if ok {
		delete(t.waiters, msgIncr)
	}
	t.mu.Unlock()

	if !ok {
		return nil
	}
	w.result <- response{data: data, err: err}
	return w
}

func (t *pendingTable) remove(msgIncr string) {
	t.mu.Lock()
	delete(t.waiters, msgIncr)
	t.mu.Unlock()
}

// failAll completes every waiter with err and rejects later registrations.
func (t *pendingTable) failAll(err error) int {
	t.mu.Lock()
	waiters := t.waiters
	t.waiters = make(map[string]*waiter)
	t.closed = true
	t.mu.Unlock()

	for _, w := range waiters {
		w.result <- response{err: err}
	}
	return len(waiters)
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
