package peer

import (
	"context"
	"fmt"
	"sync"
)

// NotificationWaiter collects notifications for a set of methods until a
// predicate is satisfied or a timeout elapses. Useful in tests and
// scripted clients that need to block until a server-sent notification
// (e.g. textDocument/publishDiagnostics for a specific URI) arrives,
// without hand-rolling a channel per call site.
type NotificationWaiter struct {
	mu       sync.Mutex
	received []waitedNotification
	signal   chan struct{}
}

type waitedNotification struct {
	Method string
	Params any
}

// NewNotificationWaiter creates an empty waiter.
func NewNotificationWaiter() *NotificationWaiter {
	return &NotificationWaiter{signal: make(chan struct{}, 1)}
}

// Record appends one observed notification and wakes any blocked Wait.
// Intended to be called from a handler registered via Client.Handle /
// Server.Handle for the methods of interest.
func (w *NotificationWaiter) Record(method string, params any) {
	w.mu.Lock()
	w.received = append(w.received, waitedNotification{Method: method, Params: params})
	w.mu.Unlock()
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Wait blocks until pred returns true for some recorded notification, or
// ctx is cancelled. Returns the params of the first match.
func (w *NotificationWaiter) Wait(ctx context.Context, pred func(method string, params any) bool) (any, error) {
	for {
		if params, ok := w.firstMatch(pred); ok {
			return params, nil
		}
		select {
		case <-w.signal:
			continue
		case <-ctx.Done():
			return nil, fmt.Errorf("peer: timed out waiting for notification: %w", ctx.Err())
		}
	}
}

func (w *NotificationWaiter) firstMatch(pred func(method string, params any) bool) (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, n := range w.received {
		if pred(n.Method, n.Params) {
			return n.Params, true
		}
	}
	return nil, false
}

// All returns the method names of every notification recorded so far, in
// recording order.
func (w *NotificationWaiter) All() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.received))
	for _, n := range w.received {
		out = append(out, n.Method)
	}
	return out
}
