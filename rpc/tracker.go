// Package rpc implements the request/response correlator shared by both
// peers: the pending-request tracker (C4), cooperative cancellation
// tokens (C5), and the progress/partial-result collector (C6). None of
// it talks to a transport directly — dispatch wires this package to the
// wire.
package rpc

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lspwire/lspwire/jsonrpc2"
)

// Outcome is what a pending request settles to: exactly one of Result or
// Err is set once Done fires.
type Outcome struct {
	Result json.RawMessage
	Err    error
}

// PendingEntry is a single outstanding outbound request. Its lifetime is
// strictly shorter than the peer's connected state: created on send,
// destroyed on resolve, reject, cancel, timeout, or Clear.
type PendingEntry struct {
	ID       jsonrpc2.ID
	Method   string // read-only once set; lets the dispatcher classify responses for middleware
	Metadata any    // host-supplied, opaque to the tracker

	done   chan Outcome
	once   sync.Once
	cancel *time.Timer
}

// Done returns the channel that receives exactly one Outcome.
func (p *PendingEntry) Done() <-chan Outcome { return p.done }

func (p *PendingEntry) settle(o Outcome) {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel.Stop()
		}
		p.done <- o
		close(p.done)
	})
}

// ErrRequestTimedOut is the error an Outcome carries when a pending
// request's deadline elapses before a response arrives.
var ErrRequestTimedOut = fmt.Errorf("rpc: request timed out")

// ErrCleared is the error every still-pending entry settles with when
// Clear is invoked (typically on disconnect).
var ErrCleared = fmt.Errorf("rpc: connection cleared")

// Tracker correlates outbound requests to inbound responses. It is
// single-owner per peer (one Tracker per dispatcher); a mutex guards the
// entries, since responses are resolved from per-message goroutines and
// timeouts fire on timer goroutines.
type Tracker struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*PendingEntry
	nextID  *atomic.Uint64
}

// NewTracker creates an empty Tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		logger:  logger,
		entries: make(map[string]*PendingEntry),
		nextID:  atomic.NewUint64(0),
	}
}

// Create allocates a fresh id and registers a PendingEntry for it. A
// monotonic counter is used for the id: the tracker only needs per-peer
// uniqueness, so crypto.randomUUID-style global uniqueness would be
// needless overhead (see spec's open question on this).
func (t *Tracker) Create(method string, timeout time.Duration, metadata any) *PendingEntry {
	n := t.nextID.Add(1)
	rawID := jsonrpc2.ID(fmt.Appendf(nil, "%d", n))
	key := string(rawID)

	entry := &PendingEntry{
		ID:       rawID,
		Method:   method,
		Metadata: metadata,
		done:     make(chan Outcome, 1),
	}

	t.mu.Lock()
	t.entries[key] = entry
	t.mu.Unlock()

	if timeout > 0 {
		entry.cancel = time.AfterFunc(timeout, func() {
			t.Reject(rawID, ErrRequestTimedOut)
		})
	}

	return entry
}

// Lookup returns the pending entry for id, if one is still outstanding.
func (t *Tracker) Lookup(id jsonrpc2.ID) (*PendingEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[string(id)]
	return e, ok
}

// Resolve fulfils the pending entry for id with a successful result.
// Unknown ids are a no-op: a late response after timeout/cancel is
// silently discarded, never an error.
func (t *Tracker) Resolve(id jsonrpc2.ID, result json.RawMessage) {
	entry := t.remove(id)
	if entry == nil {
		t.logger.Debug("dropping response for unknown or settled id", zap.ByteString("id", id))
		return
	}
	entry.settle(Outcome{Result: result})
}

// Reject fulfils the pending entry for id with an error. Unknown ids are a
// no-op.
func (t *Tracker) Reject(id jsonrpc2.ID, err error) {
	entry := t.remove(id)
	if entry == nil {
		return
	}
	entry.settle(Outcome{Err: err})
}

func (t *Tracker) remove(id jsonrpc2.ID) *PendingEntry {
	key := string(id)
	t.mu.Lock()
	entry, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return entry
}

// Clear rejects every outstanding entry atomically with err. Invoked on
// disconnect; after Clear, Create may still be called (e.g. by a
// reconnect), producing a fresh generation of entries.
func (t *Tracker) Clear(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*PendingEntry)
	t.mu.Unlock()

	for _, entry := range entries {
		entry.settle(Outcome{Err: err})
	}
}

// Len reports the number of currently outstanding entries. Exposed for
// tests and diagnostics.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
