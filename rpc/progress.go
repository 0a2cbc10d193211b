package rpc

import (
	"encoding/json"
	"sync"
)

// ProgressToken is the string|integer token correlating `$/progress`
// notifications with a parent request. Kept as json.RawMessage so either
// wire shape round-trips without coercion.
type ProgressToken = json.RawMessage

// ProgressResult is what a partial-result-enabled request resolves to:
// the ordered partials received before the final response, plus whichever
// of FinalResult/Cancelled applies.
type ProgressResult struct {
	Cancelled      bool
	PartialResults []json.RawMessage
	FinalResult    json.RawMessage
}

// progressBucket accumulates partials for one token in arrival order.
type progressBucket struct {
	mu       sync.Mutex
	partials []json.RawMessage
	onValue  func(json.RawMessage)
}

// ProgressCollector maps progress tokens to buckets, started when a
// partial-enabled request is sent and ended on response or cancellation.
// Buckets whose owning request never existed, or whose owner already
// ended, are dropped silently — orphan progress is not an error.
type ProgressCollector struct {
	mu      sync.Mutex
	buckets map[string]*progressBucket
}

// NewProgressCollector creates an empty collector.
func NewProgressCollector() *ProgressCollector {
	return &ProgressCollector{buckets: make(map[string]*progressBucket)}
}

// Open starts a bucket for token, registering onValue to be invoked with
// each new partial as it arrives. onValue may be nil if the caller only wants the final ordered
// list from End.
func (c *ProgressCollector) Open(token ProgressToken, onValue func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets[string(token)] = &progressBucket{onValue: onValue}
}

// Deliver routes an inbound `$/progress` value to the bucket for token, in
// arrival order. Reports false if no bucket exists for token (orphan
// progress, dropped by the caller without error).
func (c *ProgressCollector) Deliver(token ProgressToken, value json.RawMessage) bool {
	c.mu.Lock()
	bucket, ok := c.buckets[string(token)]
	c.mu.Unlock()
	if !ok {
		return false
	}

	bucket.mu.Lock()
	bucket.partials = append(bucket.partials, value)
	onValue := bucket.onValue
	bucket.mu.Unlock()

	if onValue != nil {
		onValue(value)
	}
	return true
}

// End closes the bucket for token and returns its accumulated partials in
// arrival order. A second End for the same token returns an empty list —
// tokens do not outlive their request.
func (c *ProgressCollector) End(token ProgressToken) []json.RawMessage {
	c.mu.Lock()
	bucket, ok := c.buckets[string(token)]
	if ok {
		delete(c.buckets, string(token))
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	return bucket.partials
}

// IsOpen reports whether a bucket is currently tracking token. Exposed for
// tests.
func (c *ProgressCollector) IsOpen(token ProgressToken) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.buckets[string(token)]
	return ok
}
