package rpc

import (
	"sync"

	"go.uber.org/atomic"
)

// CancelToken is handed to an inbound request handler so it can
// cooperatively observe cancellation. Handlers are expected to check
// Cancelled or select on Done; the runtime never force-aborts a handler.
type CancelToken struct {
	source *CancelSource
}

// Cancelled reports whether the token's source has fired.
func (t *CancelToken) Cancelled() bool { return t.source.cancelled.Load() }

// Done returns a channel closed once the token is cancelled. Safe to
// select on before or after cancellation; if already cancelled it is
// already closed.
func (t *CancelToken) Done() <-chan struct{} { return t.source.done }

// Subscribe registers fn to run when the token is cancelled. If the token
// is already cancelled, fn runs synchronously before Subscribe returns.
func (t *CancelToken) Subscribe(fn func()) { t.source.subscribe(fn) }

// CancelSource owns a one-shot cancellation flag for a single in-flight
// request. Cancelling is idempotent; subscribers registered after
// cancellation are invoked synchronously, matching the spec's token
// semantics.
type CancelSource struct {
	cancelled *atomic.Bool
	done      chan struct{}
	once      sync.Once

	mu   sync.Mutex
	subs []func()
}

// NewCancelSource creates an un-cancelled source.
func NewCancelSource() *CancelSource {
	return &CancelSource{
		cancelled: atomic.NewBool(false),
		done:      make(chan struct{}),
	}
}

// Token returns the CancelToken view handed to handlers.
func (s *CancelSource) Token() *CancelToken { return &CancelToken{source: s} }

// Cancel fires the source. Idempotent: only the first call has effect.
func (s *CancelSource) Cancel() {
	s.once.Do(func() {
		s.cancelled.Store(true)
		close(s.done)
		s.mu.Lock()
		subs := s.subs
		s.subs = nil
		s.mu.Unlock()
		for _, fn := range subs {
			fn()
		}
	})
}

// Cancelled reports whether Cancel has been called.
func (s *CancelSource) Cancelled() bool { return s.cancelled.Load() }

func (s *CancelSource) subscribe(fn func()) {
	s.mu.Lock()
	if s.cancelled.Load() {
		s.mu.Unlock()
		fn()
		return
	}
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}
