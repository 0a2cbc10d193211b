// Package dispatch wires together jsonrpc2, transport, rpc, middleware,
// lifecycle, and capability into the runtime each peer facade embeds: it
// owns the transport attachment, the inbound/outbound middleware
// traversal, the handler registry, and outbound request correlation.
// Grounded on the teacher's server.Server — handleMessage/handleRequest/
// handleNotification/Run generalize to both roles here, and typedHandler
// keeps the teacher's reflection dispatch almost verbatim.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lspwire/lspwire/capability"
	"github.com/lspwire/lspwire/jsonrpc2"
	"github.com/lspwire/lspwire/lifecycle"
	"github.com/lspwire/lspwire/middleware"
	"github.com/lspwire/lspwire/rpc"
	"github.com/lspwire/lspwire/transport"
)

// Role fixes which middleware.Direction this dispatcher's inbound
// traffic travels in; outbound traffic travels the opposite way.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// DefaultRequestTimeout is applied to outbound requests made through Call.
// CallRaw and CallAsync use the Timeout in their CallOptions instead (zero
// means no deadline).
const DefaultRequestTimeout = 30 * time.Second

// Dispatcher is the shared runtime embedded by peer.Client and
// peer.Server. It is safe for concurrent use.
type Dispatcher struct {
	role      Role
	logger    *zap.Logger
	transport transport.Transport
	tracker   *rpc.Tracker
	lifecycle *lifecycle.Machine
	registry  *capability.Registry
	progress  *rpc.ProgressCollector
	validators *jsonrpc2.ValidatorSet

	inbound  middleware.Middleware
	outbound middleware.Middleware

	mu       sync.RWMutex
	handlers map[string]*typedHandler

	traceMu sync.RWMutex
	trace   string

	inflightMu sync.Mutex
	inflight   map[string]*rpc.CancelSource

	pending sync.WaitGroup

	disposeMu sync.Mutex
	disposers []transport.Disposer

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Config bundles the collaborators a Dispatcher needs. Zero-value fields
// get a sane default (no-op logger, fresh tracker/registry/collector, a
// strict-off capability registry).
type Config struct {
	Role       Role
	Logger     *zap.Logger
	Transport  transport.Transport
	Lifecycle  *lifecycle.Machine
	Registry   *capability.Registry
	Inbound    middleware.Middleware
	Outbound   middleware.Middleware
	Validators *jsonrpc2.ValidatorSet
}

func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lc := cfg.Lifecycle
	if lc == nil {
		role := lifecycle.RoleServer
		if cfg.Role == RoleClient {
			role = lifecycle.RoleClient
		}
		lc = lifecycle.New(role, logger)
	}
	reg := cfg.Registry
	if reg == nil {
		reg = capability.New(false)
	}
	return &Dispatcher{
		role:       cfg.Role,
		logger:     logger,
		transport:  cfg.Transport,
		tracker:    rpc.NewTracker(logger),
		lifecycle:  lc,
		registry:   reg,
		progress:   rpc.NewProgressCollector(),
		validators: cfg.Validators,
		inbound:    cfg.Inbound,
		outbound:   cfg.Outbound,
		handlers:   make(map[string]*typedHandler),
		inflight:   make(map[string]*rpc.CancelSource),
		closeCh:    make(chan struct{}),
	}
}

// Lifecycle exposes the connection's state machine.
func (d *Dispatcher) Lifecycle() *lifecycle.Machine { return d.lifecycle }

// Registry exposes the capability registry tracked for this connection.
func (d *Dispatcher) Registry() *capability.Registry { return d.registry }

// Progress exposes the partial-result collector.
func (d *Dispatcher) Progress() *rpc.ProgressCollector { return d.progress }

// SetTraceLevel records the trace level the peer most recently requested
// via $/setTrace. It does not alter logging verbosity itself — a host
// consults TraceLevel and decides what, if anything, to do with it.
func (d *Dispatcher) SetTraceLevel(v string) {
	d.traceMu.Lock()
	d.trace = v
	d.traceMu.Unlock()
}

// TraceLevel returns the most recently requested trace level, or the empty
// string if $/setTrace has never been received.
func (d *Dispatcher) TraceLevel() string {
	d.traceMu.RLock()
	defer d.traceMu.RUnlock()
	return d.trace
}

// Handle registers fn for method. fn must match one of the signatures
// validateHandlerFunc accepts. Re-registering a method replaces the prior
// handler (unlike the teacher, which errors on re-registration) — dynamic
// registration means a peer legitimately re-binds a method over its
// lifetime.
func (d *Dispatcher) Handle(method string, fn any) error {
	h, err := newTypedHandler(fn)
	if err != nil {
		return fmt.Errorf("dispatch: registering %s: %w", method, err)
	}
	d.mu.Lock()
	d.handlers[method] = h
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) lookup(method string) (*typedHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[method]
	return h, ok
}

// trackInflight registers a CancelSource for an inbound request's id so a
// later $/cancelRequest naming that id can reach the handler invocation
// actually running it. Returns a function that must be called once the
// handler returns, removing the bookkeeping entry.
func (d *Dispatcher) trackInflight(id jsonrpc2.ID, source *rpc.CancelSource) func() {
	key := string(id)
	d.inflightMu.Lock()
	d.inflight[key] = source
	d.inflightMu.Unlock()
	return func() {
		d.inflightMu.Lock()
		delete(d.inflight, key)
		d.inflightMu.Unlock()
	}
}

// cancelInflight cancels the CancelSource registered for id, if a handler
// invocation for it is still running. A miss (already finished, or unknown
// id) is not an error: cancellation racing completion is normal.
func (d *Dispatcher) cancelInflight(id jsonrpc2.ID) {
	d.inflightMu.Lock()
	source, ok := d.inflight[string(id)]
	d.inflightMu.Unlock()
	if ok {
		source.Cancel()
	}
}

// myDirection is the direction traffic travels when IT originates from
// this dispatcher (outbound); peerDirection is the direction inbound
// traffic travels.
func (d *Dispatcher) myDirection() middleware.Direction {
	if d.role == RoleClient {
		return middleware.ClientToServer
	}
	return middleware.ServerToClient
}

func (d *Dispatcher) peerDirection() middleware.Direction {
	if d.role == RoleClient {
		return middleware.ServerToClient
	}
	return middleware.ClientToServer
}

// Run attaches to the transport and processes inbound messages until the
// transport closes or ctx is cancelled. Each message is handled on its own
// goroutine, tracked both by an errgroup (so a handler panic turned error
// by handleInbound's recover propagates into Run's return value and
// cancels gctx for every other in-flight handler) and by a plain WaitGroup
// (so WaitPending can drain in-flight handlers during a graceful exit
// without waiting on errgroup's all-or-nothing semantics).
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	disposeMsg := d.transport.SubscribeMessage(func(body json.RawMessage) {
		d.pending.Add(1)
		g.Go(func() error {
			defer d.pending.Done()
			return d.handleInbound(gctx, body)
		})
	})
	disposeErr := d.transport.SubscribeError(func(err error) {
		d.logger.Warn("transport error", zap.Error(err))
	})

	closed := make(chan error, 1)
	disposeClose := d.transport.SubscribeClose(func(cause error) {
		select {
		case closed <- cause:
		default:
		}
	})

	d.disposeMu.Lock()
	d.disposers = append(d.disposers, disposeMsg, disposeErr, disposeClose)
	d.disposeMu.Unlock()

	select {
	case <-ctx.Done():
		_ = d.transport.Close()
	case <-closed:
	}

	handlerErr := g.Wait()
	d.tracker.Clear(rpc.ErrCleared)

	if err := ctx.Err(); err != nil {
		return err
	}
	return handlerErr
}

// WaitPending blocks until every in-flight handler goroutine returns, or
// timeout elapses. Mirrors the teacher's handleExit pendingReqs.Wait with
// a bounded timeout so exit is never indefinitely stalled by a stuck
// handler.
func (d *Dispatcher) WaitPending(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close tears down the transport and rejects every outstanding request.
// Idempotent.
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.closeCh)
		err = d.transport.Close()
		d.tracker.Clear(rpc.ErrCleared)
	})
	return err
}
