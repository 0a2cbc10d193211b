package peer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lspwire/lspwire/capability"
	"github.com/lspwire/lspwire/dispatch"
	"github.com/lspwire/lspwire/jsonrpc2"
	"github.com/lspwire/lspwire/lifecycle"
	"github.com/lspwire/lspwire/lspwireerr"
	"github.com/lspwire/lspwire/middleware"
	"github.com/lspwire/lspwire/protocol"
	"github.com/lspwire/lspwire/rpc"
	"github.com/lspwire/lspwire/transport"
)

// Client drives a language server: it sends `initialize`, issues
// requests, and answers the dynamic registration requests and heartbeat
// pings the server sends back. Other server-initiated methods are answered
// only once a handler is registered with Handle.
type Client struct {
	d      *dispatch.Dispatcher
	logger *zap.Logger
	tr     transport.Transport

	initResult *protocol.InitializeResult
}

// NewClient builds a Client and registers handlers for
// client/registerCapability, client/unregisterCapability and the
// $/lspy/ping heartbeat. $/progress, $/cancelRequest and $/setTrace are
// handled by the dispatcher itself. window/showMessage, window/logMessage,
// textDocument/publishDiagnostics and window/workDoneProgress/create have
// no handler until one is registered with Handle.
func NewClient(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	tr := o.customTransport
	if tr == nil {
		tr = transport.NewStdio(o.stream, o.logger)
	}

	c := &Client{logger: o.logger, tr: tr}
	c.d = dispatch.New(dispatch.Config{
		Role:       dispatch.RoleClient,
		Logger:     o.logger,
		Transport:  tr,
		Registry:   capability.New(o.strictDynamicReg),
		Inbound:    middleware.Chain(o.inbound...),
		Outbound:   middleware.Chain(o.outbound...),
		Validators: o.validators,
	})

	_ = c.d.Handle(protocol.MethodClientRegisterCapability, c.handleRegisterCapability)
	_ = c.d.Handle(protocol.MethodClientUnregisterCapability, c.handleUnregisterCapability)
	_ = RegisterPingHandler(c.d.Handle)
	_ = c.d.Lifecycle().Transition(lifecycle.Connecting, "transport attached")
	return c
}

// Dispatcher exposes the underlying runtime.
func (c *Client) Dispatcher() *dispatch.Dispatcher { return c.d }

// TraceLevel returns the trace value most recently set via SetTrace, or the
// empty string if it's never been called.
func (c *Client) TraceLevel() string { return c.d.TraceLevel() }

// SetTrace sends $/setTrace to the server and records the level locally so
// TraceLevel reflects what was requested.
func (c *Client) SetTrace(ctx context.Context, value protocol.TraceValue) error {
	c.d.SetTraceLevel(string(value))
	return c.d.Notify(ctx, protocol.MethodSetTrace, &protocol.SetTraceParams{Value: value})
}

// Handle registers an additional handler, e.g. window/showMessageRequest
// or workspace/applyEdit, beyond the ones NewClient wires automatically.
func (c *Client) Handle(method string, fn any) error { return c.d.Handle(method, fn) }

// Run starts the dispatcher's message loop.
func (c *Client) Run(ctx context.Context) error { return c.d.Run(ctx) }

// Initialize performs the initialize/initialized handshake: sends
// `initialize` with params, stores the server's declared capabilities in
// this client's registry, then sends `initialized`.
func (c *Client) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	if err := c.d.Lifecycle().Transition(lifecycle.Initializing, "sending initialize"); err != nil {
		return nil, err
	}

	var result protocol.InitializeResult
	if err := c.d.Call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		_ = c.d.Lifecycle().Transition(lifecycle.Disconnected, "initialize failed")
		return nil, err
	}
	c.initResult = &result
	c.declareStaticCapabilities(result.Capabilities)

	if err := c.d.Notify(ctx, protocol.MethodInitialized, &protocol.InitializedParams{}); err != nil {
		return nil, err
	}
	if !c.d.Lifecycle().CompareAndTransition(lifecycle.Initializing, lifecycle.Initialized, "handshake complete") {
		return nil, fmt.Errorf("peer: unexpected lifecycle state completing handshake: %s", c.d.Lifecycle().Current())
	}
	return &result, nil
}

func (c *Client) declareStaticCapabilities(caps protocol.ServerCapabilities) {
	reg := c.d.Registry()
	if caps.TextDocumentSync != nil {
		reg.DeclareStatic(protocol.MethodTextDocumentDidOpen)
		reg.DeclareStatic(protocol.MethodTextDocumentDidChange)
		reg.DeclareStatic(protocol.MethodTextDocumentDidClose)
	}
	if caps.HoverProvider != nil {
		reg.DeclareStatic(protocol.MethodTextDocumentHover)
	}
	if caps.CompletionProvider != nil {
		reg.DeclareStatic(protocol.MethodTextDocumentCompletion)
	}
	if caps.DefinitionProvider != nil {
		reg.DeclareStatic(protocol.MethodTextDocumentDefinition)
	}
}

// Shutdown sends `shutdown` then `exit`, the graceful termination
// sequence the LSP spec requires of a client ending a session.
func (c *Client) Shutdown(ctx context.Context) error {
	if err := c.d.Call(ctx, protocol.MethodShutdown, nil, nil); err != nil {
		return err
	}
	_ = c.d.Lifecycle().CompareAndTransition(lifecycle.Initialized, lifecycle.ShuttingDown, "shutdown acknowledged")
	if err := c.d.Notify(ctx, protocol.MethodExit, nil); err != nil {
		return err
	}
	_ = c.d.Lifecycle().Transition(lifecycle.Exited, "exit sent")
	return c.d.Close()
}

// Call issues an arbitrary request to the server with the default
// timeout, decoding the result into result (which may be nil).
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	return c.d.Call(ctx, method, params, result)
}

// CallCancellable issues a request with an explicit timeout and returns
// its PendingEntry, whose ID can be passed to Dispatcher().CancelCall to
// send `$/cancelRequest` before the response arrives.
func (c *Client) CallCancellable(ctx context.Context, method string, params any, timeout time.Duration) (*rpc.PendingEntry, error) {
	source := rpc.NewCancelSource()
	return c.d.CallAsync(ctx, method, params, dispatch.CallOptions{Timeout: timeout, Cancel: source})
}

// Notify sends a notification to the server.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	return c.d.Notify(ctx, method, params)
}

func (c *Client) handleRegisterCapability(ctx context.Context, params *protocol.RegistrationParams) error {
	for _, reg := range params.Registrations {
		if err := c.d.Registry().Register(capability.Registration{ID: reg.ID, Method: reg.Method, Options: reg.RegisterOptions}); err != nil {
			return jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
		}
	}
	return nil
}

func (c *Client) handleUnregisterCapability(ctx context.Context, params *protocol.UnregistrationParams) error {
	ids := make([]string, 0, len(params.Unregisterations))
	for _, u := range params.Unregisterations {
		ids = append(ids, u.ID)
	}
	if err := c.d.Registry().Unregister(ids); err != nil {
		return lspwireerr.AsWireError(err)
	}
	return nil
}
