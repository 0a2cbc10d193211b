// Package peer provides the symmetric client/server facades built on top
// of dispatch.Dispatcher: peer.Server answers requests a language client
// sends and calls back into it (showMessage, publishDiagnostics, dynamic
// registration); peer.Client is the mirror used to drive a language
// server programmatically or in tests. Grounded on the teacher's
// server.Server, generalized to a role-agnostic dispatcher and split so
// both roles share one implementation of the wire plumbing.
package peer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lspwire/lspwire/capability"
	"github.com/lspwire/lspwire/dispatch"
	"github.com/lspwire/lspwire/jsonrpc2"
	"github.com/lspwire/lspwire/lifecycle"
	"github.com/lspwire/lspwire/middleware"
	"github.com/lspwire/lspwire/protocol"
	"github.com/lspwire/lspwire/transport"
)

// Server is an LSP server: it answers requests from a client and may
// itself send requests/notifications back (diagnostics, log/show
// message, dynamic capability registration).
type Server struct {
	d      *dispatch.Dispatcher
	logger *zap.Logger
	tr     transport.Transport

	initParams *protocol.InitializeParams
	buildCaps  func(*Server) protocol.ServerCapabilities
	serverInfo *protocol.ServerInfo
	onExit     func(exitCode int)
}

// NewServer builds a Server, wires its transport, and registers the
// general-lifecycle handlers (initialize/initialized/shutdown/exit) the way
// the teacher's registerDefaultHandlers does, plus the $/lspy/ping heartbeat
// handler. $/cancelRequest and $/progress are handled by the dispatcher
// itself.
func NewServer(opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	tr := o.customTransport
	if tr == nil {
		tr = transport.NewStdio(o.stream, o.logger)
	}

	s := &Server{
		logger:     o.logger,
		tr:         tr,
		serverInfo: &protocol.ServerInfo{Name: "lspwire", Version: "0.1.0"},
		buildCaps:  func(*Server) protocol.ServerCapabilities { return protocol.ServerCapabilities{} },
		onExit:     o.onExit,
	}

	s.d = dispatch.New(dispatch.Config{
		Role:       dispatch.RoleServer,
		Logger:     o.logger,
		Transport:  tr,
		Registry:   capability.New(o.strictDynamicReg),
		Inbound:    middleware.Chain(o.inbound...),
		Outbound:   middleware.Chain(o.outbound...),
		Validators: o.validators,
	})

	s.registerLifecycleHandlers()
	_ = RegisterPingHandler(s.d.Handle)
	_ = s.d.Lifecycle().Transition(lifecycle.Listening, "transport attached")
	return s
}

// SetCapabilities overrides the function used to build ServerCapabilities
// at initialize time. By default the server reports an empty capability
// set; a host application registers its handlers first, then supplies a
// capability builder that inspects what it registered (mirroring the
// teacher's determineServerCapabilities, but host-supplied rather than
// baked in, since lspwire's handler set is domain-agnostic).
func (s *Server) SetCapabilities(fn func(*Server) protocol.ServerCapabilities) {
	s.buildCaps = fn
}

// SetServerInfo overrides the name/version reported in InitializeResult.
func (s *Server) SetServerInfo(info *protocol.ServerInfo) { s.serverInfo = info }

// Handle registers a handler for method. See dispatch.Dispatcher.Handle
// for accepted function signatures.
func (s *Server) Handle(method string, fn any) error { return s.d.Handle(method, fn) }

// Dispatcher exposes the underlying runtime for advanced callers (tests,
// or a host wanting direct access to the tracker/registry).
func (s *Server) Dispatcher() *dispatch.Dispatcher { return s.d }

// InitializeParams returns the params the client sent with `initialize`,
// or nil if initialize hasn't completed yet.
func (s *Server) InitializeParams() *protocol.InitializeParams { return s.initParams }

// TraceLevel returns the trace value the client most recently requested via
// $/setTrace, or the empty string if it never sent one. lspwire does not
// change what it logs based on this value — a host logger consults it.
func (s *Server) TraceLevel() string { return s.d.TraceLevel() }

// Run starts the dispatcher's message loop. Blocks until the connection
// closes or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error { return s.d.Run(ctx) }

func (s *Server) registerLifecycleHandlers() {
	_ = s.d.Handle(protocol.MethodInitialize, s.handleInitialize)
	_ = s.d.Handle(protocol.MethodInitialized, s.handleInitialized)
	_ = s.d.Handle(protocol.MethodShutdown, s.handleShutdown)
	_ = s.d.Handle(protocol.MethodExit, s.handleExit)
}

func (s *Server) handleInitialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	if err := s.d.Lifecycle().Transition(lifecycle.Initializing, "initialize received"); err != nil {
		return nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, "server already initialized or shutting down")
	}
	s.initParams = params
	if params.ClientInfo != nil {
		s.logger.Info("client connected", zap.String("name", params.ClientInfo.Name), zap.String("version", params.ClientInfo.Version))
	}

	return &protocol.InitializeResult{
		Capabilities: s.buildCaps(s),
		ServerInfo:   s.serverInfo,
	}, nil
}

func (s *Server) handleInitialized(ctx context.Context, params *protocol.InitializedParams) error {
	if !s.d.Lifecycle().CompareAndTransition(lifecycle.Initializing, lifecycle.Initialized, "initialized received") {
		s.logger.Warn("initialized notification received in unexpected state", zap.String("state", s.d.Lifecycle().Current().String()))
	}
	return nil
}

func (s *Server) handleShutdown(ctx context.Context) error {
	s.d.Lifecycle().CompareAndTransition(lifecycle.Initialized, lifecycle.ShuttingDown, "shutdown received")
	return nil
}

// handleExit is itself one of the handlers WaitPending counts (its
// goroutine is tracked by Dispatcher.Run before dispatching into
// handleInbound), so it must not block on WaitPending synchronously —
// doing so would wait on its own completion and always time out. The
// drain-and-close sequence runs on its own goroutine instead, started only
// after handleExit returns.
func (s *Server) handleExit(ctx context.Context) {
	wasShutdown := s.d.Lifecycle().Current() == lifecycle.ShuttingDown
	exitCode := 1
	if wasShutdown {
		exitCode = 0
	}
	_ = s.d.Lifecycle().Transition(lifecycle.Exited, "exit received")

	go func() {
		if !s.d.WaitPending(2 * time.Second) {
			s.logger.Warn("timed out waiting for pending handlers during exit")
		}
		_ = s.d.Close()
		if s.onExit != nil {
			s.onExit(exitCode)
		}
	}()
}

// ShowMessage sends window/showMessage, asking the client to surface text
// in its UI. Replaces the teacher's protocol.ShowNotification free
// function with a method on the connection-aware facade.
func (s *Server) ShowMessage(ctx context.Context, level protocol.MessageType, message string) error {
	return s.d.Notify(ctx, protocol.MethodWindowShowMessage, &protocol.ShowMessageParams{Type: level, Message: message})
}

// LogMessage sends window/logMessage.
func (s *Server) LogMessage(ctx context.Context, level protocol.MessageType, message string) error {
	return s.d.Notify(ctx, protocol.MethodWindowLogMessage, &protocol.LogMessageParams{Type: level, Message: message})
}

// PublishDiagnostics sends textDocument/publishDiagnostics for uri.
func (s *Server) PublishDiagnostics(ctx context.Context, uri protocol.DocumentURI, version *int, diags []protocol.Diagnostic) error {
	return s.d.Notify(ctx, protocol.MethodTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI: uri, Version: version, Diagnostics: diags,
	})
}

// RegisterCapability asks the client to dynamically register method,
// blocking until the client answers. On success, the registration is also
// recorded in this server's own capability registry so Supports reflects
// it locally.
func (s *Server) RegisterCapability(ctx context.Context, method string, registerOptions any) (string, error) {
	id := uuid.NewString()
	var raw []byte
	if registerOptions != nil {
		var err error
		raw, err = marshalOrNil(registerOptions)
		if err != nil {
			return "", err
		}
	}

	err := s.d.Call(ctx, protocol.MethodClientRegisterCapability, &protocol.RegistrationParams{
		Registrations: []protocol.Registration{{ID: id, Method: method, RegisterOptions: raw}},
	}, nil)
	if err != nil {
		return "", err
	}

	_ = s.d.Registry().Register(capability.Registration{ID: id, Method: method, Options: raw})
	return id, nil
}

// UnregisterCapability asks the client to remove a previously registered
// capability by id.
func (s *Server) UnregisterCapability(ctx context.Context, id, method string) error {
	err := s.d.Call(ctx, protocol.MethodClientUnregisterCapability, &protocol.UnregistrationParams{
		Unregisterations: []protocol.Unregistration{{ID: id, Method: method}},
	}, nil)
	if err != nil {
		return err
	}
	return s.d.Registry().Unregister([]string{id})
}

// StartHeartbeat begins sending periodic $/lspy/ping requests to the
// client, logging a warning if a round trip exceeds timeout and invoking
// any HeartbeatOption callbacks on responsiveness changes. Stops when ctx
// is cancelled.
func (s *Server) StartHeartbeat(ctx context.Context, interval, timeout time.Duration, opts ...HeartbeatOption) {
	NewHeartbeatMonitor(s.d, s.logger, interval, timeout, opts...).Run(ctx)
}

func marshalOrNil(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
