package peer

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/lspwire/lspwire/jsonrpc2"
	"github.com/lspwire/lspwire/middleware"
	"github.com/lspwire/lspwire/transport"
)

// Option configures a Client or Server. Generalized from the teacher's
// server.Option (stream + logger) with middleware and timeout knobs the
// original didn't need.
type Option func(*options)

type options struct {
	stream           io.ReadWriter
	customTransport  transport.Transport
	logger           *zap.Logger
	inbound          []middleware.Middleware
	outbound         []middleware.Middleware
	validators       *jsonrpc2.ValidatorSet
	requestTimeout   time.Duration
	strictDynamicReg bool
	onExit           func(exitCode int)
}

func defaultOptions() *options {
	return &options{
		stream:         stdioReadWriter{os.Stdin, os.Stdout},
		logger:         zap.NewNop(),
		requestTimeout: 30 * time.Second,
	}
}

// WithStream sets the raw byte stream a Stdio transport frames messages
// over. Mutually exclusive with WithTransport; the last one applied wins.
func WithStream(rw io.ReadWriter) Option {
	return func(o *options) {
		o.stream = rw
		o.customTransport = nil
	}
}

// WithTransport supplies a prebuilt transport.Transport directly (e.g. an
// in-memory transport.Pipe for tests), bypassing stdio framing entirely.
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.customTransport = t }
}

// WithLogger sets the structured logger used throughout the connection.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInboundMiddleware appends middleware run (in order) on every
// inbound message before it reaches a handler or resolves a pending
// request.
func WithInboundMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.inbound = append(o.inbound, mws...) }
}

// WithOutboundMiddleware appends middleware run (in order) on every
// outbound message before it's written to the transport.
func WithOutboundMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.outbound = append(o.outbound, mws...) }
}

// WithValidators installs a jsonrpc2.ValidatorSet consulted before an
// inbound request's params are unmarshalled by its handler.
func WithValidators(v *jsonrpc2.ValidatorSet) Option {
	return func(o *options) { o.validators = v }
}

// WithRequestTimeout records a default deadline for outbound requests in
// the options. NewClient and NewServer do not pass it on to the
// dispatcher, so requests made through Call use dispatch.DefaultRequestTimeout
// whatever value is set here.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithStrictDynamicRegistration rejects a client/registerCapability call
// for a method the peer never declared among its static capabilities.
func WithStrictDynamicRegistration() Option {
	return func(o *options) { o.strictDynamicReg = true }
}

// WithOnExit registers the callback invoked once a Server has finished
// draining in-flight handlers after receiving `exit`, with the host exit
// code the LSP spec prescribes (0 if `shutdown` was answered first, 1
// otherwise). lspwire never calls os.Exit itself — a host embedding a
// Server in its own process (tests, an in-process pair) must not be killed
// out from under it; a standalone server binary supplies this callback to
// actually terminate.
func WithOnExit(fn func(exitCode int)) Option {
	return func(o *options) { o.onExit = fn }
}

// stdioReadWriter combines stdin/stdout into one io.ReadWriter, mirroring
// the teacher's server.ReadWriter helper.
type stdioReadWriter struct {
	io.Reader
	io.Writer
}

func (rw stdioReadWriter) Close() error {
	var errR, errW error
	if c, ok := rw.Reader.(io.Closer); ok {
		errR = c.Close()
	}
	if c, ok := rw.Writer.(io.Closer); ok {
		errW = c.Close()
	}
	if errR != nil {
		return errR
	}
	return errW
}
