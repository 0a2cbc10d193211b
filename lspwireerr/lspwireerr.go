// Package lspwireerr collects the runtime's error taxonomy behind a single
// set of exported types, so a host catching an error from dispatch, rpc,
// middleware, lifecycle, or capability can type-switch or errors.As against
// one stable set instead of reaching into each collaborator package. Every
// type here wraps (or can unwrap to) a *jsonrpc2.ErrorObject, the shape
// that actually crosses the wire when an error answers a request.
package lspwireerr

import (
	"errors"
	"fmt"

	"github.com/lspwire/lspwire/capability"
	"github.com/lspwire/lspwire/jsonrpc2"
	"github.com/lspwire/lspwire/lifecycle"
	"github.com/lspwire/lspwire/middleware"
	"github.com/lspwire/lspwire/rpc"
)

// TransportError reports a failure in the underlying message channel
// itself (closed connection, write failure) rather than in any particular
// message. Grounded on transport.ErrClosed, which it wraps for transport
// failures surfaced above the transport package.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("lspwire: transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// FramingError reports a failure decoding the Content-Length-framed byte
// stream: a missing header, an oversize declared length, or a body that
// didn't parse as JSON. Wraps jsonrpc2.MalformedJSONError,
// jsonrpc2.OversizeMessageError, or jsonrpc2.ErrMissingContentLength.
type FramingError struct {
	Err error
}

func (e *FramingError) Error() string { return fmt.Sprintf("lspwire: framing: %v", e.Err) }
func (e *FramingError) Unwrap() error  { return e.Err }

// ProtocolError reports an inbound body that didn't classify as a
// request, notification, or response. Wraps *jsonrpc2.ProtocolError,
// which already carries a recovered id when one could be read.
type ProtocolError struct {
	Err *jsonrpc2.ProtocolError
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("lspwire: protocol: %v", e.Err) }
func (e *ProtocolError) Unwrap() error  { return e.Err }

// ToWire renders the underlying protocol error as a JSON-RPC error object,
// using the protocol error's own Code if one was set, InvalidRequest
// otherwise.
func (e *ProtocolError) ToWire() *jsonrpc2.ErrorObject {
	code := e.Err.Code
	if code == 0 {
		code = jsonrpc2.InvalidRequest
	}
	return jsonrpc2.NewError(code, e.Err.Reason)
}

// HandlerError wraps an error a registered handler returned, tagging it
// with the method that produced it. The dispatcher wraps every handler
// error this way; ToWire passes a *jsonrpc2.ErrorObject through and turns
// anything else into InternalError.
type HandlerError struct {
	Method string
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("lspwire: handler %s: %v", e.Method, e.Err)
}
func (e *HandlerError) Unwrap() error { return e.Err }

// ToWire renders the handler error as a JSON-RPC error object: the
// handler's own error object if it returned one directly, InternalError
// otherwise.
func (e *HandlerError) ToWire() *jsonrpc2.ErrorObject {
	var eo *jsonrpc2.ErrorObject
	if errors.As(e.Err, &eo) {
		return eo
	}
	return jsonrpc2.NewErrorf(jsonrpc2.InternalError, "%v", e.Err)
}

// ErrRequestCancelled is returned to a caller whose outbound request was
// cancelled locally (via Dispatcher.CancelCall) before a response arrived.
// Distinct from rpc.ErrCleared, which fires on disconnect instead.
var ErrRequestCancelled = errors.New("lspwire: request cancelled")

// ErrRequestTimedOut re-exports rpc.ErrRequestTimedOut under this
// package's taxonomy so callers need only import lspwireerr to check for
// it with errors.Is.
var ErrRequestTimedOut = rpc.ErrRequestTimedOut

// PipelineViolation re-exports *middleware.PipelineViolation, the error
// produced when a middleware mutates a message's id mid-traversal.
type PipelineViolation = middleware.PipelineViolation

// LifecycleError re-exports *lifecycle.Error, produced by an illegal state
// transition attempt (e.g. calling Client.Initialize a second time).
type LifecycleError = lifecycle.Error

// RegistrationError re-exports *capability.RegistrationError, produced by
// Registry.Unregister naming one or more unknown ids.
type RegistrationError = capability.RegistrationError

// AsWireError converts any error from this taxonomy (or a bare
// *jsonrpc2.ErrorObject) into the error object that should cross the wire
// in a response. Unrecognized errors fall back to InternalError, never
// leaking an internal Go error string's implementation detail beyond its
// Error() text.
func AsWireError(err error) *jsonrpc2.ErrorObject {
	if err == nil {
		return nil
	}

	var eo *jsonrpc2.ErrorObject
	if errors.As(err, &eo) {
		return eo
	}

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.ToWire()
	}
	var handlerErr *HandlerError
	if errors.As(err, &handlerErr) {
		return handlerErr.ToWire()
	}
	var regErr *capability.RegistrationError
	if errors.As(err, &regErr) {
		return regErr.ToWire()
	}
	var lcErr *lifecycle.Error
	if errors.As(err, &lcErr) {
		return jsonrpc2.NewError(jsonrpc2.InvalidRequest, lcErr.Error())
	}

	switch {
	case errors.Is(err, ErrRequestTimedOut):
		return jsonrpc2.NewError(jsonrpc2.InternalError, err.Error())
	case errors.Is(err, ErrRequestCancelled):
		return jsonrpc2.NewError(jsonrpc2.RequestCancelled, err.Error())
	default:
		return jsonrpc2.NewErrorf(jsonrpc2.InternalError, "%v", err)
	}
}
