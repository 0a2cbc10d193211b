// Package middleware implements the bidirectional interception pipeline:
// an ordered list of functions wrapping a terminal step (a handler
// invocation or an outbound write) with before/after hooks and optional
// short-circuiting.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lspwire/lspwire/jsonrpc2"
)

// Direction is which way a message is travelling through the pipeline.
type Direction int

const (
	// ClientToServer: outbound from a client, or inbound at a server.
	ClientToServer Direction = iota
	// ServerToClient: outbound from a server, or inbound at a client.
	ServerToClient
)

func (d Direction) String() string {
	if d == ClientToServer {
		return "clientToServer"
	}
	return "serverToClient"
}

// Kind is the JSON-RPC message kind passing through the pipeline.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindNotification
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Context is the per-message value threaded through a pipeline traversal.
// id is intentionally unexported with only a getter: the pipeline detects
// id mutation across a traversal and fails with PipelineViolation, so no
// middleware may reassign it.
type Context struct {
	Direction   Direction
	MessageType Kind
	Method      string
	Message     jsonrpc2.Message
	Transport   string // string tag identifying the transport, for logging/metrics
	Metadata    map[string]any

	id jsonrpc2.ID
}

// NewContext builds a Context, capturing id as the immutable value the
// pipeline will verify is unchanged at the end of the traversal.
func NewContext(dir Direction, kind Kind, method string, msg jsonrpc2.Message, id jsonrpc2.ID, transportTag string) *Context {
	return &Context{
		Direction:   dir,
		MessageType: kind,
		Method:      method,
		Message:     msg,
		Transport:   transportTag,
		Metadata:    make(map[string]any),
		id:          id,
	}
}

// ID returns the message's id; read-only by construction.
func (c *Context) ID() jsonrpc2.ID { return c.id }

// ShortCircuit is returned by a middleware that wants to skip the
// remainder of the pipeline (and, for requests, the handler or the wire).
// For an inbound request, a non-nil Response or Error answers the request
// directly, skipping the handler. For an outbound request, the request is
// never sent and its awaitable resolves from this payload instead.
type ShortCircuit struct {
	Active   bool
	Response json.RawMessage
	Error    *jsonrpc2.ErrorObject
}

// Next invokes the remainder of the chain (the next middleware, or the
// terminal step). It returns the ShortCircuit produced by whichever step
// short-circuited, or whatever the terminal step returned if the chain ran
// to completion.
type Next func(ctx context.Context, mc *Context) (ShortCircuit, error)

// Middleware intercepts a message context with a continuation. Calling
// next() enters the rest of the chain; code after the call to next() runs
// on the way back out (LIFO unwind).
type Middleware func(ctx context.Context, mc *Context, next Next) (ShortCircuit, error)

// PipelineViolation reports a middleware that mutated message.id, detected
// by comparing the id captured at traversal start to the id on the
// Context's Message after every step.
type PipelineViolation struct {
	Method string
	Want   string
	Got    string
}

func (e *PipelineViolation) Error() string {
	return fmt.Sprintf("middleware: id mutated for method %q (want %s, got %s)", e.Method, e.Want, e.Got)
}
