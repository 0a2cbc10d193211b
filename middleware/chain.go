package middleware

import (
	"context"

	"github.com/lspwire/lspwire/jsonrpc2"
)

// Chain composes an ordered list of Middleware into a single Middleware
// that dispatches them in order: m1 runs, calls next() which enters m2,
// down to whatever terminal step the caller supplies as the innermost
// Next. After next() returns, middlewares unwind in reverse — for two
// middlewares A, B around a terminal H, the observable order is
// A:before, B:before, H, B:after, A:after.
func Chain(mws ...Middleware) Middleware {
	switch len(mws) {
	case 0:
		return func(ctx context.Context, mc *Context, next Next) (ShortCircuit, error) {
			return next(ctx, mc)
		}
	case 1:
		return mws[0]
	}

	return func(ctx context.Context, mc *Context, terminal Next) (ShortCircuit, error) {
		return runFrom(ctx, mc, mws, 0, terminal)
	}
}

func runFrom(ctx context.Context, mc *Context, mws []Middleware, i int, terminal Next) (ShortCircuit, error) {
	if i >= len(mws) {
		return terminal(ctx, mc)
	}
	next := func(ctx context.Context, mc *Context) (ShortCircuit, error) {
		return runFrom(ctx, mc, mws, i+1, terminal)
	}
	return guardID(mc, func() (ShortCircuit, error) { return mws[i](ctx, mc, next) })
}

// guardID enforces that a single middleware step does not mutate the
// message's id. mc.id itself has no setter, but mc.Message is the concrete
// jsonrpc2 struct, whose ID field IS exported and mutable — this is the
// path a misbehaving middleware would actually use, so it's the one the
// post-check watches.
func guardID(mc *Context, step func() (ShortCircuit, error)) (ShortCircuit, error) {
	before := string(mc.ID())
	sc, err := step()
	after := string(currentID(mc.Message))
	if before != after {
		return ShortCircuit{}, &PipelineViolation{Method: mc.Method, Want: before, Got: after}
	}
	return sc, err
}

func currentID(msg jsonrpc2.Message) jsonrpc2.ID {
	switch m := msg.(type) {
	case *jsonrpc2.RequestMessage:
		return m.ID
	case *jsonrpc2.ResponseMessage:
		return m.ID
	default:
		return nil
	}
}

// Run traverses chain starting from mc, ending at terminal. It is the
// entry point dispatch uses for both the inbound and outbound pipelines.
func Run(ctx context.Context, chain Middleware, mc *Context, terminal Next) (ShortCircuit, error) {
	if chain == nil {
		return terminal(ctx, mc)
	}
	return guardID(mc, func() (ShortCircuit, error) { return chain(ctx, mc, terminal) })
}
