package middleware

import (
	"context"
	"path"
)

// Filter restricts a scoped middleware to a subset of contexts. A zero
// value matches everything. Methods, if non-empty, accepts exact method
// names or path.Match-style glob patterns (e.g. "textDocument/*").
type Filter struct {
	Methods     []string
	Direction   *Direction
	MessageType *Kind
}

func (f Filter) matches(mc *Context) bool {
	if f.Direction != nil && *f.Direction != mc.Direction {
		return false
	}
	if f.MessageType != nil && *f.MessageType != mc.MessageType {
		return false
	}
	if len(f.Methods) == 0 {
		return true
	}
	for _, pattern := range f.Methods {
		if pattern == mc.Method {
			return true
		}
		if ok, err := path.Match(pattern, mc.Method); err == nil && ok {
			return true
		}
	}
	return false
}

// Scope wraps a core middleware so it only runs for contexts matching
// filter; everything else passes straight through via next().
func Scope(filter Filter, core Middleware) Middleware {
	return func(ctx context.Context, mc *Context, next Next) (ShortCircuit, error) {
		if !filter.matches(mc) {
			return next(ctx, mc)
		}
		return core(ctx, mc, next)
	}
}
