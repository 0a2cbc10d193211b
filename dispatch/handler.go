package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/lspwire/lspwire/jsonrpc2"
)

// Sender is the minimal surface a handler needs to talk back to the peer
// on the other end of the connection, without depending on the concrete
// peer.Client/peer.Server type (that would be an import cycle: peer
// depends on dispatch, not the other way around).
type Sender interface {
	Notify(ctx context.Context, method string, params any) error
	Call(ctx context.Context, method string, params any, result any) error
}

// typedHandler wraps a user function, remembering enough reflect.Type
// metadata to unmarshal params and assemble the call without the caller
// having to do any of that bookkeeping by hand. Grounded on the teacher's
// reflection-based handler dispatch, generalized so the second optional
// argument is the dispatch.Sender interface instead of a concrete
// *jsonrpc2.Conn.
type typedHandler struct {
	fn          any
	paramType   reflect.Type
	takesSender bool
	takesParams bool
}

func newTypedHandler(fn any) (*typedHandler, error) {
	paramType, takesSender, takesParams, err := validateHandlerFunc(fn)
	if err != nil {
		return nil, err
	}
	return &typedHandler{fn: fn, paramType: paramType, takesSender: takesSender, takesParams: takesParams}, nil
}

func (h *typedHandler) invoke(ctx context.Context, sender Sender, params json.RawMessage) (result any, err error) {
	var paramsPtr any

	if h.takesParams && h.paramType != nil {
		paramsValue := reflect.New(h.paramType)
		paramsPtr = paramsValue.Interface()
		if len(params) > 0 && string(params) != "null" {
			if uErr := json.Unmarshal(params, paramsPtr); uErr != nil {
				return nil, jsonrpc2.NewErrorf(jsonrpc2.InvalidParams, "failed to unmarshal params: %v", uErr)
			}
		}
	} else if len(params) > 0 && string(params) != "null" {
		return nil, jsonrpc2.NewError(jsonrpc2.InvalidParams, "method received unexpected parameters")
	}

	handlerFunc := reflect.ValueOf(h.fn)
	funcType := handlerFunc.Type()
	args := []reflect.Value{reflect.ValueOf(ctx)}

	idx := 1
	if h.takesSender {
		if sender == nil {
			args = append(args, reflect.Zero(funcType.In(idx)))
		} else {
			args = append(args, reflect.ValueOf(sender))
		}
		idx++
	}
	if h.takesParams {
		paramArgType := funcType.In(idx)
		paramValue := reflect.ValueOf(paramsPtr)
		if paramArgType.Kind() != reflect.Ptr {
			args = append(args, paramValue.Elem())
		} else {
			args = append(args, paramValue)
		}
		idx++
	}

	if funcType.NumIn() != len(args) {
		return nil, fmt.Errorf("dispatch: argument count mismatch calling handler: expected %d, got %d", funcType.NumIn(), len(args))
	}

	results := handlerFunc.Call(args)

	var resVal any
	var resErr error
	switch len(results) {
	case 1:
		if e, ok := results[0].Interface().(error); ok {
			resErr = e
		} else {
			resVal = results[0].Interface()
		}
	case 2:
		switch r := results[0]; r.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			if !r.IsNil() {
				resVal = r.Interface()
			}
		default:
			resVal = r.Interface()
		}
		if !results[1].IsNil() {
			resErr, _ = results[1].Interface().(error)
		}
	}
	return resVal, resErr
}

// validateHandlerFunc accepts func(ctx) [, Sender] [, *Params] (result, error)
// in any combination permitted by the teacher's signature rules: context is
// mandatory and first, Sender and params are each optional (in that order),
// and the return is 0, 1 (result or error), or 2 (result, error) values.
func validateHandlerFunc(fn any) (paramType reflect.Type, takesSender bool, takesParams bool, err error) {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		err = fmt.Errorf("dispatch: handler must be a function")
		return
	}
	if t.NumIn() < 1 || t.In(0) != reflect.TypeOf((*context.Context)(nil)).Elem() {
		err = fmt.Errorf("dispatch: handler must accept context.Context as first argument")
		return
	}

	idx := 1
	senderType := reflect.TypeOf((*Sender)(nil)).Elem()
	if t.NumIn() > idx && t.In(idx) == senderType {
		takesSender = true
		idx++
	}

	if t.NumIn() > idx {
		pt := t.In(idx)
		if pt.Kind() == reflect.Ptr {
			paramType = pt.Elem()
		} else {
			paramType = pt
		}
		takesParams = true
		idx++
	}

	if t.NumIn() > idx {
		err = fmt.Errorf("dispatch: handler has too many arguments (max context, [Sender], [params])")
		return
	}

	if t.NumOut() > 2 {
		err = fmt.Errorf("dispatch: handler has too many return values (max result, error)")
		return
	}
	errType := reflect.TypeOf((*error)(nil)).Elem()
	if t.NumOut() == 2 && !t.Out(1).Implements(errType) {
		err = fmt.Errorf("dispatch: handler's second return value must be error")
		return
	}
	if t.NumOut() == 1 && t.Out(0).Implements(errType) {
		// sole return is the error; no result type to unmarshal into.
	}
	return
}
