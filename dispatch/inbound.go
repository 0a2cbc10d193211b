package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/lspwire/lspwire/jsonrpc2"
	"github.com/lspwire/lspwire/lspwireerr"
	"github.com/lspwire/lspwire/middleware"
	"github.com/lspwire/lspwire/rpc"
)

// handleInbound classifies one raw body and routes it to the matching
// handler, in the teacher's handleMessage/handleRequest/handleNotification
// style, generalized across both requests, notifications, and — since
// this dispatcher is symmetric — responses to our own outbound requests.
// It recovers a handler panic into an error so Run's errgroup actually has
// something to propagate instead of the goroutine taking the process down.
func (d *Dispatcher) handleInbound(ctx context.Context, body json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: handler panic: %v", r)
		}
	}()

	msg, cErr := jsonrpc2.Classify(body)
	if cErr != nil {
		d.handleClassifyError(ctx, cErr)
		return nil
	}

	switch m := msg.(type) {
	case *jsonrpc2.RequestMessage:
		d.handleRequest(ctx, m)
	case *jsonrpc2.NotificationMessage:
		d.handleNotification(ctx, m)
	case *jsonrpc2.ResponseMessage:
		d.handleResponse(ctx, m)
	}
	return nil
}

func (d *Dispatcher) handleClassifyError(ctx context.Context, err error) {
	protoErr, ok := err.(*jsonrpc2.ProtocolError)
	if !ok || !protoErr.HasRecoveredID() {
		d.logger.Warn("dropping unclassifiable message", zap.Error(err))
		return
	}
	code := protoErr.Code
	if code == 0 {
		code = jsonrpc2.InvalidRequest
	}
	d.writeResponse(ctx, protoErr.RecoveredID, nil, jsonrpc2.NewError(code, protoErr.Reason))
}

func (d *Dispatcher) handleRequest(ctx context.Context, req *jsonrpc2.RequestMessage) {
	if !d.lifecycle.AllowsInbound(req.Method, d.role == RoleServer) {
		d.writeResponse(ctx, req.ID, nil, jsonrpc2.NewErrorf(jsonrpc2.ServerNotInitialized,
			"method %s not permitted in state %s", req.Method, d.lifecycle.Current()))
		return
	}

	if d.validators != nil {
		if err := d.validators.Validate(req.Method, req.Params); err != nil {
			d.writeResponse(ctx, req.ID, nil, jsonrpc2.NewErrorf(jsonrpc2.InvalidParams, "%v", err))
			return
		}
	}

	source := rpc.NewCancelSource()
	untrack := d.trackInflight(req.ID, source)
	defer untrack()
	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	source.Token().Subscribe(cancel)

	mc := middleware.NewContext(d.peerDirection(), middleware.KindRequest, req.Method, req, jsonrpc2.ID(req.ID), "")
	terminal := func(ctx context.Context, mc *middleware.Context) (middleware.ShortCircuit, error) {
		handler, found := d.lookup(req.Method)
		if !found {
			return middleware.ShortCircuit{}, jsonrpc2.NewErrorf(jsonrpc2.MethodNotFound, "method not found: %s", req.Method)
		}
		result, err := handler.invoke(handlerCtx, d, req.Params)
		if err != nil {
			return middleware.ShortCircuit{}, &lspwireerr.HandlerError{Method: req.Method, Err: err}
		}
		raw, merr := json.Marshal(result)
		if merr != nil {
			return middleware.ShortCircuit{}, jsonrpc2.NewErrorf(jsonrpc2.InternalError, "failed to marshal result: %v", merr)
		}
		return middleware.ShortCircuit{Active: true, Response: raw}, nil
	}

	sc, err := middleware.Run(ctx, d.inbound, mc, terminal)
	if err != nil {
		d.writeResponse(ctx, req.ID, nil, toErrorObject(err))
		return
	}
	if sc.Error != nil {
		d.writeResponse(ctx, req.ID, nil, sc.Error)
		return
	}
	d.writeResponse(ctx, req.ID, sc.Response, nil)
}

func (d *Dispatcher) handleNotification(ctx context.Context, n *jsonrpc2.NotificationMessage) {
	if n.Method == "$/cancelRequest" {
		d.handleCancelNotification(n.Params)
		return
	}
	if n.Method == "$/progress" {
		d.handleProgressNotification(n.Params)
		return
	}
	if n.Method == "$/setTrace" {
		d.handleSetTraceNotification(n.Params)
		return
	}

	if !d.lifecycle.AllowsInbound(n.Method, false) {
		d.logger.Debug("dropping notification in current lifecycle state",
			zap.String("method", n.Method), zap.String("state", d.lifecycle.Current().String()))
		return
	}

	mc := middleware.NewContext(d.peerDirection(), middleware.KindNotification, n.Method, n, nil, "")
	terminal := func(ctx context.Context, mc *middleware.Context) (middleware.ShortCircuit, error) {
		handler, found := d.lookup(n.Method)
		if !found {
			return middleware.ShortCircuit{}, nil
		}
		_, err := handler.invoke(ctx, d, n.Params)
		return middleware.ShortCircuit{}, err
	}

	if _, err := middleware.Run(ctx, d.inbound, mc, terminal); err != nil {
		d.logger.Warn("notification handler error", zap.String("method", n.Method), zap.Error(err))
	}
}

func (d *Dispatcher) handleResponse(ctx context.Context, resp *jsonrpc2.ResponseMessage) {
	method := ""
	if entry, ok := d.tracker.Lookup(jsonrpc2.ID(resp.ID)); ok {
		method = entry.Method
	}
	mc := middleware.NewContext(d.peerDirection(), middleware.KindResponse, method, resp, jsonrpc2.ID(resp.ID), "")
	terminal := func(ctx context.Context, mc *middleware.Context) (middleware.ShortCircuit, error) {
		if resp.Error != nil {
			d.tracker.Reject(resp.ID, resp.Error)
		} else {
			d.tracker.Resolve(resp.ID, resp.Result)
		}
		return middleware.ShortCircuit{}, nil
	}
	if _, err := middleware.Run(ctx, d.inbound, mc, terminal); err != nil {
		d.logger.Warn("response middleware error", zap.Error(err))
	}
}

// handleCancelNotification answers an inbound $/cancelRequest: it cancels
// the CancelSource tracked for the named id's still-running handler
// invocation (see trackInflight), letting a well-behaved handler observe
// ctx.Done() and return early. A miss is not an error — the handler may
// have already finished.
func (d *Dispatcher) handleCancelNotification(params json.RawMessage) {
	var p struct {
		ID jsonrpc2.ID `json:"id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		d.logger.Debug("malformed $/cancelRequest params", zap.Error(err))
		return
	}
	d.cancelInflight(p.ID)
}

func (d *Dispatcher) handleProgressNotification(params json.RawMessage) {
	var p struct {
		Token json.RawMessage `json:"token"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		d.logger.Debug("malformed $/progress params", zap.Error(err))
		return
	}
	d.progress.Deliver(p.Token, p.Value)
}

func (d *Dispatcher) handleSetTraceNotification(params json.RawMessage) {
	var p struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		d.logger.Debug("malformed $/setTrace params", zap.Error(err))
		return
	}
	d.SetTraceLevel(p.Value)
}

func toErrorObject(err error) *jsonrpc2.ErrorObject {
	return lspwireerr.AsWireError(err)
}

func (d *Dispatcher) writeResponse(ctx context.Context, id jsonrpc2.ID, result json.RawMessage, errObj *jsonrpc2.ErrorObject) {
	if len(id) == 0 || string(id) == "null" {
		return
	}
	var resp *jsonrpc2.ResponseMessage
	if errObj != nil {
		resp = jsonrpc2.NewErrorResponse(id, errObj)
	} else {
		if result == nil {
			result = json.RawMessage("null")
		}
		var err error
		resp, err = jsonrpc2.NewSuccessResponse(id, result)
		if err != nil {
			resp = jsonrpc2.NewErrorResponse(id, jsonrpc2.NewErrorf(jsonrpc2.InternalError, "failed to marshal result: %v", err))
		}
	}
	body, err := jsonrpc2.Encode(resp)
	if err != nil {
		d.logger.Error("failed to encode response", zap.Error(err))
		return
	}
	if err := d.transport.Send(ctx, body); err != nil {
		d.logger.Warn("failed to send response", zap.Error(err))
	}
}
