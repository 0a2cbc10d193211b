package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lspwire/lspwire/jsonrpc2"
	"github.com/lspwire/lspwire/lspwireerr"
	"github.com/lspwire/lspwire/middleware"
	"github.com/lspwire/lspwire/rpc"
)

// Notify sends a notification with no expectation of a reply. Implements
// Sender, so handlers can call back to the peer without depending on the
// concrete peer.Client/peer.Server type.
func (d *Dispatcher) Notify(ctx context.Context, method string, params any) error {
	ntf, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return err
	}

	mc := middleware.NewContext(d.myDirection(), middleware.KindNotification, method, ntf, nil, "")
	terminal := func(ctx context.Context, mc *middleware.Context) (middleware.ShortCircuit, error) {
		return middleware.ShortCircuit{}, d.send(ctx, mc.Message)
	}
	sc, err := middleware.Run(ctx, d.outbound, mc, terminal)
	if err != nil {
		return err
	}
	if sc.Active {
		return nil
	}
	return nil
}

// CallOptions bundles the optional knobs a request can carry beyond method
// and params: a timeout, a CancelSource the caller can later trigger to send
// $/cancelRequest, and a partial-result token that arms the progress
// collector for the life of the call.
type CallOptions struct {
	Timeout       time.Duration
	Cancel        *rpc.CancelSource
	ProgressToken rpc.ProgressToken
}

// Call sends a request and blocks until a response arrives, ctx is
// cancelled, or the request times out. If result is non-nil the decoded
// result is unmarshalled into it.
func (d *Dispatcher) Call(ctx context.Context, method string, params any, result any) error {
	res, err := d.CallRaw(ctx, method, params, CallOptions{Timeout: DefaultRequestTimeout})
	if err != nil {
		return err
	}
	if result != nil && len(res.FinalResult) > 0 && string(res.FinalResult) != "null" {
		return json.Unmarshal(res.FinalResult, result)
	}
	return nil
}

// CallRaw is the full-control variant used by peer.Client/peer.Server: it
// blocks until the request settles or ctx is cancelled. When opts carries a
// ProgressToken, the partial-result collector is armed before the request is
// sent and ended once it settles; the returned rpc.ProgressResult reports
// whatever partials arrived either way.
func (d *Dispatcher) CallRaw(ctx context.Context, method string, params any, opts CallOptions) (*rpc.ProgressResult, error) {
	entry, err := d.CallAsync(ctx, method, params, opts)
	if err != nil {
		return nil, err
	}

	endProgress := func() []json.RawMessage {
		if len(opts.ProgressToken) == 0 {
			return nil
		}
		return d.progress.End(opts.ProgressToken)
	}

	select {
	case outcome := <-entry.Done():
		partials := endProgress()
		if outcome.Err != nil {
			return &rpc.ProgressResult{
				Cancelled:      errors.Is(outcome.Err, lspwireerr.ErrRequestCancelled),
				PartialResults: partials,
			}, outcome.Err
		}
		return &rpc.ProgressResult{PartialResults: partials, FinalResult: outcome.Result}, nil
	case <-ctx.Done():
		d.tracker.Reject(entry.ID, ctx.Err())
		return &rpc.ProgressResult{Cancelled: true, PartialResults: endProgress()}, ctx.Err()
	}
}

// CallAsync sends a request and returns its PendingEntry immediately,
// without waiting for a response — the caller selects on entry.Done() on
// its own schedule. Used for cancellable/partial-result calls where the
// caller needs the entry (and its CancelSource) before the response
// arrives. Rejects locally, without touching the transport, if the
// connection's lifecycle state doesn't permit sending method yet (e.g. a
// request attempted before the initialize handshake completes).
func (d *Dispatcher) CallAsync(ctx context.Context, method string, params any, opts CallOptions) (*rpc.PendingEntry, error) {
	if !d.lifecycle.AllowsOutbound(method) {
		return nil, jsonrpc2.NewErrorf(jsonrpc2.ServerNotInitialized,
			"method %s not permitted in state %s", method, d.lifecycle.Current())
	}

	entry := d.tracker.Create(method, opts.Timeout, opts.Cancel)

	if len(opts.ProgressToken) > 0 {
		d.progress.Open(opts.ProgressToken, nil)
	}

	req, err := jsonrpc2.NewRequest(entry.ID, method, params)
	if err != nil {
		d.tracker.Reject(entry.ID, err)
		return nil, err
	}

	mc := middleware.NewContext(d.myDirection(), middleware.KindRequest, method, req, entry.ID, "")
	terminal := func(ctx context.Context, mc *middleware.Context) (middleware.ShortCircuit, error) {
		return middleware.ShortCircuit{}, d.send(ctx, mc.Message)
	}
	sc, err := middleware.Run(ctx, d.outbound, mc, terminal)
	if err != nil {
		d.tracker.Reject(entry.ID, err)
		return nil, err
	}
	if sc.Active {
		if sc.Error != nil {
			d.tracker.Reject(entry.ID, sc.Error)
			return entry, nil
		}
		d.tracker.Resolve(entry.ID, sc.Response)
	}
	return entry, nil
}

// CancelCall sends `$/cancelRequest` for id and locally cancels its
// CancelSource (if one was supplied to CallRaw), matching spec behavior:
// the local side rejects the pending entry as cancelled before the
// notification is even written to the wire.
func (d *Dispatcher) CancelCall(ctx context.Context, id jsonrpc2.ID) error {
	entry, ok := d.tracker.Lookup(id)
	if !ok {
		return nil
	}
	if source, ok := entry.Metadata.(*rpc.CancelSource); ok && source != nil {
		source.Cancel()
	}
	d.tracker.Reject(id, lspwireerr.ErrRequestCancelled)
	return d.Notify(ctx, "$/cancelRequest", map[string]any{"id": json.RawMessage(id)})
}

func (d *Dispatcher) send(ctx context.Context, msg jsonrpc2.Message) error {
	body, err := jsonrpc2.Encode(msg)
	if err != nil {
		return err
	}
	return d.transport.Send(ctx, body)
}
