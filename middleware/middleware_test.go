package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspwire/lspwire/jsonrpc2"
	"github.com/lspwire/lspwire/middleware"
)

func newRequestContext(method string) *middleware.Context {
	req := &jsonrpc2.RequestMessage{JSONRPC: jsonrpc2.Version, ID: jsonrpc2.ID(`1`), Method: method}
	return middleware.NewContext(middleware.ClientToServer, middleware.KindRequest, method, req, jsonrpc2.ID(`1`), "")
}

func recordingMiddleware(log *[]string, name string) middleware.Middleware {
	return func(ctx context.Context, mc *middleware.Context, next middleware.Next) (middleware.ShortCircuit, error) {
		*log = append(*log, name+":before")
		sc, err := next(ctx, mc)
		*log = append(*log, name+":after")
		return sc, err
	}
}

func TestChainOrdersBeforeAfterLIFO(t *testing.T) {
	var log []string
	chain := middleware.Chain(recordingMiddleware(&log, "A"), recordingMiddleware(&log, "B"))

	terminal := func(ctx context.Context, mc *middleware.Context) (middleware.ShortCircuit, error) {
		log = append(log, "H")
		return middleware.ShortCircuit{}, nil
	}

	_, err := middleware.Run(context.Background(), chain, newRequestContext("x"), terminal)
	require.NoError(t, err)
	assert.Equal(t, []string{"A:before", "B:before", "H", "B:after", "A:after"}, log)
}

func TestShortCircuitSkipsTerminal(t *testing.T) {
	short := func(ctx context.Context, mc *middleware.Context, next middleware.Next) (middleware.ShortCircuit, error) {
		return middleware.ShortCircuit{Active: true, Response: []byte(`"cached"`)}, nil
	}
	terminalCalled := false
	terminal := func(ctx context.Context, mc *middleware.Context) (middleware.ShortCircuit, error) {
		terminalCalled = true
		return middleware.ShortCircuit{}, nil
	}

	sc, err := middleware.Run(context.Background(), short, newRequestContext("x"), terminal)
	require.NoError(t, err)
	assert.False(t, terminalCalled)
	assert.True(t, sc.Active)
	assert.Equal(t, `"cached"`, string(sc.Response))
}

func TestPipelineViolationOnIDMutation(t *testing.T) {
	mutate := func(ctx context.Context, mc *middleware.Context, next middleware.Next) (middleware.ShortCircuit, error) {
		if req, ok := mc.Message.(*jsonrpc2.RequestMessage); ok {
			req.ID = jsonrpc2.ID(`999`)
		}
		return next(ctx, mc)
	}
	terminal := func(ctx context.Context, mc *middleware.Context) (middleware.ShortCircuit, error) {
		return middleware.ShortCircuit{}, nil
	}

	_, err := middleware.Run(context.Background(), mutate, newRequestContext("x"), terminal)
	require.Error(t, err)
	var violation *middleware.PipelineViolation
	require.ErrorAs(t, err, &violation)
}

func TestScopeFiltersByMethod(t *testing.T) {
	var ran bool
	core := func(ctx context.Context, mc *middleware.Context, next middleware.Next) (middleware.ShortCircuit, error) {
		ran = true
		return next(ctx, mc)
	}
	scoped := middleware.Scope(middleware.Filter{Methods: []string{"textDocument/*"}}, core)

	terminal := func(ctx context.Context, mc *middleware.Context) (middleware.ShortCircuit, error) {
		return middleware.ShortCircuit{}, nil
	}

	_, err := middleware.Run(context.Background(), scoped, newRequestContext("workspace/symbol"), terminal)
	require.NoError(t, err)
	assert.False(t, ran, "core should not run for a method outside the filter")

	ran = false
	_, err = middleware.Run(context.Background(), scoped, newRequestContext("textDocument/hover"), terminal)
	require.NoError(t, err)
	assert.True(t, ran, "core should run for a method matching the glob")
}

func TestRunWithNilChainGoesStraightToTerminal(t *testing.T) {
	called := false
	terminal := func(ctx context.Context, mc *middleware.Context) (middleware.ShortCircuit, error) {
		called = true
		return middleware.ShortCircuit{}, nil
	}
	_, err := middleware.Run(context.Background(), nil, newRequestContext("x"), terminal)
	require.NoError(t, err)
	assert.True(t, called)
}
