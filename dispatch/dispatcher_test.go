package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspwire/lspwire/dispatch"
	"github.com/lspwire/lspwire/jsonrpc2"
	"github.com/lspwire/lspwire/lifecycle"
	"github.com/lspwire/lspwire/transport"
)

func newPair(t *testing.T) (*dispatch.Dispatcher, *dispatch.Dispatcher) {
	t.Helper()
	clientTr, serverTr := transport.NewPipePair(nil)

	client := dispatch.New(dispatch.Config{Role: dispatch.RoleClient, Transport: clientTr})
	server := dispatch.New(dispatch.Config{Role: dispatch.RoleServer, Transport: serverTr})

	require.NoError(t, client.Lifecycle().Transition(lifecycle.Connecting, "test"))
	require.NoError(t, server.Lifecycle().Transition(lifecycle.Listening, "test"))
	require.NoError(t, client.Lifecycle().Transition(lifecycle.Initializing, "test"))
	require.NoError(t, server.Lifecycle().Transition(lifecycle.Initializing, "test"))
	require.True(t, client.Lifecycle().CompareAndTransition(lifecycle.Initializing, lifecycle.Initialized, "test"))
	require.True(t, server.Lifecycle().CompareAndTransition(lifecycle.Initializing, lifecycle.Initialized, "test"))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go client.Run(ctx)
	go server.Run(ctx)
	return client, server
}

func TestHandleRoundTrip(t *testing.T) {
	client, server := newPair(t)

	require.NoError(t, server.Handle("echo", func(ctx context.Context, params *struct {
		Text string `json:"text"`
	}) (map[string]string, error) {
		return map[string]string{"text": params.Text}, nil
	}))

	var result map[string]string
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.Call(ctx, "echo", map[string]string{"text": "hi"}, &result)
	require.NoError(t, err)
	assert.Equal(t, "hi", result["text"])
}

func TestCallMethodNotFound(t *testing.T) {
	client, _ := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.Call(ctx, "nonexistent", nil, nil)
	require.Error(t, err)
	var eo *jsonrpc2.ErrorObject
	require.ErrorAs(t, err, &eo)
	assert.Equal(t, jsonrpc2.MethodNotFound, eo.Code)
}

func TestCallTimeout(t *testing.T) {
	client, server := newPair(t)

	block := make(chan struct{})
	require.NoError(t, server.Handle("slow", func(ctx context.Context) (string, error) {
		<-block
		return "late", nil
	}))
	defer close(block)

	_, err := client.CallRaw(context.Background(), "slow", nil, dispatch.CallOptions{Timeout: 20 * time.Millisecond})
	require.Error(t, err)
}

func TestNotifyDeliversWithoutResponse(t *testing.T) {
	client, server := newPair(t)

	received := make(chan string, 1)
	require.NoError(t, server.Handle("logMessage", func(ctx context.Context, params *struct {
		Message string `json:"message"`
	}) error {
		received <- params.Message
		return nil
	}))

	require.NoError(t, client.Notify(context.Background(), "logMessage", map[string]string{"message": "hello"}))

	select {
	case msg := <-received:
		assert.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestCancelCallRejectsLocallyAndSignalsHandler(t *testing.T) {
	client, server := newPair(t)

	cancelled := make(chan struct{}, 1)
	started := make(chan struct{}, 1)
	require.NoError(t, server.Handle("longRunning", func(ctx context.Context) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		cancelled <- struct{}{}
		return "", ctx.Err()
	}))

	entry, err := client.CallAsync(context.Background(), "longRunning", nil, dispatch.CallOptions{})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}

	require.NoError(t, client.CancelCall(context.Background(), entry.ID))

	select {
	case outcome := <-entry.Done():
		require.Error(t, outcome.Err)
	case <-time.After(time.Second):
		t.Fatal("expected local cancellation to settle the pending entry")
	}

	// CancelCall also sends $/cancelRequest on the wire, so the server's
	// handler invocation should observe ctx.Done() via the dispatcher's
	// inflight-cancellation tracking, not just the caller-side local reject.
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("server handler never observed cancellation")
	}
}

func TestLifecycleGatingRejectsRequestBeforeInitialize(t *testing.T) {
	clientTr, serverTr := transport.NewPipePair(nil)
	client := dispatch.New(dispatch.Config{Role: dispatch.RoleClient, Transport: clientTr})
	server := dispatch.New(dispatch.Config{Role: dispatch.RoleServer, Transport: serverTr})
	require.NoError(t, server.Handle("textDocument/hover", func(ctx context.Context) (string, error) { return "", nil }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	err := client.Call(callCtx, "textDocument/hover", nil, nil)
	require.Error(t, err)
	var eo *jsonrpc2.ErrorObject
	require.ErrorAs(t, err, &eo)
	assert.Equal(t, jsonrpc2.ServerNotInitialized, eo.Code)
}

// TestRunPropagatesHandlerPanic proves the errgroup wiring in Run is real:
// a handler panic recovered by handleInbound must surface as Run's own
// return value, not vanish silently or merely take down one goroutine.
func TestRunPropagatesHandlerPanic(t *testing.T) {
	clientTr, serverTr := transport.NewPipePair(nil)
	client := dispatch.New(dispatch.Config{Role: dispatch.RoleClient, Transport: clientTr})
	server := dispatch.New(dispatch.Config{Role: dispatch.RoleServer, Transport: serverTr})

	require.NoError(t, client.Lifecycle().Transition(lifecycle.Connecting, "test"))
	require.NoError(t, server.Lifecycle().Transition(lifecycle.Listening, "test"))
	require.NoError(t, client.Lifecycle().Transition(lifecycle.Initializing, "test"))
	require.NoError(t, server.Lifecycle().Transition(lifecycle.Initializing, "test"))
	require.True(t, client.Lifecycle().CompareAndTransition(lifecycle.Initializing, lifecycle.Initialized, "test"))
	require.True(t, server.Lifecycle().CompareAndTransition(lifecycle.Initializing, lifecycle.Initialized, "test"))

	started := make(chan struct{})
	require.NoError(t, server.Handle("boom", func(ctx context.Context) error {
		close(started)
		panic("handler exploded")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	serverErrCh := make(chan error, 1)
	go func() { serverErrCh <- server.Run(ctx) }()

	require.NoError(t, client.Notify(context.Background(), "boom", nil))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}

	require.NoError(t, server.Close())

	select {
	case err := <-serverErrCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler panic")
	case <-time.After(time.Second):
		t.Fatal("Run never returned after transport close")
	}
}

func TestSetTraceLevelRoundTrip(t *testing.T) {
	client, server := newPair(t)
	assert.Empty(t, server.TraceLevel())

	require.NoError(t, client.Notify(context.Background(), "$/setTrace", map[string]string{"value": "verbose"}))
	require.Eventually(t, func() bool { return server.TraceLevel() == "verbose" }, time.Second, 10*time.Millisecond)
}
