package transport_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspwire/lspwire/transport"
)

func TestPipeSendDeliversInOrder(t *testing.T) {
	a, b := transport.NewPipePair(nil)
	defer a.Close()
	defer b.Close()

	received := make(chan json.RawMessage, 2)
	b.SubscribeMessage(func(body json.RawMessage) { received <- body })

	require.NoError(t, a.Send(context.Background(), json.RawMessage(`"one"`)))
	require.NoError(t, a.Send(context.Background(), json.RawMessage(`"two"`)))

	assert.Equal(t, `"one"`, string(<-received))
	assert.Equal(t, `"two"`, string(<-received))
}

func TestPipeCloseNotifiesBothEnds(t *testing.T) {
	a, b := transport.NewPipePair(nil)

	aClosed := make(chan struct{})
	bClosed := make(chan struct{})
	a.SubscribeClose(func(error) { close(aClosed) })
	b.SubscribeClose(func(error) { close(bClosed) })

	require.NoError(t, a.Close())

	select {
	case <-aClosed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a's close event")
	}
	select {
	case <-bClosed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for b's close event")
	}
	assert.False(t, a.IsConnected())
	assert.False(t, b.IsConnected())
}

func TestPipeSendAfterCloseFails(t *testing.T) {
	a, b := transport.NewPipePair(nil)
	defer b.Close()
	require.NoError(t, a.Close())

	err := a.Send(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestPipeSubscribeCloseAfterAlreadyClosedFiresImmediately(t *testing.T) {
	a, b := transport.NewPipePair(nil)
	defer b.Close()
	require.NoError(t, a.Close())

	fired := make(chan struct{}, 1)
	a.SubscribeClose(func(error) { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected immediate close callback")
	}
}

func TestPipeDisposerStopsDelivery(t *testing.T) {
	a, b := transport.NewPipePair(nil)
	defer a.Close()
	defer b.Close()

	var count int
	dispose := b.SubscribeMessage(func(json.RawMessage) { count++ })
	require.NoError(t, a.Send(context.Background(), json.RawMessage(`1`)))
	time.Sleep(20 * time.Millisecond)
	dispose()
	require.NoError(t, a.Send(context.Background(), json.RawMessage(`2`)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, count)
}
