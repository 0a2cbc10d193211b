package rpc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lspwire/lspwire/rpc"
)

func TestCancelSourceCancelClosesDone(t *testing.T) {
	src := rpc.NewCancelSource()
	token := src.Token()
	assert.False(t, token.Cancelled())

	src.Cancel()
	assert.True(t, token.Cancelled())
	select {
	case <-token.Done():
	case <-time.After(time.Second):
		t.Fatal("expected Done channel to be closed")
	}
}

func TestCancelSourceCancelIsIdempotent(t *testing.T) {
	src := rpc.NewCancelSource()
	assert.NotPanics(t, func() {
		src.Cancel()
		src.Cancel()
	})
}

func TestCancelSourceSubscribeBeforeCancel(t *testing.T) {
	src := rpc.NewCancelSource()
	fired := make(chan struct{}, 1)
	src.Token().Subscribe(func() { fired <- struct{}{} })

	src.Cancel()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("subscriber never fired")
	}
}

func TestCancelSourceSubscribeAfterCancelFiresSynchronously(t *testing.T) {
	src := rpc.NewCancelSource()
	src.Cancel()

	var fired bool
	src.Token().Subscribe(func() { fired = true })
	assert.True(t, fired)
}
