package rpc_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspwire/lspwire/rpc"
)

func TestTrackerResolve(t *testing.T) {
	tr := rpc.NewTracker(nil)
	entry := tr.Create("textDocument/hover", 0, nil)

	tr.Resolve(entry.ID, json.RawMessage(`{"ok":true}`))
	outcome := <-entry.Done()
	require.NoError(t, outcome.Err)
	assert.JSONEq(t, `{"ok":true}`, string(outcome.Result))
	assert.Equal(t, 0, tr.Len())
}

func TestTrackerReject(t *testing.T) {
	tr := rpc.NewTracker(nil)
	entry := tr.Create("textDocument/hover", 0, nil)

	tr.Reject(entry.ID, assertErr("boom"))
	outcome := <-entry.Done()
	assert.Error(t, outcome.Err)
}

func TestTrackerResolveUnknownIDIsNoop(t *testing.T) {
	tr := rpc.NewTracker(nil)
	assert.NotPanics(t, func() { tr.Resolve(json.RawMessage(`"nope"`), nil) })
}

func TestTrackerTimeout(t *testing.T) {
	tr := rpc.NewTracker(nil)
	entry := tr.Create("textDocument/hover", 10*time.Millisecond, nil)

	select {
	case outcome := <-entry.Done():
		assert.ErrorIs(t, outcome.Err, rpc.ErrRequestTimedOut)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tracker timeout")
	}
}

func TestTrackerClearRejectsAllOutstanding(t *testing.T) {
	tr := rpc.NewTracker(nil)
	e1 := tr.Create("a", 0, nil)
	e2 := tr.Create("b", 0, nil)

	tr.Clear(assertErr("cleared"))

	o1 := <-e1.Done()
	o2 := <-e2.Done()
	assert.Error(t, o1.Err)
	assert.Error(t, o2.Err)
	assert.Equal(t, 0, tr.Len())
}

func TestTrackerLookup(t *testing.T) {
	tr := rpc.NewTracker(nil)
	entry := tr.Create("a", 0, "meta")
	got, ok := tr.Lookup(entry.ID)
	require.True(t, ok)
	assert.Equal(t, "meta", got.Metadata)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
func assertErr(s string) error    { return simpleErr(s) }
