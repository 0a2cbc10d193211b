package rpc_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspwire/lspwire/rpc"
)

func TestProgressCollectorDeliversInOrder(t *testing.T) {
	c := rpc.NewProgressCollector()
	token := rpc.ProgressToken(`"tok-1"`)

	var values []string
	c.Open(token, func(v json.RawMessage) { values = append(values, string(v)) })

	require.True(t, c.Deliver(token, json.RawMessage(`"a"`)))
	require.True(t, c.Deliver(token, json.RawMessage(`"b"`)))

	assert.Equal(t, []string{`"a"`, `"b"`}, values)

	partials := c.End(token)
	require.Len(t, partials, 2)
	assert.False(t, c.IsOpen(token))
}

func TestProgressCollectorOrphanDeliveryReturnsFalse(t *testing.T) {
	c := rpc.NewProgressCollector()
	ok := c.Deliver(rpc.ProgressToken(`"unknown"`), json.RawMessage(`1`))
	assert.False(t, ok)
}

func TestProgressCollectorEndTwiceReturnsEmpty(t *testing.T) {
	c := rpc.NewProgressCollector()
	token := rpc.ProgressToken(`"tok"`)
	c.Open(token, nil)
	c.Deliver(token, json.RawMessage(`1`))
	first := c.End(token)
	require.Len(t, first, 1)

	second := c.End(token)
	assert.Empty(t, second)
}
