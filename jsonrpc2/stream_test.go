package jsonrpc2_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspwire/lspwire/jsonrpc2"
)

type loopback struct {
	*bytes.Buffer
}

func TestStreamWriteThenRead(t *testing.T) {
	buf := &loopback{Buffer: &bytes.Buffer{}}
	s := jsonrpc2.NewStream(buf)

	ntf := &jsonrpc2.NotificationMessage{JSONRPC: jsonrpc2.Version, Method: "initialized"}
	require.NoError(t, s.WriteMessage(ntf))

	body, err := s.ReadMessage()
	require.NoError(t, err)

	msg, err := jsonrpc2.Classify(body)
	require.NoError(t, err)
	got, ok := msg.(*jsonrpc2.NotificationMessage)
	require.True(t, ok)
	assert.Equal(t, "initialized", got.Method)
}
