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

func TestMultiplexedFiltersOtherClients(t *testing.T) {
	shared, hub := transport.NewPipePair(nil)
	defer shared.Close()
	defer hub.Close()

	clientA := transport.NewMultiplexed(shared, "a")
	clientB := transport.NewMultiplexed(shared, "b")

	var gotA, gotB []json.RawMessage
	clientA.SubscribeMessage(func(body json.RawMessage) { gotA = append(gotA, body) })
	clientB.SubscribeMessage(func(body json.RawMessage) { gotB = append(gotB, body) })

	envelopeFor := func(clientID string, msg json.RawMessage) json.RawMessage {
		raw, err := json.Marshal(map[string]any{"clientId": clientID, "message": msg})
		require.NoError(t, err)
		return raw
	}

	require.NoError(t, hub.Send(context.Background(), envelopeFor("a", json.RawMessage(`"for-a"`))))
	require.NoError(t, hub.Send(context.Background(), envelopeFor("b", json.RawMessage(`"for-b"`))))

	time.Sleep(20 * time.Millisecond)
	require.Len(t, gotA, 1)
	assert.Equal(t, `"for-a"`, string(gotA[0]))
	require.Len(t, gotB, 1)
	assert.Equal(t, `"for-b"`, string(gotB[0]))
}

func TestMultiplexedSendWrapsEnvelope(t *testing.T) {
	shared, hub := transport.NewPipePair(nil)
	defer shared.Close()
	defer hub.Close()

	client := transport.NewMultiplexed(shared, "c1")

	received := make(chan json.RawMessage, 1)
	hub.SubscribeMessage(func(body json.RawMessage) { received <- body })

	require.NoError(t, client.Send(context.Background(), json.RawMessage(`{"hello":true}`)))

	select {
	case body := <-received:
		var env struct {
			ClientID string          `json:"clientId"`
			Message  json.RawMessage `json:"message"`
		}
		require.NoError(t, json.Unmarshal(body, &env))
		assert.Equal(t, "c1", env.ClientID)
		assert.JSONEq(t, `{"hello":true}`, string(env.Message))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for enveloped send")
	}
}

func TestMultiplexedCloseLeavesUnderlyingOpen(t *testing.T) {
	shared, hub := transport.NewPipePair(nil)
	defer hub.Close()

	client := transport.NewMultiplexed(shared, "c1")
	require.NoError(t, client.Close())
	assert.True(t, shared.IsConnected())
}
