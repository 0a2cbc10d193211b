package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// envelope wraps a message with the logical connection it belongs to, the
// Go-native shape of the shared-worker variant described in the transport
// contract: multiple logical peers sharing one physical channel without
// cross-talk. It generalizes past "worker message ports" to any physical
// transport that several logical connections multiplex over (e.g. one TCP
// connection serving several LSP sessions).
type envelope struct {
	ClientID string          `json:"clientId"`
	Message  json.RawMessage `json:"message"`
}

// Multiplexed wraps an underlying Transport carrying envelope-framed
// messages and exposes the single logical connection identified by
// clientID, filtering out every other client's traffic.
type Multiplexed struct {
	underlying Transport
	clientID   string

	messages *subscribers[MessageHandler]
	dispose  Disposer
}

// NewMultiplexed returns a Transport view scoped to clientID over a shared
// underlying Transport. Send wraps outbound bodies in the envelope; inbound
// envelopes for other client ids are dropped before reaching subscribers.
func NewMultiplexed(underlying Transport, clientID string) *Multiplexed {
	m := &Multiplexed{
		underlying: underlying,
		clientID:   clientID,
		messages:   newSubscribers[MessageHandler](),
	}
	m.dispose = underlying.SubscribeMessage(func(body json.RawMessage) {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return // not an envelope we understand; ignore rather than fail the shared channel
		}
		if env.ClientID != clientID {
			return
		}
		for _, h := range m.messages.snapshot() {
			h(env.Message)
		}
	})
	return m
}

// Send implements Transport.
func (m *Multiplexed) Send(ctx context.Context, body json.RawMessage) error {
	wrapped, err := json.Marshal(envelope{ClientID: m.clientID, Message: body})
	if err != nil {
		return fmt.Errorf("transport: encode envelope: %w", err)
	}
	return m.underlying.Send(ctx, wrapped)
}

// SubscribeMessage implements Transport.
func (m *Multiplexed) SubscribeMessage(h MessageHandler) Disposer { return m.messages.add(h) }

// SubscribeError implements Transport.
func (m *Multiplexed) SubscribeError(h ErrorHandler) Disposer { return m.underlying.SubscribeError(h) }

// SubscribeClose implements Transport.
func (m *Multiplexed) SubscribeClose(h CloseHandler) Disposer { return m.underlying.SubscribeClose(h) }

// Close disposes this client's view; the underlying shared transport is
// left open for other logical connections. Close does not notify close
// subscribers (those fire only when the underlying transport closes) and
// does not stop Send.
func (m *Multiplexed) Close() error {
	m.dispose()
	return nil
}

// IsConnected implements Transport.
func (m *Multiplexed) IsConnected() bool { return m.underlying.IsConnected() }
