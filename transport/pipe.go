package transport

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Pipe is an in-memory Transport backed by Go channels, used by this
// module's own tests to exercise two peers without a real byte stream.
// NewPipePair returns two ends already wired to each other; closing either
// end delivers a close event to both.
type Pipe struct {
	logger *zap.Logger

	out  chan json.RawMessage
	in   chan json.RawMessage
	peer *Pipe

	closed chan struct{}
	once   sync.Once

	messages *subscribers[MessageHandler]
	errs     *subscribers[ErrorHandler]
	closes   *subscribers[CloseHandler]
}

// NewPipePair returns two Pipe transports, each other's peer. Messages sent
// on one arrive, in order, on the other.
func NewPipePair(logger *zap.Logger) (a, b *Pipe) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ab := make(chan json.RawMessage, 64)
	ba := make(chan json.RawMessage, 64)

	a = newPipe(logger, ab, ba)
	b = newPipe(logger, ba, ab)
	a.peer = b
	b.peer = a

	go a.pump()
	go b.pump()
	return a, b
}

func newPipe(logger *zap.Logger, out, in chan json.RawMessage) *Pipe {
	return &Pipe{
		logger:   logger,
		out:      out,
		in:       in,
		closed:   make(chan struct{}),
		messages: newSubscribers[MessageHandler](),
		errs:     newSubscribers[ErrorHandler](),
		closes:   newSubscribers[CloseHandler](),
	}
}

// pump delivers inbound messages until the transport closes.
func (p *Pipe) pump() {
	for {
		select {
		case body := <-p.in:
			for _, h := range p.messages.snapshot() {
				h(body)
			}
		case <-p.closed:
			return
		}
	}
}

// Send implements Transport.
func (p *Pipe) Send(ctx context.Context, body json.RawMessage) error {
	if p.isClosed() {
		return ErrClosed
	}
	select {
	case p.out <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrClosed
	}
}

// SubscribeMessage implements Transport.
func (p *Pipe) SubscribeMessage(h MessageHandler) Disposer { return p.messages.add(h) }

// SubscribeError implements Transport.
func (p *Pipe) SubscribeError(h ErrorHandler) Disposer { return p.errs.add(h) }

// SubscribeClose implements Transport.
func (p *Pipe) SubscribeClose(h CloseHandler) Disposer {
	if p.isClosed() {
		h(ErrClosed)
		return func() {}
	}
	return p.closes.add(h)
}

func (p *Pipe) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// Close implements Transport. Idempotent; also closes the peer end, so
// both sides observe exactly one close event regardless of who initiated.
func (p *Pipe) Close() error {
	p.once.Do(func() {
		close(p.closed)
		for _, h := range p.closes.snapshot() {
			h(ErrClosed)
		}
		if p.peer != nil {
			p.peer.Close()
		}
	})
	return nil
}

// IsConnected implements Transport.
func (p *Pipe) IsConnected() bool { return !p.isClosed() }
