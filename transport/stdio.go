package transport

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/lspwire/lspwire/jsonrpc2"
)

// Stdio is a reference Transport over a pair of byte streams, framed with
// the header codec from jsonrpc2. It generalizes the teacher's
// server.ReadWriter (a bundled os.Stdin/os.Stdout) into a standalone
// Transport so both a client and a server can use it symmetrically.
type Stdio struct {
	logger *zap.Logger

	writeMu sync.Mutex
	stream  *jsonrpc2.Stream

	messages *subscribers[MessageHandler]
	errs     *subscribers[ErrorHandler]
	closes   *subscribers[CloseHandler]

	closed     chan struct{}
	closeOnce  sync.Once
	closeCause error
	closeMu    sync.Mutex
}

// NewStdio wraps an io.ReadWriter (typically a combination of os.Stdin and
// os.Stdout) as a Transport and starts its read pump.
func NewStdio(rw io.ReadWriter, logger *zap.Logger) *Stdio {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stdio{
		logger:   logger,
		stream:   jsonrpc2.NewStream(rw),
		messages: newSubscribers[MessageHandler](),
		errs:     newSubscribers[ErrorHandler](),
		closes:   newSubscribers[CloseHandler](),
		closed:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Stdio) pump() {
	for {
		body, err := s.stream.ReadMessage()
		if err != nil {
			if _, ok := err.(*jsonrpc2.MalformedJSONError); ok {
				for _, h := range s.errs.snapshot() {
					h(err)
				}
				continue
			}
			s.closeWith(err)
			return
		}
		for _, h := range s.messages.snapshot() {
			h(json.RawMessage(body))
		}
	}
}

// Send implements Transport. Writes are serialized so framed messages are
// never interleaved on the wire.
func (s *Stdio) Send(ctx context.Context, body json.RawMessage) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := s.stream.WriteMessage(json.RawMessage(body)); err != nil {
		return err
	}
	return nil
}

// SubscribeMessage implements Transport.
func (s *Stdio) SubscribeMessage(h MessageHandler) Disposer { return s.messages.add(h) }

// SubscribeError implements Transport.
func (s *Stdio) SubscribeError(h ErrorHandler) Disposer { return s.errs.add(h) }

// SubscribeClose implements Transport.
func (s *Stdio) SubscribeClose(h CloseHandler) Disposer {
	s.closeMu.Lock()
	cause, closed := s.closeCause, s.isClosed()
	s.closeMu.Unlock()
	if closed {
		h(cause)
		return func() {}
	}
	return s.closes.add(h)
}

func (s *Stdio) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Stdio) closeWith(cause error) {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closeCause = cause
		s.closeMu.Unlock()
		close(s.closed)
		_ = s.stream.Close()
		for _, h := range s.closes.snapshot() {
			h(cause)
		}
	})
}

// Close implements Transport.
func (s *Stdio) Close() error {
	s.closeWith(ErrClosed)
	return nil
}

// IsConnected implements Transport.
func (s *Stdio) IsConnected() bool { return !s.isClosed() }
