package peer

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lspwire/lspwire/dispatch"
)

// methodPing is a non-standard extension both lspwire peers answer
// automatically (see Server/Client construction), used purely to measure
// round-trip liveness; it carries no payload either direction.
const methodPing = "$/lspy/ping"

// HeartbeatMonitor periodically calls methodPing, tracks whether the peer
// is currently answering, and fires onUnresponsive/onResponsive on the
// edges of that flag. It does not itself close the connection — deciding
// what to do about a dead peer (reconnect, alert, give up) is left to the
// host via those callbacks.
type HeartbeatMonitor struct {
	d        *dispatch.Dispatcher
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration

	responsive *atomic.Bool

	onUnresponsive func()
	onResponsive   func()
}

// HeartbeatOption configures a HeartbeatMonitor.
type HeartbeatOption func(*HeartbeatMonitor)

// WithOnUnresponsive registers fn to run the moment a ping round trip
// fails after the peer was last known to be responsive (including the
// very first ping, since a monitor starts assumed responsive).
func WithOnUnresponsive(fn func()) HeartbeatOption {
	return func(m *HeartbeatMonitor) { m.onUnresponsive = fn }
}

// WithOnResponsive registers fn to run the moment a ping round trip
// succeeds after the peer was last known unresponsive.
func WithOnResponsive(fn func()) HeartbeatOption {
	return func(m *HeartbeatMonitor) { m.onResponsive = fn }
}

// NewHeartbeatMonitor creates a monitor that calls methodPing every
// interval, treating a round trip that does not complete within timeout as
// a failed ping.
// The peer starts assumed responsive.
func NewHeartbeatMonitor(d *dispatch.Dispatcher, logger *zap.Logger, interval, timeout time.Duration, opts ...HeartbeatOption) *HeartbeatMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HeartbeatMonitor{
		d:          d,
		logger:     logger,
		interval:   interval,
		timeout:    timeout,
		responsive: atomic.NewBool(true),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsResponsive reports the peer's last known responsiveness.
func (m *HeartbeatMonitor) IsResponsive() bool { return m.responsive.Load() }

// Run blocks, issuing pings every interval until ctx is cancelled.
func (m *HeartbeatMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ping(ctx)
		}
	}
}

func (m *HeartbeatMonitor) ping(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := m.d.Call(pingCtx, methodPing, nil, nil)
	elapsed := time.Since(start)

	if err != nil {
		m.logger.Warn("heartbeat failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		if m.responsive.CompareAndSwap(true, false) && m.onUnresponsive != nil {
			m.onUnresponsive()
		}
		return
	}
	if elapsed > m.timeout {
		m.logger.Warn("heartbeat slow", zap.Duration("elapsed", elapsed), zap.Duration("budget", m.timeout))
	}
	if m.responsive.CompareAndSwap(false, true) && m.onResponsive != nil {
		m.onResponsive()
	}
}

// RegisterPingHandler installs the handler both peers need to answer the
// other side's heartbeat: an empty response to methodPing.
func RegisterPingHandler(handle func(method string, fn any) error) error {
	return handle(methodPing, func(ctx context.Context) (any, error) {
		return struct{}{}, nil
	})
}
