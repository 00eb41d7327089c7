//go:build linux

package bridge

import (
	"context"

	"github.com/cansys/udp-can-bridge/internal/epoll"
	"github.com/cansys/udp-can-bridge/internal/metrics"
)

// Run blocks dispatching readiness events until ctx is cancelled or the
// poller fails fatally. Cancellation is observed within the wait timeout,
// so shutdown latency is bounded by roughly one second plus whatever is
// currently being drained.
func (b *Bridge) Run(ctx context.Context) error {
	if b.poller == nil {
		return ErrNotInitialized
	}
	b.log.Info("bridge_running", "ports", len(b.ports), "channels", len(b.channels))
	for {
		select {
		case <-ctx.Done():
			b.log.Info("bridge_stopping")
			return nil
		default:
		}
		if _, err := b.poller.Wait(waitTimeoutMs, b.dispatch); err != nil {
			metrics.IncError(metrics.ErrPoll)
			b.log.Error("poll_error", "error", err)
			return err
		}
	}
}

// dispatch routes one readiness event to the owning drain handler.
// Indices outside the provisioned range are ignored.
func (b *Bridge) dispatch(ev epoll.Event) {
	switch ev.Token.Kind {
	case epoll.KindUDP:
		if int(ev.Token.Index) < len(b.ports) {
			b.drainUDP(int(ev.Token.Index))
		}
	case epoll.KindCAN:
		if int(ev.Token.Index) < len(b.channels) {
			b.drainCAN(int(ev.Token.Index))
		}
	}
}
