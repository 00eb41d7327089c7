//go:build linux

package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cansys/udp-can-bridge/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"udp_rx", snap.UDPRx,
					"udp_tx", snap.UDPTx,
					"can_rx", snap.CANRx,
					"can_tx", snap.CANTx,
					"malformed", snap.Malformed,
					"unrouted", snap.Unrouted,
					"port_mismatch", snap.PortMismatch,
					"dropped", snap.Dropped,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
