//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/cansys/udp-can-bridge/internal/config"
)

// startMDNS registers the bridge via mDNS and returns a cleanup function.
// It is safe to call even if disabled (no-op). The advertised port is the
// first configured UDP listen port.
const mdnsServiceType = "_can-bridge._udp"

func startMDNS(ctx context.Context, flags *appFlags, cfg *config.Config) (func(), error) {
	if !flags.mdnsEnable {
		return func() {}, nil
	}
	instance := flags.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("can-bridge-%s", host)
	}
	meta := []string{
		fmt.Sprintf("ports=%d", len(cfg.Ports)),
		fmt.Sprintf("channels=%d", cfg.TotalChannels()),
		"version=" + version,
		"commit=" + commit,
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", int(cfg.Ports[0].ListenPort), meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
