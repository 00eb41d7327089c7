//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cansys/udp-can-bridge/internal/bridge"
	"github.com/cansys/udp-can-bridge/internal/config"
	"github.com/cansys/udp-can-bridge/internal/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("can-bridge %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}
	if flags == nil {
		return 1
	}
	l := setupLogger(flags.logFormat, flags.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		l.Error("config_error", "path", flags.configPath, "error", err)
		return 1
	}
	l.Info("config_loaded", "path", flags.configPath,
		"server", cfg.Server.IP, "ports", len(cfg.Ports), "channels", cfg.TotalChannels())

	br := bridge.New(cfg, l)
	if err := br.Initialize(); err != nil {
		l.Error("bridge_init_error", "error", err)
		return 1
	}
	defer br.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, flags.logMetricsEvery, l, &wg)

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if flags.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(flags.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	cleanupMDNS, err := startMDNS(ctx, flags, cfg)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
	} else {
		defer cleanupMDNS()
	}

	code := 0
	if err := br.Run(ctx); err != nil {
		l.Error("bridge_run_error", "error", err)
		code = 1
	}
	stop()
	wg.Wait()
	l.Info("shutdown_complete")
	return code
}
