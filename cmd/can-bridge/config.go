//go:build linux

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

type appFlags struct {
	configPath      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func parseFlags() (*appFlags, bool) {
	configPath := flag.String("config", "config/minimal_config.json", "Bridge configuration file (JSON)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement of the bridge")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default can-bridge-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	flags := &appFlags{
		configPath:      *configPath,
		logFormat:       *logFormat,
		logLevel:        *logLevel,
		metricsAddr:     *metricsAddr,
		logMetricsEvery: *logMetricsEvery,
		mdnsEnable:      *mdnsEnable,
		mdnsName:        *mdnsName,
	}

	if err := applyEnvOverrides(flags, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := flags.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return flags, *showVersion
}

// validate performs basic semantic validation of the parsed flags. The
// bridge configuration file itself is validated by the config package.
func (f *appFlags) validate() error {
	switch f.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", f.logFormat)
	}
	switch f.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", f.logLevel)
	}
	if f.configPath == "" {
		return fmt.Errorf("config path must not be empty")
	}
	if f.logMetricsEvery < 0 {
		return fmt.Errorf("log-metrics-interval must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps CAN_BRIDGE_* environment variables to flags unless
// the corresponding flag was explicitly set. Empty values are ignored.
func applyEnvOverrides(f *appFlags, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["config"]; !ok {
		if v, ok := get("CAN_BRIDGE_CONFIG"); ok && v != "" {
			f.configPath = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("CAN_BRIDGE_LOG_FORMAT"); ok && v != "" {
			f.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("CAN_BRIDGE_LOG_LEVEL"); ok && v != "" {
			f.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("CAN_BRIDGE_METRICS"); ok {
			f.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("CAN_BRIDGE_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				f.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CAN_BRIDGE_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("CAN_BRIDGE_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				f.mdnsEnable = true
			case "0", "false", "no", "off":
				f.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("CAN_BRIDGE_MDNS_NAME"); ok && v != "" {
			f.mdnsName = v
		}
	}
	return firstErr
}
