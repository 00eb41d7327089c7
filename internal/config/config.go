// Package config loads and validates the bridge configuration file.
// The on-disk format is the JSON layout the deployment tooling produces:
//
//	{
//	  "server": { "ip": "10.0.0.5", "heartbeat_interval_ms": 5000 },
//	  "ports": [
//	    {
//	      "udp_listen_port": 5555,
//	      "udp_send_port": 5556,
//	      "channels": [
//	        { "vcan_name": "vcan0", "tx_channel_id": 1,
//	          "id_range": { "min": "0x100", "max": "0x1FF" },
//	          "bitrate": 500000 }
//	      ]
//	    }
//	  ]
//	}
//
// The bridge core consumes the validated result and does not re-check it.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cansys/udp-can-bridge/internal/routing"
)

// HexUint32 accepts a JSON number or a decimal/0x-hex string.
type HexUint32 uint32

func (h *HexUint32) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(b, &unquoted); err != nil {
			return err
		}
		s = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	*h = HexUint32(v)
	return nil
}

// Server holds the remote peer settings shared by every port.
type Server struct {
	IP                  string `json:"ip"`
	HeartbeatIntervalMs int    `json:"heartbeat_interval_ms"`
	ReconnectDelayMs    int    `json:"reconnect_delay_ms"`
}

// HeartbeatInterval returns the configured heartbeat period (0 disables).
func (s Server) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalMs) * time.Millisecond
}

// Range is the inclusive identifier span a channel owns.
type Range struct {
	Min HexUint32 `json:"min"`
	Max HexUint32 `json:"max"`
}

// IDRange converts to the routing-table representation.
func (r Range) IDRange() routing.IDRange {
	return routing.IDRange{Min: uint32(r.Min), Max: uint32(r.Max)}
}

// Channel describes one raw CAN endpoint. TxChannelID and Bitrate are
// consumed by the provisioning tooling that brings the interface up; the
// bridge treats them as opaque metadata.
type Channel struct {
	Interface   string `json:"vcan_name"`
	TxChannelID uint32 `json:"tx_channel_id"`
	IDRange     Range  `json:"id_range"`
	Bitrate     uint32 `json:"bitrate"`
}

// Port describes one UDP endpoint and the channels it aggregates.
type Port struct {
	ListenPort uint16    `json:"udp_listen_port"`
	SendPort   uint16    `json:"udp_send_port"`
	LegacyPort uint16    `json:"udp_port"` // older configs carried one shared port
	Channels   []Channel `json:"channels"`
}

// Config is the validated bridge configuration.
type Config struct {
	Server Server `json:"server"`
	Ports  []Port `json:"ports"`
}

// TotalChannels counts channels across all ports.
func (c *Config) TotalChannels() int {
	n := 0
	for i := range c.Ports {
		n += len(c.Ports[i].Channels)
	}
	return n
}

// Load reads, normalizes and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a configuration document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize resolves the legacy single-port key: it feeds both directions
// when the split keys are absent, and the send port defaults to the listen
// port when only that is given.
func (c *Config) normalize() {
	for i := range c.Ports {
		p := &c.Ports[i]
		if p.ListenPort == 0 && p.LegacyPort != 0 {
			p.ListenPort = p.LegacyPort
		}
		if p.SendPort == 0 {
			if p.LegacyPort != 0 {
				p.SendPort = p.LegacyPort
			} else {
				p.SendPort = p.ListenPort
			}
		}
	}
}

// Validate performs the semantic checks the bridge core relies on:
// non-empty port and channel lists, a parseable IPv4 server address,
// well-formed identifier ranges, and global uniqueness of listen ports,
// interface names, and identifier ranges (pairwise disjoint).
func (c *Config) Validate() error {
	if ip := net.ParseIP(c.Server.IP); ip == nil || ip.To4() == nil {
		return fmt.Errorf("invalid server ip address: %q", c.Server.IP)
	}
	if len(c.Ports) == 0 {
		return errors.New("at least one port entry is required")
	}
	if c.Server.HeartbeatIntervalMs < 0 {
		return fmt.Errorf("heartbeat_interval_ms must be >= 0 (got %d)", c.Server.HeartbeatIntervalMs)
	}
	if c.Server.ReconnectDelayMs < 0 {
		return fmt.Errorf("reconnect_delay_ms must be >= 0 (got %d)", c.Server.ReconnectDelayMs)
	}

	seenPorts := map[uint16]int{}
	seenIfaces := map[string]string{}
	type placed struct {
		r     routing.IDRange
		iface string
	}
	var ranges []placed

	for pi := range c.Ports {
		p := &c.Ports[pi]
		if p.ListenPort == 0 {
			return fmt.Errorf("port %d: udp_listen_port is required", pi)
		}
		if prev, dup := seenPorts[p.ListenPort]; dup {
			return fmt.Errorf("port %d: listen port %d already used by port %d", pi, p.ListenPort, prev)
		}
		seenPorts[p.ListenPort] = pi
		if len(p.Channels) == 0 {
			return fmt.Errorf("port %d: at least one channel entry is required", pi)
		}
		for ci := range p.Channels {
			ch := &p.Channels[ci]
			if ch.Interface == "" {
				return fmt.Errorf("port %d channel %d: vcan_name is required", pi, ci)
			}
			if prev, dup := seenIfaces[ch.Interface]; dup {
				return fmt.Errorf("interface %q configured twice (also %s)", ch.Interface, prev)
			}
			seenIfaces[ch.Interface] = fmt.Sprintf("port %d channel %d", pi, ci)
			r := ch.IDRange.IDRange()
			if err := r.Validate(); err != nil {
				return fmt.Errorf("interface %q: %w", ch.Interface, err)
			}
			for _, other := range ranges {
				if r.Overlaps(other.r) {
					return fmt.Errorf("interface %q range [0x%X,0x%X] overlaps %q range [0x%X,0x%X]",
						ch.Interface, r.Min, r.Max, other.iface, other.r.Min, other.r.Max)
				}
			}
			ranges = append(ranges, placed{r: r, iface: ch.Interface})
		}
	}
	return nil
}
