package config

import (
	"strings"
	"testing"
)

const validDoc = `
{
  "server": { "ip": "10.0.0.5", "heartbeat_interval_ms": 5000 },
  "ports": [
    {
      "udp_listen_port": 5555,
      "udp_send_port": 5556,
      "channels": [
        {
          "vcan_name": "vcan0",
          "tx_channel_id": 1,
          "id_range": { "min": "0x100", "max": "0x1FF" },
          "bitrate": 500000
        }
      ]
    }
  ]
}
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.IP != "10.0.0.5" {
		t.Fatalf("server ip = %q", cfg.Server.IP)
	}
	if got := cfg.Server.HeartbeatInterval().Milliseconds(); got != 5000 {
		t.Fatalf("heartbeat = %dms", got)
	}
	if len(cfg.Ports) != 1 || cfg.Ports[0].ListenPort != 5555 || cfg.Ports[0].SendPort != 5556 {
		t.Fatalf("ports = %+v", cfg.Ports)
	}
	ch := cfg.Ports[0].Channels[0]
	if ch.Interface != "vcan0" || ch.IDRange.Min != 0x100 || ch.IDRange.Max != 0x1FF {
		t.Fatalf("channel = %+v", ch)
	}
	if cfg.TotalChannels() != 1 {
		t.Fatalf("TotalChannels = %d", cfg.TotalChannels())
	}
}

func TestParse_RangeAcceptsDecimalAndHex(t *testing.T) {
	doc := strings.Replace(validDoc, `"min": "0x100", "max": "0x1FF"`, `"min": 256, "max": "511"`, 1)
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := cfg.Ports[0].Channels[0].IDRange
	if r.Min != 0x100 || r.Max != 0x1FF {
		t.Fatalf("range = [0x%X,0x%X]", uint32(r.Min), uint32(r.Max))
	}
}

func TestParse_LegacySinglePortKey(t *testing.T) {
	doc := `
{
  "server": { "ip": "192.168.1.1" },
  "ports": [
    {
      "udp_port": 7000,
      "channels": [
        { "vcan_name": "vcan0", "tx_channel_id": 1,
          "id_range": { "min": "0x0", "max": "0xFF" }, "bitrate": 250000 }
      ]
    }
  ]
}
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Ports[0].ListenPort != 7000 || cfg.Ports[0].SendPort != 7000 {
		t.Fatalf("legacy key not applied: %+v", cfg.Ports[0])
	}
}

func TestParse_SendPortDefaultsToListenPort(t *testing.T) {
	doc := strings.Replace(validDoc, `"udp_send_port": 5556,`, ``, 1)
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Ports[0].SendPort != 5555 {
		t.Fatalf("send port = %d, want 5555", cfg.Ports[0].SendPort)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"badIP", `{"server":{"ip":"not-an-ip"},"ports":[{"udp_listen_port":1,"channels":[{"vcan_name":"vcan0","id_range":{"min":0,"max":1}}]}]}`, "invalid server ip"},
		{"ipv6", `{"server":{"ip":"::1"},"ports":[{"udp_listen_port":1,"channels":[{"vcan_name":"vcan0","id_range":{"min":0,"max":1}}]}]}`, "invalid server ip"},
		{"noPorts", `{"server":{"ip":"10.0.0.1"},"ports":[]}`, "at least one port"},
		{"noChannels", `{"server":{"ip":"10.0.0.1"},"ports":[{"udp_listen_port":1,"channels":[]}]}`, "at least one channel"},
		{"noListenPort", `{"server":{"ip":"10.0.0.1"},"ports":[{"channels":[{"vcan_name":"vcan0","id_range":{"min":0,"max":1}}]}]}`, "udp_listen_port is required"},
		{"noIface", `{"server":{"ip":"10.0.0.1"},"ports":[{"udp_listen_port":1,"channels":[{"id_range":{"min":0,"max":1}}]}]}`, "vcan_name is required"},
		{"minAboveMax", `{"server":{"ip":"10.0.0.1"},"ports":[{"udp_listen_port":1,"channels":[{"vcan_name":"vcan0","id_range":{"min":"0x200","max":"0x100"}}]}]}`, "min 0x200 > max"},
		{"rangeTooWide", `{"server":{"ip":"10.0.0.1"},"ports":[{"udp_listen_port":1,"channels":[{"vcan_name":"vcan0","id_range":{"min":0,"max":"0x20000000"}}]}]}`, "29-bit"},
		{"dupIface", `{"server":{"ip":"10.0.0.1"},"ports":[{"udp_listen_port":1,"channels":[
			{"vcan_name":"vcan0","id_range":{"min":"0x100","max":"0x1FF"}},
			{"vcan_name":"vcan0","id_range":{"min":"0x200","max":"0x2FF"}}]}]}`, "configured twice"},
		{"dupListenPort", `{"server":{"ip":"10.0.0.1"},"ports":[
			{"udp_listen_port":1,"channels":[{"vcan_name":"vcan0","id_range":{"min":"0x100","max":"0x1FF"}}]},
			{"udp_listen_port":1,"channels":[{"vcan_name":"vcan1","id_range":{"min":"0x200","max":"0x2FF"}}]}]}`, "already used"},
		{"overlapSamePort", `{"server":{"ip":"10.0.0.1"},"ports":[{"udp_listen_port":1,"channels":[
			{"vcan_name":"vcan0","id_range":{"min":"0x100","max":"0x1FF"}},
			{"vcan_name":"vcan1","id_range":{"min":"0x180","max":"0x2FF"}}]}]}`, "overlaps"},
		{"overlapAcrossPorts", `{"server":{"ip":"10.0.0.1"},"ports":[
			{"udp_listen_port":1,"channels":[{"vcan_name":"vcan0","id_range":{"min":"0x100","max":"0x1FF"}}]},
			{"udp_listen_port":2,"channels":[{"vcan_name":"vcan1","id_range":{"min":"0x1FF","max":"0x2FF"}}]}]}`, "overlaps"},
		{"negativeHeartbeat", `{"server":{"ip":"10.0.0.1","heartbeat_interval_ms":-1},"ports":[{"udp_listen_port":1,"channels":[{"vcan_name":"vcan0","id_range":{"min":0,"max":1}}]}]}`, "heartbeat_interval_ms"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not contain %q", err, tc.want)
			}
		})
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	doc := strings.Replace(validDoc, `"bitrate": 500000`, `"bitrate": 500000, "typo_key": 1`, 1)
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestParse_BadIdentifierString(t *testing.T) {
	doc := strings.Replace(validDoc, `"0x100"`, `"zzz"`, 1)
	if _, err := Parse([]byte(doc)); err == nil || !strings.Contains(err.Error(), "invalid identifier") {
		t.Fatalf("got %v, want invalid identifier error", err)
	}
}
