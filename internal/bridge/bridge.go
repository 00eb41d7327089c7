//go:build linux

// Package bridge implements the UDP/SocketCAN relay engine: one goroutine
// owns every descriptor, blocks on a single epoll instance, and drains
// whichever side became readable. Frames arriving on a UDP port are decoded
// from their 13-byte wire form and routed to the CAN channel whose
// identifier range contains them; frames read from a CAN channel are
// encoded and sent to the owning port's remote peer.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cansys/udp-can-bridge/internal/can"
	"github.com/cansys/udp-can-bridge/internal/config"
	"github.com/cansys/udp-can-bridge/internal/epoll"
	"github.com/cansys/udp-can-bridge/internal/logging"
	"github.com/cansys/udp-can-bridge/internal/metrics"
	"github.com/cansys/udp-can-bridge/internal/routing"
	"github.com/cansys/udp-can-bridge/internal/socketcan"
	"github.com/cansys/udp-can-bridge/internal/udpsock"
	"github.com/cansys/udp-can-bridge/internal/wire"
)

const (
	// MaxPorts and MaxChannels bound the descriptor set; exceeding either
	// is a configuration error, not a provisioning failure.
	MaxPorts    = 8
	MaxChannels = 32

	rxBufSize     = 4096 // per-port UDP receive scratch
	waitTimeoutMs = 1000 // epoll timeout so shutdown is observed without traffic
)

var (
	ErrTooManyPorts    = errors.New("bridge: too many udp ports")
	ErrTooManyChannels = errors.New("bridge: too many can channels")
	ErrNotInitialized  = errors.New("bridge: not initialized")
)

// CANDevice is the raw CAN endpoint surface the engine needs. Implemented
// by *socketcan.Device in production and by fakes in tests.
type CANDevice interface {
	Fd() int
	ReadFrame(*can.Frame) (int, error)
	WriteFrame(can.Frame) error
	Close() error
}

// UDPSocket is the datagram endpoint surface the engine needs.
// Implemented by *udpsock.Socket in production and by fakes in tests.
type UDPSocket interface {
	Fd() int
	Recv([]byte) (int, error)
	Send([]byte) error
	Close() error
}

// Open hooks, overridden in unit tests.
var (
	openCANDevice = func(iface string) (CANDevice, error) { return socketcan.Open(iface) }
	openUDPSocket = func(listen uint16, remoteIP string, send uint16) (UDPSocket, error) {
		return udpsock.Open(listen, remoteIP, send)
	}
)

type portState struct {
	cfg  config.Port
	sock UDPSocket
	rx   []byte
}

type channelState struct {
	cfg       config.Channel
	dev       CANDevice
	portIndex int
}

// Bridge is the runtime engine. All fields are owned by the goroutine
// calling Initialize/Run/Shutdown; no locking anywhere.
type Bridge struct {
	cfg      *config.Config
	log      *slog.Logger
	poller   *epoll.Poller
	ports    []*portState
	channels []*channelState
	table    *routing.Table
	txBuf    [wire.FrameSize]byte
}

// New creates an engine for the given validated configuration.
func New(cfg *config.Config, l *slog.Logger) *Bridge {
	if l == nil {
		l = logging.L()
	}
	return &Bridge{cfg: cfg, log: l}
}

// Initialize provisions every UDP port and CAN channel and builds the
// routing table. Provisioning is all-or-nothing: the first failure closes
// everything opened so far and returns the error.
func (b *Bridge) Initialize() error {
	b.Shutdown()

	if len(b.cfg.Ports) == 0 {
		return errors.New("bridge: configuration must contain at least one udp port")
	}
	if len(b.cfg.Ports) > MaxPorts {
		return fmt.Errorf("%w: %d > %d", ErrTooManyPorts, len(b.cfg.Ports), MaxPorts)
	}
	if n := b.cfg.TotalChannels(); n > MaxChannels {
		return fmt.Errorf("%w: %d > %d", ErrTooManyChannels, n, MaxChannels)
	}

	poller, err := epoll.New(len(b.cfg.Ports) + b.cfg.TotalChannels())
	if err != nil {
		metrics.IncError(metrics.ErrProvision)
		return err
	}
	b.poller = poller

	var entries []routing.Entry
	for _, portCfg := range b.cfg.Ports {
		sock, err := openUDPSocket(portCfg.ListenPort, b.cfg.Server.IP, portCfg.SendPort)
		if err != nil {
			metrics.IncError(metrics.ErrProvision)
			b.Shutdown()
			return fmt.Errorf("udp port %d: %w", portCfg.ListenPort, err)
		}
		b.ports = append(b.ports, &portState{cfg: portCfg, sock: sock, rx: make([]byte, rxBufSize)})
		portIndex := len(b.ports) - 1

		if err := b.poller.Register(sock.Fd(), epoll.Token{Kind: epoll.KindUDP, Index: uint32(portIndex)}); err != nil {
			metrics.IncError(metrics.ErrProvision)
			b.Shutdown()
			return err
		}
		b.log.Info("udp_listen",
			"port_index", portIndex,
			"listen_port", portCfg.ListenPort,
			"remote", fmt.Sprintf("%s:%d", b.cfg.Server.IP, portCfg.SendPort))

		for _, chCfg := range portCfg.Channels {
			dev, err := openCANDevice(chCfg.Interface)
			if err != nil {
				metrics.IncError(metrics.ErrProvision)
				b.Shutdown()
				return fmt.Errorf("can channel %s: %w", chCfg.Interface, err)
			}
			b.channels = append(b.channels, &channelState{cfg: chCfg, dev: dev, portIndex: portIndex})
			channelIndex := len(b.channels) - 1

			if err := b.poller.Register(dev.Fd(), epoll.Token{Kind: epoll.KindCAN, Index: uint32(channelIndex)}); err != nil {
				metrics.IncError(metrics.ErrProvision)
				b.Shutdown()
				return err
			}
			entries = append(entries, routing.Entry{Range: chCfg.IDRange.IDRange(), Channel: channelIndex})
			b.log.Info("can_bound",
				"channel_index", channelIndex,
				"if", chCfg.Interface,
				"range_min", fmt.Sprintf("0x%X", uint32(chCfg.IDRange.Min)),
				"range_max", fmt.Sprintf("0x%X", uint32(chCfg.IDRange.Max)),
				"port_index", portIndex)
		}
	}

	b.table = routing.Build(entries)
	return nil
}

// Shutdown closes every channel, port and the poller. Safe to call more
// than once and on a partially initialized engine.
func (b *Bridge) Shutdown() {
	for _, ch := range b.channels {
		_ = ch.dev.Close()
	}
	for _, p := range b.ports {
		_ = p.sock.Close()
	}
	if b.poller != nil {
		_ = b.poller.Close()
	}
	b.channels = nil
	b.ports = nil
	b.poller = nil
	b.table = nil
}

// Ports returns the number of provisioned UDP ports.
func (b *Bridge) Ports() int { return len(b.ports) }

// Channels returns the number of provisioned CAN channels.
func (b *Bridge) Channels() int { return len(b.channels) }
