//go:build linux

package bridge

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/cansys/udp-can-bridge/internal/can"
	"github.com/cansys/udp-can-bridge/internal/metrics"
	"github.com/cansys/udp-can-bridge/internal/socketcan"
	"github.com/cansys/udp-can-bridge/internal/wire"
)

// wouldBlock reports the nominal end-of-drain condition on a non-blocking
// descriptor.
func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// drainUDP receives datagrams from one port until the socket would block,
// decoding each whole 13-byte unit and writing it to the channel owning its
// identifier. A trailing partial unit is discarded. A would-block CAN write
// abandons the rest of the current datagram (back-pressure, no busy loop).
func (b *Bridge) drainUDP(portIndex int) {
	p := b.ports[portIndex]
	for {
		n, err := p.sock.Recv(p.rx)
		if err != nil {
			if wouldBlock(err) {
				return
			}
			metrics.IncError(metrics.ErrUDPRecv)
			b.log.Error("udp_recv_error", "port_index", portIndex, "error", err)
			return
		}
		if n == 0 {
			return
		}
		if n%wire.FrameSize != 0 {
			metrics.IncPartial()
			b.log.Warn("udp_payload_not_aligned", "port_index", portIndex, "len", n, "frame_size", wire.FrameSize)
		}

		for off := 0; off+wire.FrameSize <= n; off += wire.FrameSize {
			f, err := wire.Decode(p.rx[off : off+wire.FrameSize])
			if err != nil {
				metrics.IncError(metrics.ErrDecode)
				b.log.Warn("udp_decode_error", "port_index", portIndex, "offset", off, "error", err)
				continue
			}
			metrics.IncUDPRx()

			id := f.ID()
			channelIndex := b.table.Lookup(id)
			if channelIndex < 0 {
				metrics.IncUnrouted()
				b.log.Warn("no_route", "port_index", portIndex, "can_id", fmt.Sprintf("0x%X", id))
				continue
			}
			ch := b.channels[channelIndex]
			if ch.portIndex != portIndex {
				metrics.IncPortMismatch()
				b.log.Warn("port_mismatch",
					"port_index", portIndex,
					"channel_index", channelIndex,
					"owner_port", ch.portIndex,
					"can_id", fmt.Sprintf("0x%X", id))
				continue
			}
			if err := ch.dev.WriteFrame(f); err != nil {
				if wouldBlock(err) {
					metrics.IncDropped()
				} else {
					metrics.IncError(metrics.ErrCANWrite)
					b.log.Error("can_write_error", "channel_index", channelIndex, "error", err)
				}
				// Stop processing the remainder of this datagram either way.
				break
			}
			metrics.IncCANTx()
		}
	}
}

// drainCAN reads frames from one channel until the socket would block,
// encoding each into the shared scratch and sending it to the owning
// port's remote peer. A failed send drops the frame; UDP is best-effort.
func (b *Bridge) drainCAN(channelIndex int) {
	ch := b.channels[channelIndex]
	p := b.ports[ch.portIndex]
	for {
		var f can.Frame
		n, err := ch.dev.ReadFrame(&f)
		if err != nil {
			if wouldBlock(err) {
				return
			}
			metrics.IncError(metrics.ErrCANRead)
			b.log.Error("can_read_error", "channel_index", channelIndex, "error", err)
			return
		}
		if n == 0 {
			return
		}
		if n != socketcan.FrameMTU {
			b.log.Warn("can_short_read", "channel_index", channelIndex, "len", n)
			continue
		}
		metrics.IncCANRx()

		_ = wire.Encode(f, b.txBuf[:])
		if err := p.sock.Send(b.txBuf[:]); err != nil {
			if wouldBlock(err) {
				metrics.IncDropped()
			} else {
				metrics.IncError(metrics.ErrUDPSend)
				b.log.Error("udp_send_error", "port_index", ch.portIndex, "error", err)
			}
			return
		}
		metrics.IncUDPTx()
	}
}
