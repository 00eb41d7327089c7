//go:build linux

package socketcan

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/cansys/udp-can-bridge/internal/can"
)

// FrameMTU is the kernel struct can_frame size for classic CAN.
const FrameMTU = unix.CAN_MTU

// Device is one bound non-blocking raw CAN socket.
type Device struct {
	fd    int
	iface string
}

// Open creates a non-blocking raw CAN socket bound to the named interface.
func Open(iface string) (*Device, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_CAN): %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set nonblock(can@%s): %w", iface, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 0); err != nil {
		// Older kernels may not know this option; ignore ENOPROTOOPT
		if err != unix.ENOPROTOOPT {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("disable CAN FD: %w", err)
		}
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("if %q: %w", iface, err)
	}
	sa := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind(can@%s): %w", iface, err)
	}
	return &Device{fd: fd, iface: iface}, nil
}

// Fd returns the raw descriptor for readiness registration.
func (d *Device) Fd() int { return d.fd }

// Name returns the interface the device is bound to.
func (d *Device) Name() string { return d.iface }

// Close releases the socket; safe to call more than once.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// ReadFrame reads one classic CAN frame without blocking. It returns the
// raw byte count so callers can detect a short kernel read; a would-block
// condition surfaces as unix.EAGAIN.
func (d *Device) ReadFrame(fr *can.Frame) (int, error) {
	var buf [FrameMTU]byte
	n, err := unix.Read(d.fd, buf[:])
	if err != nil {
		return 0, err
	}
	if n != FrameMTU {
		return n, nil
	}

	// struct can_frame (linux/can.h):
	//   can_id  u32   [0:4]  (includes EFF/RTR/ERR flags)
	//   can_dlc u8    [4]
	//   pad     3B    [5:8]
	//   data    [8]   [8:16]
	//
	// NOTE: The kernel provides fields in host byte order. On common Linux
	// archs (little-endian) this matches binary.LittleEndian. If you ever
	// target big-endian, switch to BigEndian here.
	id := binary.LittleEndian.Uint32(buf[0:4])
	dlc := int(buf[4])
	if dlc > 8 {
		dlc = 8
	}

	fr.CANID = id
	fr.Len = uint8(dlc)
	copy(fr.Data[:], buf[8:8+dlc])
	return n, nil
}

// WriteFrame writes one classic CAN frame to the raw CAN socket.
// A full socket queue surfaces as unix.EAGAIN.
func (d *Device) WriteFrame(fr can.Frame) error {
	var buf [FrameMTU]byte
	binary.LittleEndian.PutUint32(buf[0:4], fr.CANID)
	buf[4] = fr.Len
	copy(buf[8:], fr.Data[:fr.Len])
	_, err := unix.Write(d.fd, buf[:])
	return err
}
