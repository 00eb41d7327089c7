//go:build linux

// Package udpsock provisions the non-blocking UDP datagram sockets the
// bridge uses to reach its remote peer.
package udpsock

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/cansys/udp-can-bridge/internal/logging"
)

// Socket is one bound non-blocking UDP socket with a fixed remote peer.
type Socket struct {
	fd     int
	listen uint16
	remote unix.SockaddrInet4
}

// Open creates a non-blocking UDP socket bound to the wildcard address on
// listenPort, with the remote peer pre-resolved to remoteIP:sendPort.
// SO_REUSEADDR is best-effort; a failure there is logged, not fatal.
func Open(listenPort uint16, remoteIP string, sendPort uint16) (*Socket, error) {
	ip := net.ParseIP(remoteIP)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("invalid server ip address: %q", remoteIP)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_INET, SOCK_DGRAM): %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set nonblock(udp:%d): %w", listenPort, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		logging.L().Warn("udp_reuseaddr_failed", "listen_port", listenPort, "error", err)
	}
	local := &unix.SockaddrInet4{Port: int(listenPort)}
	if err := unix.Bind(fd, local); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind(udp:%d): %w", listenPort, err)
	}

	s := &Socket{fd: fd, listen: listenPort}
	s.remote.Port = int(sendPort)
	copy(s.remote.Addr[:], ip.To4())
	return s, nil
}

// Fd returns the raw descriptor for readiness registration.
func (s *Socket) Fd() int { return s.fd }

// ListenPort returns the bound local port.
func (s *Socket) ListenPort() uint16 { return s.listen }

// Close releases the socket; safe to call more than once.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// Recv reads one datagram into buf without blocking. An empty queue
// surfaces as unix.EAGAIN.
func (s *Socket) Recv(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Send transmits one datagram to the pre-resolved remote peer.
// A full socket queue surfaces as unix.EAGAIN.
func (s *Socket) Send(b []byte) error {
	return unix.Sendto(s.fd, b, 0, &s.remote)
}
