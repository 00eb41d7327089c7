//go:build linux

// Package epoll wraps the readiness-notification facility the bridge run
// loop blocks on. Every descriptor is registered once, read-only, tagged so
// a ready event maps straight back to its owning port or channel.
package epoll

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind discriminates the owner of a registered descriptor.
type Kind uint16

const (
	KindUDP Kind = 1
	KindCAN Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindUDP:
		return "udp"
	case KindCAN:
		return "can"
	default:
		return "unknown"
	}
}

// Token correlates a readiness event back to a (kind, index) pair.
// It is packed into the epoll event's u64 at registration time.
type Token struct {
	Kind  Kind
	Index uint32
}

const kindShift = 32

func (t Token) pack() uint64 { return uint64(t.Kind)<<kindShift | uint64(t.Index) }

func unpack(v uint64) Token {
	return Token{Kind: Kind(v >> kindShift), Index: uint32(v)}
}

// Event is one readiness notification.
type Event struct {
	Token Token
}

// Poller is a single epoll instance. It is not safe for concurrent use;
// the bridge owns exactly one and drives it from one goroutine.
type Poller struct {
	fd  int
	evs []unix.EpollEvent
}

// New creates the epoll instance sized for at most capacity descriptors.
func New(capacity int) (*Poller, error) {
	if capacity <= 0 {
		capacity = 1
	}
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Poller{fd: fd, evs: make([]unix.EpollEvent, capacity)}, nil
}

// Register adds fd for read-readiness under the given token.
func (p *Poller) Register(fd int, tok Token) error {
	if p.fd < 0 || fd < 0 {
		return fmt.Errorf("epoll register %s[%d]: invalid descriptor", tok.Kind, tok.Index)
	}
	packed := tok.pack()
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(packed),
		Pad:    int32(packed >> 32),
	}
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add %s[%d]: %w", tok.Kind, tok.Index, err)
	}
	return nil
}

// Wait blocks until at least one descriptor is readable or timeoutMs
// elapses, invoking fn for each ready event. It returns the number of
// events dispatched. EINTR during the wait retries immediately; a timeout
// with zero events returns (0, nil).
func (p *Poller) Wait(timeoutMs int, fn func(Event)) (int, error) {
	for {
		n, err := unix.EpollWait(p.fd, p.evs, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, fmt.Errorf("epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			packed := uint64(uint32(p.evs[i].Fd)) | uint64(uint32(p.evs[i].Pad))<<32
			fn(Event{Token: unpack(packed)})
		}
		return n, nil
	}
}

// Close releases the epoll descriptor; safe to call more than once.
func (p *Poller) Close() error {
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}
