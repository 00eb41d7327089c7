//go:build linux

package epoll

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestTokenPackRoundTrip(t *testing.T) {
	cases := []Token{
		{Kind: KindUDP, Index: 0},
		{Kind: KindCAN, Index: 0},
		{Kind: KindUDP, Index: 7},
		{Kind: KindCAN, Index: 31},
		{Kind: KindCAN, Index: 0xFFFFFFFF},
	}
	for _, tok := range cases {
		if got := unpack(tok.pack()); got != tok {
			t.Errorf("unpack(pack(%+v)) = %+v", tok, got)
		}
	}
}

func TestPoller_WaitDispatchesToken(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	tok := Token{Kind: KindCAN, Index: 5}
	if err := p.Register(fds[0], tok); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Nothing readable yet: a timeout is a no-op, not an error.
	n, err := p.Wait(0, func(Event) { t.Fatal("unexpected event") })
	if err != nil || n != 0 {
		t.Fatalf("idle Wait = (%d, %v)", n, err)
	}

	if _, err := unix.Write(fds[1], []byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got []Token
	n, err = p.Wait(1000, func(ev Event) { got = append(got, ev.Token) })
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 || len(got) != 1 || got[0] != tok {
		t.Fatalf("dispatched %v (n=%d), want [%+v]", got, n, tok)
	}
}

func TestPoller_RegisterInvalidFd(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()
	if err := p.Register(-1, Token{Kind: KindUDP}); err == nil {
		t.Fatal("expected error for invalid descriptor")
	}
}

func TestPoller_CloseIdempotent(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
