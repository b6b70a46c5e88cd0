package transport

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestDialTCPConnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	p, err := DialTCP(ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("DialTCP() error: %v", err)
	}
	p.Close()
}

func TestDialTCPRetriesUntilServerListens(t *testing.T) {
	// Reserve a port, release it, and start listening only after a delay to
	// mimic a server that binds its port slowly after spawn.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	go func() {
		time.Sleep(200 * time.Millisecond)
		late, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer late.Close()
		conn, err := late.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	p, err := DialTCP(addr, 3*time.Second)
	if err != nil {
		t.Fatalf("DialTCP() error: %v", err)
	}
	p.Close()
}

func TestDialTCPTimesOut(t *testing.T) {
	// Reserve a port with nothing listening on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	start := time.Now()
	_, err = DialTCP(addr, 300*time.Millisecond)
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("DialTCP() error = %v, want ErrConnectTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("DialTCP took %v, expected to give up near the window", elapsed)
	}
}
