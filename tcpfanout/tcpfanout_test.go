package tcpfanout

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestServeHandshakeAndBroadcast(t *testing.T) {
	header := []byte("fake-header")
	s := NewServer(header)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	go func() {
		if err := s.Serve(addr); err != nil {
			t.Logf("Serve stopped: %v", err)
		}
	}()

	// Serve's own Listen races the goroutine above; retry the dial briefly.
	var c *Client
	var gotHeader []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, gotHeader, err = Dial(addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if !bytes.Equal(gotHeader, header) {
		t.Fatalf("header = %q, want %q", gotHeader, header)
	}

	// Give the server a moment to register the client before broadcasting.
	time.Sleep(50 * time.Millisecond)
	s.Broadcast([]byte("trade-frame"))

	frame, err := c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(frame, []byte("trade-frame")) {
		t.Fatalf("frame = %q, want %q", frame, "trade-frame")
	}
}

func TestDialBadHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Write a frame that isn't "START".
		writeFrame(conn, []byte("WRONG"))
	}()

	_, _, err = Dial(ln.Addr().String())
	if err != ErrBadHandshake {
		t.Fatalf("got %v, want ErrBadHandshake", err)
	}
}
