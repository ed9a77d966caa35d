package shm

import (
	"bytes"
	"fmt"
	"testing"
)

func newTestRing(t *testing.T, capacity uint32) *Ring {
	t.Helper()
	name := fmt.Sprintf("perpfeed-ring-test-%s", t.Name())
	r, err := CreateRing(name, capacity)
	if err != nil {
		t.Fatalf("CreateRing: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
	})
	return r
}

func TestPushPopFIFO(t *testing.T) {
	r := newTestRing(t, 64)

	msgs := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	for _, m := range msgs {
		if err := r.Push(m); err != nil {
			t.Fatalf("Push(%q): %v", m, err)
		}
	}
	for _, want := range msgs {
		got, ok := r.Pop()
		if !ok {
			t.Fatalf("Pop: ring unexpectedly empty, want %q", want)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Pop = %q, want %q", got, want)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("Pop on empty ring returned a message")
	}
}

func TestQueueFull(t *testing.T) {
	r := newTestRing(t, 16)

	// 16 bytes of data capacity; each push costs 4 (length prefix) + len(msg).
	if err := r.Push(make([]byte, 8)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := r.Push(make([]byte, 4)); err != ErrQueueFull {
		t.Fatalf("Push on nearly-full ring: got %v, want ErrQueueFull", err)
	}
}

func TestWrapAround(t *testing.T) {
	r := newTestRing(t, 16)

	// Fill, drain, and refill repeatedly so the cursors wrap past the end
	// of the data region.
	for i := 0; i < 20; i++ {
		msg := []byte(fmt.Sprintf("msg-%02d", i%10))
		if err := r.Push(msg); err != nil {
			t.Fatalf("iteration %d: Push: %v", i, err)
		}
		got, ok := r.Pop()
		if !ok {
			t.Fatalf("iteration %d: Pop: ring empty", i)
		}
		if !bytes.Equal(got, msg) {
			t.Fatalf("iteration %d: Pop = %q, want %q", i, got, msg)
		}
	}
}

func TestWrapAroundSplitCopy(t *testing.T) {
	r := newTestRing(t, 16)

	// Push/pop to advance the cursors close to the end of the region, then
	// push a message that must wrap mid-payload.
	if err := r.Push(make([]byte, 6)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, ok := r.Pop(); !ok {
		t.Fatal("Pop: ring empty")
	}
	// tail is now at 10 (4 prefix + 6 payload); a 10-byte payload needs a
	// 4-byte prefix at [10,14), then its first 2 bytes land at [14,16) and
	// the remaining 8 wrap to [0,8).
	payload := []byte("0123456789")
	if err := r.Push(payload); err != nil {
		t.Fatalf("Push wrapping payload: %v", err)
	}
	got, ok := r.Pop()
	if !ok {
		t.Fatal("Pop: ring empty")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Pop = %q, want %q", got, payload)
	}
}

func TestCreateRingRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := CreateRing("perpfeed-ring-test-bad-cap", 100); err != ErrBadCapacity {
		t.Fatalf("got %v, want ErrBadCapacity", err)
	}
}

func TestAttachRingSeesProducerState(t *testing.T) {
	name := fmt.Sprintf("perpfeed-ring-test-%s", t.Name())
	producer, err := CreateRing(name, 64)
	if err != nil {
		t.Fatalf("CreateRing: %v", err)
	}
	t.Cleanup(func() { producer.Close() })

	if err := producer.Push([]byte("hello")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	consumer, err := AttachRing(name, 64)
	if err != nil {
		t.Fatalf("AttachRing: %v", err)
	}
	defer consumer.Close()

	got, ok := consumer.Pop()
	if !ok {
		t.Fatal("Pop: ring empty")
	}
	if string(got) != "hello" {
		t.Fatalf("Pop = %q, want %q", got, "hello")
	}
}
