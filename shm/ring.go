// Package shm provides a lock-free single-producer single-consumer ring
// buffer backed by a memory-mapped file under /dev/shm, plus a seqlock
// snapshot table for publishing the latest trade per asset outside the
// ring's strict FIFO order.
package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"
)

// HeaderSize is the fixed size, in bytes, of the control block at the start
// of the mapped file: capacity plus the atomic head and tail cursors,
// padded out to a page boundary so the data region starts page-aligned.
const HeaderSize = 4096

const lengthPrefixSize = 4

// byte offsets of the header fields within the mapping.
const (
	capacityOff = 0
	headOff     = 4
	tailOff     = 8
)

// Ring is a wait-free-push, busy-wait-pop SPSC queue. The producer and
// consumer each open the same /dev/shm file and must agree on capacity;
// Capacity must be a power of two so the cursor-to-offset mapping can use a
// mask instead of a modulo. head and tail live inside data itself (at
// headOff/tailOff) so both processes observe the same cursors; they're
// accessed only through atomicAt, never as plain fields.
type Ring struct {
	file     *os.File
	data     []byte // the full mapping: header + ring data
	capacity uint32
}

// atomicAt returns a pointer to the uint32 at the given byte offset in
// data, for use with the sync/atomic load/store/CAS functions. data is the
// shared mmap region; this is the same technique the ring's reference
// implementation uses with an AtomicU32 placed directly inside the mapped
// struct.
func atomicAt(data []byte, offset int) *uint32 {
	return (*uint32)(unsafe.Pointer(&data[offset]))
}

// ErrQueueFull is returned by Push when there isn't enough free space for
// the message.
var ErrQueueFull = fmt.Errorf("shm: queue full")

// ErrBadCapacity is returned when capacity is zero or not a power of two.
var ErrBadCapacity = fmt.Errorf("shm: capacity must be a power of two")

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

// CreateRing creates (or truncates and re-creates) the ring's backing file
// at /dev/shm/<name> and maps it. capacity is the size of the data region
// in bytes, excluding the header, and must be a power of two.
func CreateRing(name string, capacity uint32) (*Ring, error) {
	if !isPowerOfTwo(capacity) {
		return nil, ErrBadCapacity
	}
	path := "/dev/shm/" + name
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	total := int64(HeaderSize) + int64(capacity)
	if err := f.Truncate(total); err != nil {
		f.Close()
		return nil, err
	}
	r, err := mapRing(f, capacity)
	if err != nil {
		f.Close()
		return nil, err
	}
	atomic.StoreUint32(atomicAt(r.data, headOff), 0)
	atomic.StoreUint32(atomicAt(r.data, tailOff), 0)
	binary.LittleEndian.PutUint32(r.data[capacityOff:capacityOff+4], capacity)
	return r, nil
}

// AttachRing opens an existing ring at /dev/shm/<name> without resetting
// its cursors, for a consumer joining a producer that's already running.
func AttachRing(name string, capacity uint32) (*Ring, error) {
	if !isPowerOfTwo(capacity) {
		return nil, ErrBadCapacity
	}
	path := "/dev/shm/" + name
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	r, err := mapRing(f, capacity)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func mapRing(f *os.File, capacity uint32) (*Ring, error) {
	total := int(HeaderSize) + int(capacity)
	data, err := syscall.Mmap(int(f.Fd()), 0, total, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &Ring{
		file:     f,
		data:     data,
		capacity: capacity,
	}, nil
}

// Push appends a length-prefixed message to the ring. It never blocks:
// when there isn't enough free space it returns ErrQueueFull immediately.
func (r *Ring) Push(msg []byte) error {
	needed := uint32(lengthPrefixSize + len(msg))
	tail := atomic.LoadUint32(atomicAt(r.data, tailOff))
	head := atomic.LoadUint32(atomicAt(r.data, headOff))
	free := r.capacity - (tail - head)
	if needed > free {
		return ErrQueueFull
	}

	var lenBuf [lengthPrefixSize]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(msg)))
	r.writeAt(tail, lenBuf[:])
	r.writeAt(tail+lengthPrefixSize, msg)

	atomic.StoreUint32(atomicAt(r.data, tailOff), tail+needed)
	return nil
}

// Pop removes and returns the oldest message, or (nil, false) if the ring
// is empty. Callers that want to block poll this in a loop.
func (r *Ring) Pop() ([]byte, bool) {
	head := atomic.LoadUint32(atomicAt(r.data, headOff))
	tail := atomic.LoadUint32(atomicAt(r.data, tailOff))
	if head == tail {
		return nil, false
	}

	var lenBuf [lengthPrefixSize]byte
	r.readAt(head, lenBuf[:])
	msgLen := binary.LittleEndian.Uint32(lenBuf[:])

	msg := make([]byte, msgLen)
	r.readAt(head+lengthPrefixSize, msg)

	atomic.StoreUint32(atomicAt(r.data, headOff), head+lengthPrefixSize+msgLen)
	return msg, true
}

// writeAt copies bytes into the ring's data region starting at the byte
// offset given by cursor (mod capacity), splitting the copy in two when it
// crosses the end of the region.
func (r *Ring) writeAt(cursor uint32, bytes []byte) {
	off := cursor & (r.capacity - 1)
	base := HeaderSize
	end := int(off) + len(bytes)
	if end <= int(r.capacity) {
		copy(r.data[base+int(off):], bytes)
		return
	}
	first := int(r.capacity) - int(off)
	copy(r.data[base+int(off):], bytes[:first])
	copy(r.data[base:], bytes[first:])
}

// readAt is writeAt's mirror image for the consumer side.
func (r *Ring) readAt(cursor uint32, dst []byte) {
	off := cursor & (r.capacity - 1)
	base := HeaderSize
	end := int(off) + len(dst)
	if end <= int(r.capacity) {
		copy(dst, r.data[base+int(off):base+int(off)+len(dst)])
		return
	}
	first := int(r.capacity) - int(off)
	copy(dst[:first], r.data[base+int(off):base+int(r.capacity)])
	copy(dst[first:], r.data[base:base+(len(dst)-first)])
}

// Close unmaps the ring and closes its backing file. It does not remove
// the /dev/shm entry; the next CreateRing call truncates it.
func (r *Ring) Close() error {
	if err := syscall.Munmap(r.data); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}
