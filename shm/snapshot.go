package shm

import (
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"
)

// SnapshotSlotSize is the on-wire size of one SnapshotSlot: one 64-byte
// cache line, so neighbouring slots in the page-aligned mapping never share
// a line.
const SnapshotSlotSize = 64

// SnapshotSlot holds the most recent trade seen for one asset. Readers and
// the single writer coordinate with the Seqlock field: odd means a write is
// in progress, even means the rest of the slot is consistent.
type SnapshotSlot struct {
	Seqlock      uint32
	IsBuyerMaker uint8
	_pad0        [3]byte
	Timestamp    uint64
	Price        float64
	Quantity     float64
	_reserved    [32]byte
}

func init() {
	if unsafe.Sizeof(SnapshotSlot{}) != SnapshotSlotSize {
		panic(fmt.Sprintf("SnapshotSlot size is %d, expected %d", unsafe.Sizeof(SnapshotSlot{}), SnapshotSlotSize))
	}
}

// SnapshotTable is a single-writer, multi-reader table of the latest trade
// per asset, published outside the ring's FIFO contract: the pipeline
// writes here right after a successful Ring.Push so a reader that only
// cares about "what's the last trade" never has to drain the ring.
//
// The table is indexed by wire asset id (0..127, the same id the codec
// packs into a frame's asset byte), not by symbol, so the writer needs no
// lookup on the hot path.
type SnapshotTable struct {
	file *os.File
	data []byte
	n    int
}

// CreateSnapshotTable creates or truncates the table's backing file at
// /dev/shm/<name> and maps it with room for n assets.
func CreateSnapshotTable(name string, n int) (*SnapshotTable, error) {
	path := "/dev/shm/" + name
	size := n * SnapshotSlotSize
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, err
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &SnapshotTable{file: f, data: data, n: n}, nil
}

// AttachSnapshotTable opens an existing table for read-only consumption.
func AttachSnapshotTable(name string, n int) (*SnapshotTable, error) {
	path := "/dev/shm/" + name
	size := n * SnapshotSlotSize
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &SnapshotTable{file: f, data: data, n: n}, nil
}

func (s *SnapshotTable) slot(assetID int) *SnapshotSlot {
	return (*SnapshotSlot)(unsafe.Pointer(&s.data[assetID*SnapshotSlotSize]))
}

// Write publishes a trade as the latest snapshot for assetID.
func (s *SnapshotTable) Write(assetID int, timestamp uint64, price, quantity float64, isBuyerMaker bool) {
	slot := s.slot(assetID)
	seqAddr := &slot.Seqlock

	seq := atomic.LoadUint32(seqAddr)
	atomic.StoreUint32(seqAddr, seq+1) // odd: write in progress

	slot.Timestamp = timestamp
	slot.Price = price
	slot.Quantity = quantity
	if isBuyerMaker {
		slot.IsBuyerMaker = 1
	} else {
		slot.IsBuyerMaker = 0
	}

	atomic.StoreUint32(seqAddr, seq+2) // even: write complete
}

// Read returns the latest snapshot for assetID. ok is false only if no
// trade has been published yet (the slot is still at its zero seqlock).
func (s *SnapshotTable) Read(assetID int) (timestamp uint64, price, quantity float64, isBuyerMaker bool, ok bool) {
	slot := s.slot(assetID)
	seqAddr := &slot.Seqlock

	for {
		seq1 := atomic.LoadUint32(seqAddr)
		if seq1&1 != 0 {
			continue // writer mid-update, retry
		}
		timestamp = slot.Timestamp
		price = slot.Price
		quantity = slot.Quantity
		isBuyerMaker = slot.IsBuyerMaker != 0
		seq2 := atomic.LoadUint32(seqAddr)
		if seq1 == seq2 {
			return timestamp, price, quantity, isBuyerMaker, seq1 != 0
		}
		// torn read, retry
	}
}

// Close unmaps the table and closes its backing file.
func (s *SnapshotTable) Close() error {
	if err := syscall.Munmap(s.data); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
