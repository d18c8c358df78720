// Package ring implements the ring buffer (RB): a fixed-size array of
// equal slots, one slot per captured frame, shared between the single
// capture-loop producer and the worker-pool consumers.
//
// This generalizes the teacher's borrow-many/return-many ring wrapper
// (snf/ring_reader.go's RingReader, snf/receiver.go's RingReceiver) —
// same shape of "fixed backing array, monotonic publish counter,
// spin-until-published consumer loop" — but expressed in pure Go
// rather than bound to SNF's cgo ring, since there is no proprietary
// capture hardware in this spec's scope (spec.md §6 only requires a
// generic packet-capture facility).
package ring

import (
	"encoding/binary"
	"sync/atomic"
)

// Marker is the publication flag for one slot. It is written last by
// the producer and read first by the consumer (spec.md §3, §4.2
// memory-ordering note). Each slot's marker lives in its own
// atomic.Uint32 (not in the shared byte array): the atomic Store is
// the release that publishes the slot body written just before it,
// and the atomic Load is the acquire a spinning consumer performs
// before trusting that body — an ordinary byte read/write here would
// give no such pairing (spec.md §9: "explicit release/acquire on the
// marker byte; do not rely on language-specific memory models without
// fences").
type Marker byte

const (
	// Empty means the slot has been fully consumed and is available
	// for the producer to reuse.
	Empty Marker = 0
	// Data means the slot holds a captured frame ready to decode.
	Data Marker = 1
	// End is written once per worker lane during shutdown; a worker
	// observing End exits its loop.
	End Marker = 2
)

// headerLen is the fixed (sec, usec, captured-length) prefix ahead of
// the frame bytes in every slot, per spec.md §3's ring-slot layout.
const headerLen = 4 + 4 + 2

// SlotLen returns the minimum slot length for frames captured at
// snapLen bytes (spec.md §3: "SLOT_LEN >= SNAP_LEN + 16").
func SlotLen(snapLen int) int {
	return headerLen + snapLen + 6 // 6 trailing reserved bytes bring the total to snapLen+16
}

// Buffer is the shared-memory ring: a flat byte array partitioned
// into Slots equal-size cells, indexed by a monotonically increasing
// write counter N, with publication state tracked out-of-band in
// markers so it can be a true atomic acquire/release pair.
type Buffer struct {
	mem     []byte
	slotLen int
	slots   int

	n     atomic.Uint64 // next index to be written; producer-only
	drops atomic.Uint64

	markers []atomic.Uint32 // one publication flag per slot
}

// NewBuffer allocates a ring of the given slot count and slot length.
func NewBuffer(slots, slotLen int) *Buffer {
	return &Buffer{
		mem:     make([]byte, slots*slotLen),
		slotLen: slotLen,
		slots:   slots,
		markers: make([]atomic.Uint32, slots),
	}
}

// Slots reports the number of slots in the ring.
func (b *Buffer) Slots() int { return b.slots }

// N returns the current published write counter.
func (b *Buffer) N() uint64 { return b.n.Load() }

// Drops returns the number of frames silently dropped because the
// producer lapped a slot whose previous occupant had not yet been
// cleared by its consumer (spec.md §7 "RB overrun", §9 open question
// resolved by adding a counter).
func (b *Buffer) Drops() uint64 { return b.drops.Load() }

func (b *Buffer) idx(i uint64) int {
	return int(i % uint64(b.slots))
}

func (b *Buffer) slot(i uint64) []byte {
	idx := b.idx(i)
	off := idx * b.slotLen
	return b.mem[off : off+b.slotLen]
}

// Write stores one captured frame into the next slot and publishes
// it. It is only ever called by the single capture-loop producer
// goroutine. If the target slot's previous occupant has not yet been
// cleared back to Empty by its consumer, the write proceeds anyway
// (silent overwrite per spec.md §4.2/§7) and Drops is incremented.
func (b *Buffer) Write(sec, usec uint32, frame []byte) {
	i := b.n.Load()
	idx := b.idx(i)
	s := b.slot(i)

	if Marker(b.markers[idx].Load()) != Empty {
		b.drops.Add(1)
	}

	binary.BigEndian.PutUint32(s[0:4], sec)
	binary.BigEndian.PutUint32(s[4:8], usec)
	capLen := len(frame)
	if capLen > b.slotLen-headerLen-1 {
		capLen = b.slotLen - headerLen - 1
	}
	binary.BigEndian.PutUint16(s[8:10], uint16(capLen))
	copy(s[headerLen:headerLen+capLen], frame[:capLen])

	// The atomic store is the release: it publishes the header/frame
	// writes above to whichever goroutine later Load()s this same
	// marker (MarkerAt/Read), pairing as the spec's acquire/release.
	b.markers[idx].Store(uint32(Data))

	b.n.Store(i + 1)
}

// WriteEnd publishes an End marker in the next slot, used once per
// worker during shutdown (spec.md §4.2 "Shutdown"); successive calls
// land in successive lanes.
func (b *Buffer) WriteEnd() {
	i := b.n.Load()
	idx := b.idx(i)
	b.markers[idx].Store(uint32(End))
	b.n.Store(i + 1)
}

// Slot is a decoded view of one ring slot's contents.
type Slot struct {
	Sec, Usec uint32
	Frame     []byte
	Marker    Marker
}

// Read returns a decoded copy of slot i's current contents. Callers
// must have already confirmed via marker observation that the slot
// holds Data or End before trusting Frame's length. The marker load
// here is the acquire pairing with Write's release store, so the
// header/frame bytes below are guaranteed visible.
func (b *Buffer) Read(i uint64) Slot {
	idx := b.idx(i)
	marker := Marker(b.markers[idx].Load())
	s := b.slot(i)
	capLen := binary.BigEndian.Uint16(s[8:10])
	frame := make([]byte, capLen)
	copy(frame, s[headerLen:headerLen+int(capLen)])
	return Slot{
		Sec:    binary.BigEndian.Uint32(s[0:4]),
		Usec:   binary.BigEndian.Uint32(s[4:8]),
		Frame:  frame,
		Marker: marker,
	}
}

// MarkerAt returns the current marker for slot i without copying the
// frame body — the cheap spin-wait check workers poll on. It is an
// atomic acquire load, the same one Read performs.
func (b *Buffer) MarkerAt(i uint64) Marker {
	idx := b.idx(i)
	return Marker(b.markers[idx].Load())
}

// Clear resets slot i's marker back to Empty, releasing it for the
// producer to reuse. Only the slot's single assigned consumer may
// call this.
func (b *Buffer) Clear(i uint64) {
	idx := b.idx(i)
	b.markers[idx].Store(uint32(Empty))
}
