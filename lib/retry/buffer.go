// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bureau-foundation/forward/lib/clock"
)

var (
	// ErrEmptyEntry is returned by Append for a zero-length payload.
	ErrEmptyEntry = errors.New("retry buffer: refusing to append empty entry")

	// ErrEntryTooLarge is returned by Append when a single payload
	// exceeds the byte limit and could never fit.
	ErrEntryTooLarge = errors.New("retry buffer: entry exceeds capacity")
)

// initialCapacity is the ring size allocated on the first Append.
const initialCapacity = 16

// Limits bounds a Buffer. Zero disables a bound; at least one must be
// positive. When both are set, each is enforced independently and
// whichever is hit first triggers eviction.
type Limits struct {
	MaxBytes   int
	MaxEntries int
}

// Buffer is a bounded FIFO of encoded frames that could not be sent.
// When an Append would exceed either limit, the oldest entries are
// evicted until the new entry fits. Eviction only ever removes from
// the front, so the relative order of surviving entries is the order
// they were appended.
//
// Storage is a ring that doubles as needed up to MaxEntries, giving
// O(1) amortized Append and O(1) eviction.
//
// Thread-safe: all methods may be called concurrently.
type Buffer struct {
	mu     sync.Mutex
	clock  clock.Clock
	limits Limits

	ring      []bufferEntry
	head      int
	count     int
	totalSize int
	dropped   uint64
	nextSeq   uint64
}

// bufferEntry is one frame with its byte size cached for O(1)
// accounting. seq identifies the entry across a Peek/Pop pair so that
// an eviction in between cannot make Pop remove the wrong entry.
type bufferEntry struct {
	data     []byte
	size     int
	enqueued time.Time
	seq      uint64
}

// NewBuffer creates an empty Buffer. Panics if neither limit is
// positive or either is negative: an unbounded retry buffer grows
// without limit during an outage.
func NewBuffer(limits Limits, clk clock.Clock) *Buffer {
	if limits.MaxBytes < 0 || limits.MaxEntries < 0 {
		panic(fmt.Sprintf("retry: negative limits %+v", limits))
	}
	if limits.MaxBytes == 0 && limits.MaxEntries == 0 {
		panic("retry: at least one of MaxBytes and MaxEntries must be positive")
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Buffer{clock: clk, limits: limits}
}

// Append adds data at the back of the buffer, evicting from the front
// as needed, and returns how many entries were evicted. The buffer
// takes ownership of data; the caller must not modify it afterwards.
//
// Empty entries and entries larger than MaxBytes are rejected without
// disturbing the existing contents.
func (b *Buffer) Append(data []byte) (evicted int, err error) {
	size := len(data)
	if size == 0 {
		return 0, ErrEmptyEntry
	}
	if b.limits.MaxBytes > 0 && size > b.limits.MaxBytes {
		return 0, fmt.Errorf("%w: %d bytes > %d", ErrEntryTooLarge, size, b.limits.MaxBytes)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count > 0 && b.overLimitLocked(size) {
		b.removeFrontLocked()
		evicted++
	}
	b.dropped += uint64(evicted)

	if b.count == len(b.ring) {
		b.growLocked()
	}
	b.nextSeq++
	b.ring[(b.head+b.count)%len(b.ring)] = bufferEntry{
		data:     data,
		size:     size,
		enqueued: b.clock.Now(),
		seq:      b.nextSeq,
	}
	b.count++
	b.totalSize += size
	return evicted, nil
}

// DrainAndReplay calls send on each entry in FIFO order, removing the
// entries send accepts. It stops at the first error, leaving the
// failed entry and everything after it queued, and returns the number
// of entries replayed along with that error.
//
// send is called without the buffer's lock held.
func (b *Buffer) DrainAndReplay(send func([]byte) error) (int, error) {
	replayed := 0
	for {
		data, seq, ok := b.front()
		if !ok {
			return replayed, nil
		}
		if err := send(data); err != nil {
			return replayed, err
		}
		b.popIf(seq)
		replayed++
	}
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// SizeBytes returns the total byte size of all buffered entries.
func (b *Buffer) SizeBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalSize
}

// Dropped returns the total number of entries evicted since creation.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// OldestEnqueued returns when the front entry was appended, and false
// if the buffer is empty.
func (b *Buffer) OldestEnqueued() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return time.Time{}, false
	}
	return b.ring[b.head].enqueued, true
}

func (b *Buffer) front() ([]byte, uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil, 0, false
	}
	entry := b.ring[b.head]
	return entry.data, entry.seq, true
}

// popIf removes the front entry only if it is still the one identified
// by seq. A concurrent Append may have evicted it while send ran.
func (b *Buffer) popIf(seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count > 0 && b.ring[b.head].seq == seq {
		b.removeFrontLocked()
	}
}

func (b *Buffer) overLimitLocked(incoming int) bool {
	if b.limits.MaxEntries > 0 && b.count >= b.limits.MaxEntries {
		return true
	}
	return b.limits.MaxBytes > 0 && b.totalSize+incoming > b.limits.MaxBytes
}

func (b *Buffer) removeFrontLocked() {
	evicted := b.ring[b.head]
	b.ring[b.head] = bufferEntry{} // release data for GC
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.totalSize -= evicted.size
	if b.count == 0 {
		b.head = 0
	}
}

// growLocked doubles the ring, capped at MaxEntries, and unwraps the
// contents so the head is at index zero.
func (b *Buffer) growLocked() {
	capacity := len(b.ring) * 2
	if capacity == 0 {
		capacity = initialCapacity
	}
	if b.limits.MaxEntries > 0 && capacity > b.limits.MaxEntries {
		capacity = b.limits.MaxEntries
	}
	ring := make([]bufferEntry, capacity)
	for i := 0; i < b.count; i++ {
		ring[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	b.ring = ring
	b.head = 0
}
