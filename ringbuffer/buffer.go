// Package ringbuffer implements the Media Engine's Block Buffer (spec §4.A):
// a time-indexed, gap-tolerant but monotonic-by-start-time ring of decoded
// Blocks for one stream type, with bounded capacity and a retention window
// around the playhead.
package ringbuffer

import (
	"sync"
	"time"

	"github.com/zsiec/mediaengine/block"
)

// Range describes the time span currently held by a Buffer.
type Range struct {
	Start, End time.Duration
}

// Duration returns End - Start.
func (r Range) Duration() time.Duration { return r.End - r.Start }

// Guard represents a short-lived read lock on a single borrowed Block.
// The holder must call Release when done rendering/inspecting the block;
// a writer evicting that specific block blocks on Release only, not on the
// whole buffer (§4.A guarantee).
type Guard struct {
	block   *block.Block
	release func()
}

// Block returns the borrowed block.
func (g Guard) Block() *block.Block { return g.block }

// Release returns the guard, allowing the writer to evict the block.
func (g Guard) Release() {
	if g.release != nil {
		g.release()
	}
}

type slot struct {
	b       *block.Block
	readers int
	evicted bool
}

// Buffer is a fixed-capacity ring of Blocks for a single stream type.
// Single exclusive writer (the Decoding Worker), multiple readers (the
// Rendering Worker and external capture). Safe for concurrent use.
type Buffer struct {
	streamType block.StreamType
	capacity   int

	mu    sync.Mutex
	cond  *sync.Cond
	slots []*slot
}

// New creates an empty Buffer for streamType with the given capacity.
func New(streamType block.StreamType, capacity int) *Buffer {
	b := &Buffer{
		streamType: streamType,
		capacity:   capacity,
		slots:      make([]*slot, 0, capacity),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Capacity returns the buffer's fixed capacity.
func (b *Buffer) Capacity() int { return b.capacity }

// Count returns the number of blocks currently held.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots)
}

// IsFull reports whether Count() == Capacity().
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots) >= b.capacity
}

// Range returns the time span [first.Start, last.End) currently held, or
// the zero Range if empty.
func (b *Buffer) Range() Range {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.slots) == 0 {
		return Range{}
	}
	return Range{Start: b.slots[0].b.StartTime, End: b.slots[len(b.slots)-1].b.EndTime}
}

// Add appends blk when its start time is at or after the last block's
// start time (a block with an equal start time is appended as well). If
// blk.StartTime is before the last block's start time the
// buffer is reset first (out-of-order frames force a reset for that
// stream, §5 ordering guarantees), then blk becomes the sole entry.
// If, after any reset, the buffer is at capacity, the oldest block is
// evicted to make room — Add blocks until that block's readers release it.
func (b *Buffer) Add(blk *block.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.slots) > 0 && blk.StartTime < b.slots[len(b.slots)-1].b.StartTime {
		b.resetLocked()
	}

	for len(b.slots) >= b.capacity {
		b.evictOldestLocked()
	}

	b.slots = append(b.slots, &slot{b: blk})
}

// Get returns the unique block whose [start, end) contains t. If t is
// before the buffer's range, it returns (nil, false). If t is at or past
// the range end, it returns the last block (for the trailing frame, per
// §4.A).
func (b *Buffer) Get(t time.Duration) (*block.Block, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.slots) == 0 {
		return nil, false
	}
	if t < b.slots[0].b.StartTime {
		return nil, false
	}
	last := b.slots[len(b.slots)-1].b
	if t >= last.EndTime {
		return last, true
	}
	// Binary search would be appropriate at larger capacities; buffer
	// capacities here are small (tens of blocks), so linear scan keeps the
	// logic simple and matches the teacher's preference for straightforward
	// slice loops over generic containers.
	for _, s := range b.slots {
		if s.b.Contains(t) {
			return s.b, true
		}
	}
	return nil, false
}

// First returns the earliest block, or (nil, false) if empty.
func (b *Buffer) First() (*block.Block, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.slots) == 0 {
		return nil, false
	}
	return b.slots[0].b, true
}

// Last returns the most recent block, or (nil, false) if empty.
func (b *Buffer) Last() (*block.Block, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.slots) == 0 {
		return nil, false
	}
	return b.slots[len(b.slots)-1].b, true
}

// TryAcquireReader returns a Guard borrowing blk for reading, or false if
// blk is not currently present in the buffer (e.g. already evicted).
func (b *Buffer) TryAcquireReader(blk *block.Block) (Guard, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.slots {
		if s.b == blk {
			if s.evicted {
				return Guard{}, false
			}
			s.readers++
			return Guard{block: blk, release: func() { b.releaseReader(s) }}, true
		}
	}
	return Guard{}, false
}

func (b *Buffer) releaseReader(s *slot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.readers--
	if s.readers <= 0 && s.evicted {
		b.cond.Broadcast()
	}
}

// EvictBefore evicts all blocks strictly older than cutoff (the Decoding
// Worker's look-behind eviction, §4.F). Eviction of a block currently
// borrowed by a reader waits for that reader's Guard.Release.
func (b *Buffer) EvictBefore(cutoff time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.slots) > 0 && b.slots[0].b.EndTime <= cutoff {
		b.evictOldestLocked()
	}
}

// evictOldestLocked removes slots[0], waiting for any active readers to
// release it first. Caller must hold b.mu.
func (b *Buffer) evictOldestLocked() {
	s := b.slots[0]
	s.evicted = true
	for s.readers > 0 {
		b.cond.Wait()
	}
	b.slots = b.slots[1:]
}

// Reset releases all blocks. Borrows in flight are waited on; new borrows
// are refused while the reset is executing (invariant iii in §3).
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *Buffer) resetLocked() {
	for _, s := range b.slots {
		s.evicted = true
		for s.readers > 0 {
			b.cond.Wait()
		}
	}
	b.slots = b.slots[:0]
}
