package ringbuffer

import (
	"sync"

	"github.com/zsiec/mediaengine/block"
)

// Set is a mutex-guarded collection of per-stream-type Buffers. The engine
// replaces the whole map at Open/Close/ChangeMedia so a worker reading
// through Get/All never observes a map mutated out from under it.
type Set struct {
	mu   sync.RWMutex
	bufs map[block.StreamType]*Buffer
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{}
}

// Replace swaps in a new stream-type-to-Buffer mapping wholesale.
func (s *Set) Replace(bufs map[block.StreamType]*Buffer) {
	s.mu.Lock()
	s.bufs = bufs
	s.mu.Unlock()
}

// Get returns the Buffer for t, or nil if none is configured.
func (s *Set) Get(t block.StreamType) *Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bufs[t]
}

// All returns a snapshot copy of the current stream-type-to-Buffer map.
func (s *Set) All() map[block.StreamType]*Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[block.StreamType]*Buffer, len(s.bufs))
	for k, v := range s.bufs {
		out[k] = v
	}
	return out
}
