package packetqueue

import (
	"sync"

	"github.com/zsiec/mediaengine/block"
)

// Set is a mutex-guarded collection of per-stream-type Queues, replaced
// wholesale at Open/Close/ChangeMedia so the Reading Worker never observes
// a half-updated map.
type Set struct {
	mu     sync.RWMutex
	queues map[block.StreamType]*Queue
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{}
}

// Replace swaps in a new stream-type-to-Queue mapping wholesale.
func (s *Set) Replace(queues map[block.StreamType]*Queue) {
	s.mu.Lock()
	s.queues = queues
	s.mu.Unlock()
}

// Get returns the Queue for t, or nil if none is configured.
func (s *Set) Get(t block.StreamType) *Queue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queues[t]
}

// All returns the current Queues as a slice, suitable for Exceeded/Progress.
func (s *Set) All() []*Queue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Queue, 0, len(s.queues))
	for _, q := range s.queues {
		out = append(out, q)
	}
	return out
}
