// Package packetqueue implements the per-stream Packet Queue (spec §4.E): a
// FIFO of Packets with a running byte-size and duration sum, bounded by the
// Reading Worker's budget policy.
package packetqueue

import (
	"sync"
	"time"

	"github.com/zsiec/mediaengine/block"
)

// Queue is a FIFO of Packets for one stream, tracking the running byte and
// duration totals the Reading Worker checks against its budget. Safe for
// concurrent use: the Reading Worker pushes, the Decoding Worker pops.
type Queue struct {
	mu       sync.Mutex
	packets  []*block.Packet
	bytes    int
	duration time.Duration
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Push enqueues a packet and adds its size to the byte total. It does not
// touch the duration total, since a packet's duration needs the PTS delta
// from the previous packet; the caller that knows that delta (the engine's
// packet-read hook) reports it via AddDuration.
func (q *Queue) Push(p *block.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.packets = append(q.packets, p)
	q.bytes += p.Size
}

// AddDuration records additional duration represented by the most recently
// pushed packet, used by the engine's packet-read hook, which knows the
// inter-packet PTS delta.
func (q *Queue) AddDuration(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.duration += d
}

// Pop dequeues the oldest packet, or (nil, false) if empty. The caller
// becomes the owner and must call Packet.Release when done.
func (q *Queue) Pop() (*block.Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.packets) == 0 {
		return nil, false
	}
	p := q.packets[0]
	q.packets = q.packets[1:]
	q.bytes -= p.Size
	if q.bytes < 0 {
		q.bytes = 0
	}
	// The duration total is the sum of PTS deltas between queued packets, so
	// dropping the head removes the delta up to the new head.
	if len(q.packets) > 0 {
		if d := q.packets[0].PTS - p.PTS; d > 0 {
			q.duration -= d
		}
	} else {
		q.duration = 0
	}
	if q.duration < 0 {
		q.duration = 0
	}
	return p, true
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}

// Bytes returns the running total byte size of queued packets.
func (q *Queue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// Duration returns the running total duration represented by queued
// packets, as tracked via AddDuration.
func (q *Queue) Duration() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.duration
}

// Reset drains the queue, releasing every packet still held (used on
// flush/seek).
func (q *Queue) Reset() {
	q.mu.Lock()
	pending := q.packets
	q.packets = nil
	q.bytes = 0
	q.duration = 0
	q.mu.Unlock()

	for _, p := range pending {
		if p.Release != nil {
			p.Release()
		}
	}
}

// Budget is the Reading Worker's buffering policy (§4.E): total bytes
// across queues must stay within MaxBytes, and total duration within
// MaxDuration.
type Budget struct {
	MaxBytes    int
	MaxDuration time.Duration
}

// Exceeded reports whether the combined totals across queues exceed the
// budget.
func Exceeded(queues []*Queue, budget Budget) bool {
	var bytes int
	var duration time.Duration
	for _, q := range queues {
		bytes += q.Bytes()
		duration += q.Duration()
	}
	return bytes > budget.MaxBytes || duration > budget.MaxDuration
}

// Progress computes the buffering progress (§4.E): min(byte fraction,
// duration fraction) clamped to [0, 1].
func Progress(queues []*Queue, budget Budget) float64 {
	var bytes int
	var duration time.Duration
	for _, q := range queues {
		bytes += q.Bytes()
		duration += q.Duration()
	}

	byteFrac := fraction(bytes, budget.MaxBytes)
	durFrac := fraction(int(duration), int(budget.MaxDuration))

	progress := byteFrac
	if durFrac < progress {
		progress = durFrac
	}
	return clamp01(progress)
}

func fraction(value, max int) float64 {
	if max <= 0 {
		return 1
	}
	return float64(value) / float64(max)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
