package ringbuffer

import (
	"testing"
	"time"

	"github.com/zsiec/mediaengine/block"
)

func mkBlock(start, end time.Duration) *block.Block {
	return &block.Block{Type: block.Video, StartTime: start, EndTime: end}
}

func TestAddMaintainsOrderAndGet(t *testing.T) {
	t.Parallel()
	b := New(block.Video, 4)
	b.Add(mkBlock(0, 10))
	b.Add(mkBlock(10, 20))
	b.Add(mkBlock(20, 30))

	if got, want := b.Count(), 3; got != want {
		t.Fatalf("Count: got %d, want %d", got, want)
	}

	blk, ok := b.Get(15)
	if !ok || blk.StartTime != 10 {
		t.Errorf("Get(15): got %+v, ok=%v", blk, ok)
	}

	if _, ok := b.Get(-1); ok {
		t.Error("Get before range start should return false")
	}

	blk, ok = b.Get(1000)
	if !ok || blk.StartTime != 20 {
		t.Errorf("Get past range end should return last block, got %+v ok=%v", blk, ok)
	}
}

func TestAddResetsOnOutOfOrderStart(t *testing.T) {
	t.Parallel()
	b := New(block.Video, 4)
	b.Add(mkBlock(10, 20))
	b.Add(mkBlock(20, 30))
	b.Add(mkBlock(5, 15)) // earlier than last start -> reset then insert

	if got, want := b.Count(), 1; got != want {
		t.Fatalf("Count after out-of-order add: got %d, want %d", got, want)
	}
	first, _ := b.First()
	if first.StartTime != 5 {
		t.Errorf("expected sole block to start at 5, got %v", first.StartTime)
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	t.Parallel()
	b := New(block.Video, 2)
	b.Add(mkBlock(0, 10))
	b.Add(mkBlock(10, 20))
	b.Add(mkBlock(20, 30))

	if got, want := b.Count(), 2; got != want {
		t.Fatalf("Count: got %d, want %d", got, want)
	}
	first, _ := b.First()
	if first.StartTime != 10 {
		t.Errorf("expected oldest evicted, first start = %v", first.StartTime)
	}
}

func TestEvictionWaitsForReaderRelease(t *testing.T) {
	t.Parallel()
	b := New(block.Video, 1)
	blk := mkBlock(0, 10)
	b.Add(blk)

	guard, ok := b.TryAcquireReader(blk)
	if !ok {
		t.Fatal("expected to acquire reader")
	}

	done := make(chan struct{})
	go func() {
		b.Add(mkBlock(10, 20)) // must evict blk, which is borrowed
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Add should not complete while reader holds the evicted block")
	case <-time.After(50 * time.Millisecond):
	}

	guard.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Add should complete after reader releases")
	}
}

func TestEvictBefore(t *testing.T) {
	t.Parallel()
	b := New(block.Video, 8)
	b.Add(mkBlock(0, 10))
	b.Add(mkBlock(10, 20))
	b.Add(mkBlock(20, 30))

	b.EvictBefore(15)

	if got, want := b.Count(), 2; got != want {
		t.Fatalf("Count after EvictBefore(15): got %d, want %d", got, want)
	}
	first, _ := b.First()
	if first.StartTime != 10 {
		t.Errorf("expected first block to start at 10, got %v", first.StartTime)
	}
}

func TestResetClearsAll(t *testing.T) {
	t.Parallel()
	b := New(block.Video, 4)
	b.Add(mkBlock(0, 10))
	b.Add(mkBlock(10, 20))
	b.Reset()

	if got, want := b.Count(), 0; got != want {
		t.Fatalf("Count after Reset: got %d, want %d", got, want)
	}
	if _, ok := b.First(); ok {
		t.Error("First should return false after Reset")
	}
}

func TestRangeReportsSpan(t *testing.T) {
	t.Parallel()
	b := New(block.Video, 4)
	if r := b.Range(); r != (Range{}) {
		t.Fatalf("empty buffer range: got %+v, want zero", r)
	}
	b.Add(mkBlock(0, 10))
	b.Add(mkBlock(10, 25))
	r := b.Range()
	if r.Start != 0 || r.End != 25 || r.Duration() != 25 {
		t.Errorf("Range: got %+v", r)
	}
}
