package worker

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/mediaengine/block"
	"github.com/zsiec/mediaengine/clock"
	"github.com/zsiec/mediaengine/container"
	"github.com/zsiec/mediaengine/container/containertest"
	"github.com/zsiec/mediaengine/engineconfig"
	"github.com/zsiec/mediaengine/packetqueue"
	"github.com/zsiec/mediaengine/renderer"
	"github.com/zsiec/mediaengine/renderer/renderertest"
	"github.com/zsiec/mediaengine/ringbuffer"
)

func TestGateQuiescedAfterStop(t *testing.T) {
	g := NewGate()
	if g.Quiesced() {
		t.Fatal("a fresh, active Gate should not report Quiesced")
	}

	if !g.enter() {
		t.Fatal("enter should succeed while active")
	}
	g.Stop()
	if g.Quiesced() {
		t.Fatal("Quiesced should be false while a cycle is still running")
	}
	g.leave()
	if !g.Quiesced() {
		t.Fatal("Quiesced should be true once stopped and no cycle is running")
	}

	if g.enter() {
		t.Fatal("enter should fail once stopped")
	}

	g.Start()
	if !g.enter() {
		t.Fatal("enter should succeed again after Start")
	}
	g.leave()
}

func TestReadingWorkerStopsAtBudget(t *testing.T) {
	fake := containertest.New()
	fake.BlockCount = 100
	queues := packetqueue.NewSet()
	q := packetqueue.New()
	queues.Replace(map[block.StreamType]*packetqueue.Queue{block.Video: q})

	var mu sync.Mutex
	w := &ReadingWorker{
		Log:         slog.Default(),
		Container:   fake,
		ContainerMu: &mu,
		Queues:      queues,
		Budget:      engineconfig.PacketBudget{MaxBytes: 4096 * 2},
		Gate:        NewGate(),
		MainFrameDuration: func() time.Duration { return time.Second },
		MainCapacity:      func() int { return 10 },
		IsOpen:            func() bool { return true },
	}
	fake.SetEvents(containerEventsForQueue(q))

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		w.cycle(ctx)
	}

	// Budget trips once bytes strictly exceed MaxBytes, so one packet beyond
	// the threshold is expected before cycle() stops reading further.
	if q.Bytes() > 4096*3 {
		t.Fatalf("queue bytes = %d, budget should have stopped reads shortly after it was exceeded", q.Bytes())
	}
	if q.Len() == 0 {
		t.Fatal("expected at least one packet read before the budget tripped")
	}
	if q.Len() >= 100 {
		t.Fatal("budget should have stopped reads well before exhausting the container")
	}
}

func TestDecodingWorkerInsertsAndPopsPackets(t *testing.T) {
	fake := containertest.New()
	fake.BlockCount = 20
	fake.BlockDuration = 10 * time.Millisecond

	buffers := ringbuffer.NewSet()
	buf := ringbuffer.New(block.Video, 4)
	buffers.Replace(map[block.StreamType]*ringbuffer.Buffer{block.Video: buf})

	queues := packetqueue.NewSet()
	q := packetqueue.New()
	queues.Replace(map[block.StreamType]*packetqueue.Queue{block.Video: q})
	for i := 0; i < 20; i++ {
		q.Push(&block.Packet{Stream: block.Video, Size: 100})
	}

	var mu sync.Mutex
	pos := time.Duration(0)
	w := &DecodingWorker{
		Log:         slog.Default(),
		Container:   fake,
		ContainerMu: &mu,
		Buffers:     buffers,
		Queues:      queues,
		Cadence:     time.Millisecond,
		Gate:        NewGate(),
		MainType:    func() block.StreamType { return block.Video },
		MainBlockDuration: func() time.Duration { return 10 * time.Millisecond },
		IsOpen:            func() bool { return true },
		Position:          func() time.Duration { return pos },
	}

	ctx := context.Background()
	if err := fakeRead(fake, 5); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	w.cycle(ctx)

	if buf.Count() == 0 {
		t.Fatal("expected at least one Block inserted into the video buffer")
	}
	if want := 20 - buf.Count(); q.Len() != want {
		t.Fatalf("queue len = %d, want %d (one packet popped per inserted frame)", q.Len(), want)
	}
}

func TestRenderingWorkerBuffersAndRenders(t *testing.T) {
	buffers := ringbuffer.NewSet()
	buf := ringbuffer.New(block.Video, 8)
	buffers.Replace(map[block.StreamType]*ringbuffer.Buffer{block.Video: buf})

	blk := &block.Block{
		Type:      block.Video,
		StartTime: 0,
		EndTime:   10 * time.Millisecond,
		Video:     &block.VideoPayload{},
	}
	buf.Add(blk)

	renderers := renderer.NewSet()
	fakeRenderer := &renderertest.Fake{}
	if err := renderers.Add(block.Video, fakeRenderer); err != nil {
		t.Fatalf("Add renderer: %v", err)
	}

	c := clock.New()
	c.Play()

	w := &RenderingWorker{
		Log:            slog.Default(),
		Clock:          c,
		Buffers:        buffers,
		Renderers:      renderers,
		MainType:       func() block.StreamType { return block.Video },
		MinCadence:     time.Millisecond,
		Progress:       func() float64 { return 1.0 },
		LowWater:       0.1,
		FullWater:      0.9,
		IsOpen:         func() bool { return true },
		IsEndOfStream:  func() bool { return false },
	}
	w.lastRendered = make(map[block.StreamType]*block.Block)

	w.cycle(context.Background())

	if fakeRenderer.RenderCount() == 0 {
		t.Fatal("expected the block at the playhead to be rendered")
	}
	if got := fakeRenderer.LastRendered(); got != blk {
		t.Fatalf("rendered block = %v, want %v", got, blk)
	}
}

func containerEventsForQueue(q *packetqueue.Queue) container.Events {
	return container.Events{
		OnPacketRead: func(p *block.Packet) { q.Push(p) },
	}
}

func fakeRead(f *containertest.Fake, n int) error {
	for i := 0; i < n; i++ {
		if _, err := f.Read(context.Background()); err != nil {
			return err
		}
	}
	return nil
}
