package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/mediaengine/block"
	"github.com/zsiec/mediaengine/clock"
	"github.com/zsiec/mediaengine/ringbuffer"
	"github.com/zsiec/mediaengine/renderer"
)

// RenderingWorker implements spec §4.G: at an adaptive cadence it reads the
// Media Clock, selects the block at the playhead from each active stream's
// Block Buffer, and dispatches Render/Update; it also owns the buffering
// gate and end-of-stream detection.
type RenderingWorker struct {
	Log       *slog.Logger
	Clock     *clock.Clock
	Buffers   *ringbuffer.Set
	Renderers *renderer.Set
	// MainType reports the current main stream type; resolved via a func
	// since it can change across Open/ChangeMedia while the worker runs.
	MainType func() block.StreamType
	Gate     *Gate

	// MinCadence is the cadence ceiling (period, not rate): the worker
	// never runs slower than this even if RefreshCadence reports a longer
	// period, satisfying "at least 60 Hz for audio-only" (§4.G).
	MinCadence     time.Duration
	RefreshCadence func() time.Duration

	Progress  func() float64
	LowWater  float64
	FullWater float64

	IsOpen        func() bool
	IsEndOfStream func() bool
	OnEnded       func()

	// SeekTarget reports the pending seek target and whether a seek is in
	// progress, entering/exiting buffering per §4.G condition (b).
	SeekTarget func() (time.Duration, bool)

	OnBufferingChanged func(bool)

	mu           sync.Mutex
	buffering    bool
	lastRendered map[block.StreamType]*block.Block
	ended        bool
}

// Run drives the adaptive-cadence loop until ctx is done.
func (w *RenderingWorker) Run(ctx context.Context) error {
	if w.lastRendered == nil {
		w.lastRendered = make(map[block.StreamType]*block.Block)
	}
	timer := time.NewTimer(w.cadence())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if w.Gate.enter() {
			w.cycle(ctx)
			w.Gate.leave()
		}
		timer.Reset(w.cadence())
	}
}

func (w *RenderingWorker) cadence() time.Duration {
	if w.RefreshCadence != nil {
		if d := w.RefreshCadence(); d > 0 && d < w.MinCadence {
			return d
		}
	}
	return w.MinCadence
}

func (w *RenderingWorker) cycle(ctx context.Context) {
	if w.IsOpen != nil && !w.IsOpen() {
		return
	}

	w.updateBufferingGate()
	pos := w.Clock.Position()

	if w.isBuffering() {
		w.dispatchUpdate(pos)
		return
	}

	w.Renderers.Dispatch(func(st block.StreamType, r renderer.Renderer) {
		w.renderOne(st, r, pos)
	})

	w.checkEndOfStream(pos)
}

func (w *RenderingWorker) renderOne(st block.StreamType, r renderer.Renderer, t time.Duration) {
	selected := t
	if st == block.Video {
		if ar, ok := w.audioRenderer(); ok {
			if lat := ar.Latency(); lat > 0 {
				selected = t - lat
				if selected < 0 {
					selected = 0
				}
			}
		}
	}

	buf := w.Buffers.Get(st)
	if buf == nil {
		r.Update(t)
		return
	}
	blk, ok := buf.Get(selected)
	if !ok {
		r.Update(t)
		return
	}

	w.mu.Lock()
	last := w.lastRendered[st]
	w.mu.Unlock()
	if blk == last {
		r.Update(t)
		return
	}

	guard, ok := buf.TryAcquireReader(blk)
	if !ok {
		r.Update(t)
		return
	}
	r.Render(blk, selected)
	guard.Release()

	w.mu.Lock()
	w.lastRendered[st] = blk
	w.mu.Unlock()
}

func (w *RenderingWorker) dispatchUpdate(pos time.Duration) {
	w.Renderers.Dispatch(func(_ block.StreamType, r renderer.Renderer) {
		r.Update(pos)
	})
}

func (w *RenderingWorker) audioRenderer() (renderer.AudioRenderer, bool) {
	r, ok := w.Renderers.Get(block.Audio)
	if !ok {
		return nil, false
	}
	ar, ok := r.(renderer.AudioRenderer)
	return ar, ok
}

func (w *RenderingWorker) mainBuffer() *ringbuffer.Buffer {
	return w.Buffers.Get(w.MainType())
}

func (w *RenderingWorker) updateBufferingGate() {
	main := w.mainBuffer()
	t := w.Clock.Position()
	var progress float64
	if w.Progress != nil {
		progress = w.Progress()
	}

	if target, seeking := w.seekTarget(); seeking {
		if main != nil {
			if _, ok := main.Get(target); ok {
				w.setBuffering(false)
				return
			}
		}
		w.setBuffering(true)
		return
	}

	if w.isBuffering() {
		rangeContainsT := false
		if main != nil {
			r := main.Range()
			rangeContainsT = t > r.Start && t < r.End
		}
		if progress >= w.FullWater || rangeContainsT {
			w.setBuffering(false)
		}
		return
	}

	atOrPastEnd := main != nil && t >= main.Range().End
	if progress < w.LowWater && atOrPastEnd {
		w.setBuffering(true)
	}
}

func (w *RenderingWorker) seekTarget() (time.Duration, bool) {
	if w.SeekTarget == nil {
		return 0, false
	}
	return w.SeekTarget()
}

func (w *RenderingWorker) isBuffering() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buffering
}

func (w *RenderingWorker) setBuffering(v bool) {
	w.mu.Lock()
	changed := w.buffering != v
	w.buffering = v
	w.mu.Unlock()
	if changed && w.OnBufferingChanged != nil {
		w.OnBufferingChanged(v)
	}
}

// checkEndOfStream latches once the playhead reaches the end of the main
// buffer's range with the Container reporting end-of-stream: OnEnded fires
// exactly once per end episode, since every subsequent cycle would
// otherwise re-satisfy the same condition (the clock stays paused at
// r.End) and fire again until something resets the latch (§6 "Main EOS"
// is a one-shot transition, not a steady-state condition).
func (w *RenderingWorker) checkEndOfStream(t time.Duration) {
	main := w.mainBuffer()
	if main == nil || w.IsEndOfStream == nil {
		return
	}
	r := main.Range()
	if t >= r.End && w.IsEndOfStream() {
		w.mu.Lock()
		alreadyEnded := w.ended
		w.ended = true
		w.mu.Unlock()
		if alreadyEnded {
			return
		}
		w.Clock.Pause()
		w.Clock.SetPosition(r.End)
		if w.OnEnded != nil {
			w.OnEnded()
		}
	}
}

// ResetLastRendered clears the last-rendered-block memo, used after a seek
// or media change so the first post-seek block is rendered rather than
// compared against a block from before the discontinuity.
func (w *RenderingWorker) ResetLastRendered() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRendered = make(map[block.StreamType]*block.Block)
}

// ResetEndOfStream clears the end-of-stream latch, used on Open, Play and
// Seek so a fresh playback episode can reach and report end-of-stream
// again (§6, §8 scenario 1's single MediaEnded per episode).
func (w *RenderingWorker) ResetEndOfStream() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ended = false
}
