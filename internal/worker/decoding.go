package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/mediaengine/block"
	"github.com/zsiec/mediaengine/caption"
	"github.com/zsiec/mediaengine/container"
	"github.com/zsiec/mediaengine/engineconfig"
	"github.com/zsiec/mediaengine/packetqueue"
	"github.com/zsiec/mediaengine/ringbuffer"
)

// seiCarrier is an optional capability a Container's Frame.Native handle
// may implement; not every codec emits closed-caption SEI payloads.
type seiCarrier interface {
	SEIPayload() []byte
}

// DecodingWorker implements spec §4.F: at a fixed cadence it pulls decoded
// frames from the Container, converts each into a Block, inserts it into
// the right stream's Block Buffer, and evicts stale blocks outside the
// look-behind window.
type DecodingWorker struct {
	Log         *slog.Logger
	Container   container.Container
	ContainerMu *sync.Mutex
	Buffers     *ringbuffer.Set
	// Queues mirrors the Reading Worker's packet budget accounting: one
	// packet is popped and released per decoded frame, so Packet Queue
	// byte/duration totals track what the Container has actually consumed
	// rather than only ever growing.
	Queues   *packetqueue.Set
	Captions *caption.Extractor
	Cadence  time.Duration
	Gate     *Gate

	// MainType reports the current main stream type; resolved via a func
	// since it can change across Open/ChangeMedia while the worker runs.
	MainType          func() block.StreamType
	RetentionWindows  engineconfig.RetentionWindows
	MainBlockDuration func() time.Duration

	IsOpen   func() bool
	Position func() time.Duration
}

// Run drives the cadenced loop until ctx is done.
func (w *DecodingWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !w.Gate.enter() {
			continue
		}
		w.cycle(ctx)
		w.Gate.leave()
	}
}

func (w *DecodingWorker) mainBuffer() *ringbuffer.Buffer {
	return w.Buffers.Get(w.MainType())
}

func (w *DecodingWorker) cycle(ctx context.Context) {
	if w.IsOpen != nil && !w.IsOpen() {
		return
	}

	main := w.mainBuffer()
	pos := w.Position()
	if main != nil && main.IsFull() {
		r := main.Range()
		if pos >= r.Start && pos < r.End {
			return // backpressure, §4.F step 2
		}
	}

	w.ContainerMu.Lock()
	frames, err := w.Container.Decode(ctx)
	w.ContainerMu.Unlock()
	if err != nil {
		w.Log.Warn("container decode failed", "error", err)
		return
	}
	for _, fr := range frames {
		w.insertFrame(ctx, fr)
	}
	w.evictStale(pos)
}

// insertFrame converts fr into a freshly allocated Block and inserts it
// into the matching stream's Block Buffer. A production implementation
// would reuse a pooled Block per §4.F to avoid allocation; this keeps the
// ring buffer's ownership contract (a Block belongs to exactly one ring
// once inserted) simple to reason about.
func (w *DecodingWorker) insertFrame(ctx context.Context, fr *block.Frame) {
	buf := w.Buffers.Get(fr.Stream)
	if buf == nil {
		if fr.Release != nil {
			fr.Release()
		}
		return
	}

	blk := &block.Block{}
	w.ContainerMu.Lock()
	err := w.Container.Convert(ctx, fr, blk)
	w.ContainerMu.Unlock()

	if w.Queues != nil {
		if q := w.Queues.Get(fr.Stream); q != nil {
			if pkt, ok := q.Pop(); ok && pkt.Release != nil {
				pkt.Release()
			}
		}
	}

	if sc, ok := fr.Native.(seiCarrier); ok && blk.Video != nil {
		if sei := sc.SEIPayload(); len(sei) > 0 {
			w.Captions.AttachFromSEI(sei, blk.StartTime, blk)
		}
	}
	if fr.Release != nil {
		fr.Release()
	}
	if err != nil {
		w.Log.Warn("convert failed, dropping frame", "stream", fr.Stream.String(), "error", err)
		return
	}

	buf.Add(blk)
}

func (w *DecodingWorker) evictStale(pos time.Duration) {
	main := w.mainBuffer()
	if main == nil {
		return
	}
	r := main.Range()
	if r.End == 0 {
		return
	}
	if r.End < pos+w.RetentionWindows.LookAhead {
		return
	}
	lookBehind := w.RetentionWindows.EffectiveLookBehind(w.MainBlockDuration())
	cutoff := pos - lookBehind
	for _, buf := range w.Buffers.All() {
		buf.EvictBefore(cutoff)
	}
}

// DecodeUntil implements the seek-decoding protocol (§4.F "seek decoding"):
// it decodes without the usual backpressure/look-ahead gating until the
// main Block Buffer holds a block containing target, or the container
// reaches end-of-stream. The caller (the engine's Seek handler) is
// expected to have already reset the Block Buffers and Packet Queues so
// only post-seek blocks accumulate.
func (w *DecodingWorker) DecodeUntil(ctx context.Context, target time.Duration) error {
	main := w.mainBuffer()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		w.ContainerMu.Lock()
		frames, err := w.Container.Decode(ctx)
		eos := w.Container.IsAtEndOfStream()
		w.ContainerMu.Unlock()
		if err != nil {
			return err
		}
		for _, fr := range frames {
			w.insertFrame(ctx, fr)
		}
		if main != nil {
			if blk, ok := main.Get(target); ok && blk.Contains(target) {
				return nil
			}
		}
		if len(frames) == 0 && eos {
			return nil
		}
	}
}
