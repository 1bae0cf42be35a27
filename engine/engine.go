// Package engine wires the Block Buffers, Media Clock, Container Proxy,
// Renderer Set, Command Queue and Engine State together into the Media
// Engine (spec §2): the top-level type an embedding platform constructs
// and drives.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/mediaengine/block"
	"github.com/zsiec/mediaengine/caption"
	"github.com/zsiec/mediaengine/clock"
	"github.com/zsiec/mediaengine/command"
	"github.com/zsiec/mediaengine/container"
	"github.com/zsiec/mediaengine/container/mediaerr"
	"github.com/zsiec/mediaengine/engineconfig"
	"github.com/zsiec/mediaengine/internal/worker"
	"github.com/zsiec/mediaengine/packetqueue"
	"github.com/zsiec/mediaengine/renderer"
	"github.com/zsiec/mediaengine/ringbuffer"
	"github.com/zsiec/mediaengine/state"
)

// ContainerFactory produces a fresh Container instance for an Open or
// ChangeMedia command. The engine calls it once per (re)open rather than
// reusing a Container across Close, since Container.Close forbids reuse.
type ContainerFactory func() (container.Container, error)

// OpenRequest is the payload an Open or ChangeMedia command.OpenArgs
// carries.
type OpenRequest struct {
	Source container.Source
	Config container.Config
	// Loop, when true, re-seeks to the start and resumes Play instead of
	// transitioning to Pause on end-of-stream (§6 state machine looping).
	Loop bool
}

// Engine is the clock-driven, multi-worker media playback pipeline (spec
// §2). Construct with New, then run it with Run; transport operations are
// submitted through the Command Queue methods (Open, Play, Pause, ...).
type Engine struct {
	log              *slog.Logger
	cfg              engineconfig.Config
	containerFactory ContainerFactory
	rendererFactory  renderer.Factory

	clock       *clock.Clock
	cmdQueue    *command.Queue
	stateStore  *state.Store
	connectors  *state.Registry
	captions    *caption.Extractor
	rendererSet *renderer.Set

	containerMu sync.Mutex
	cont        container.Container

	buffers *ringbuffer.Set
	queues  *packetqueue.Set

	readingGate   *worker.Gate
	decodingGate  *worker.Gate
	renderingGate *worker.Gate

	readingWorker   *worker.ReadingWorker
	decodingWorker  *worker.DecodingWorker
	renderingWorker *worker.RenderingWorker

	transportMu sync.RWMutex
	isOpen      bool
	mediaState  state.MediaState
	mediaInfo   block.MediaInfo
	mainStream  block.StreamDescriptor
	looping     bool
	changing    bool
	seeking     bool
	seekTarget  time.Duration
	volume      float64
	balance     float64
	muted       bool

	lastProgressValue float64
	lastPacketPTS     map[block.StreamType]time.Duration
}

// New builds an Engine around the given policy Config, a factory that
// produces a fresh Container per Open/ChangeMedia, and a platform Renderer
// Factory. connectors and log may be nil; a nil connectors registry gets a
// fresh empty Registry, and a nil log falls back to slog.Default().
func New(cfg engineconfig.Config, containerFactory ContainerFactory, rendererFactory renderer.Factory, connectors *state.Registry, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if connectors == nil {
		connectors = state.NewRegistry()
	}

	e := &Engine{
		log:              log.With("component", "engine"),
		cfg:              cfg,
		containerFactory: containerFactory,
		rendererFactory:  rendererFactory,
		clock:            clock.New(),
		stateStore:       state.NewStore(),
		connectors:       connectors,
		captions:         caption.NewExtractor(),
		rendererSet:      renderer.NewSet(),
		buffers:          ringbuffer.NewSet(),
		queues:           packetqueue.NewSet(),
		readingGate:      worker.NewGate(),
		decodingGate:     worker.NewGate(),
		renderingGate:    worker.NewGate(),
		volume:           1.0,
		lastPacketPTS:    make(map[block.StreamType]time.Duration),
	}

	e.cmdQueue = command.New(e.handleCommand, e, log)

	e.readingWorker = &worker.ReadingWorker{
		Log:               e.log,
		ContainerMu:       &e.containerMu,
		Queues:            e.queues,
		Budget:            cfg.PacketBudget,
		Cadence:           cfg.WorkerCadences.Reading,
		Gate:              e.readingGate,
		MainFrameDuration: e.mainFrameDuration,
		MainCapacity:      e.mainCapacity,
		OnProgress:        e.onReadingProgress,
		IsOpen:            e.IsOpen,
		PauseRequested:    func() bool { return false },
	}
	e.decodingWorker = &worker.DecodingWorker{
		Log:               e.log,
		ContainerMu:       &e.containerMu,
		Buffers:           e.buffers,
		Queues:            e.queues,
		Captions:          e.captions,
		Cadence:           cfg.WorkerCadences.Decoding,
		Gate:              e.decodingGate,
		MainType:          e.mainStreamType,
		RetentionWindows:  cfg.RetentionWindows,
		MainBlockDuration: e.mainFrameDuration,
		IsOpen:            e.IsOpen,
		Position:          e.clock.Position,
	}
	e.renderingWorker = &worker.RenderingWorker{
		Log:                e.log,
		Clock:              e.clock,
		Buffers:            e.buffers,
		Renderers:          e.rendererSet,
		MainType:           e.mainStreamType,
		Gate:               e.renderingGate,
		MinCadence:         cfg.WorkerCadences.RenderingMinimum,
		Progress:           e.lastProgress,
		LowWater:           cfg.PacketBudget.LowWaterFraction,
		FullWater:          cfg.PacketBudget.FullWaterFraction,
		IsOpen:             e.IsOpen,
		IsEndOfStream:      e.isContainerAtEnd,
		OnEnded:            e.onPlaybackEnded,
		SeekTarget:         e.currentSeekTarget,
		OnBufferingChanged: e.onBufferingChanged,
	}

	return e
}

// IsOpen reports whether a media is currently open.
func (e *Engine) IsOpen() bool {
	e.transportMu.RLock()
	defer e.transportMu.RUnlock()
	return e.isOpen
}

func (e *Engine) mainStreamType() block.StreamType {
	e.transportMu.RLock()
	defer e.transportMu.RUnlock()
	return e.mainStream.Type
}

func (e *Engine) mainFrameDuration() time.Duration {
	e.transportMu.RLock()
	defer e.transportMu.RUnlock()
	if e.mainStream.FrameRate <= 0 {
		return 40 * time.Millisecond
	}
	return time.Duration(float64(time.Second) / e.mainStream.FrameRate)
}

func (e *Engine) mainCapacity() int {
	e.transportMu.RLock()
	t := e.mainStream.Type
	e.transportMu.RUnlock()
	return e.cfg.BufferCapacities.ForType(t)
}

func (e *Engine) onReadingProgress(p float64) {
	e.transportMu.Lock()
	e.lastProgressValue = p
	e.transportMu.Unlock()
}

func (e *Engine) lastProgress() float64 {
	e.transportMu.RLock()
	defer e.transportMu.RUnlock()
	return e.lastProgressValue
}

func (e *Engine) isContainerAtEnd() bool {
	e.containerMu.Lock()
	defer e.containerMu.Unlock()
	if e.cont == nil {
		return false
	}
	return e.cont.IsAtEndOfStream()
}

func (e *Engine) currentSeekTarget() (time.Duration, bool) {
	e.transportMu.RLock()
	defer e.transportMu.RUnlock()
	return e.seekTarget, e.seeking
}

func (e *Engine) onBufferingChanged(buffering bool) {
	e.publishStateNow(func(s *state.Snapshot) { s.IsBuffering = buffering })
}

func (e *Engine) onPlaybackEnded() {
	e.connectors.EmitMediaEnded()
	e.transportMu.RLock()
	loop := e.looping
	e.transportMu.RUnlock()
	if !loop {
		// Default end-of-stream behavior transitions to Pause, not Stop
		// (§6 state machine "Main EOS --HasMediaEnded--> Pause (default)");
		// position stays frozen at NaturalDuration, already set by the
		// Rendering Worker's checkEndOfStream.
		e.setMediaState(state.Pause)
		return
	}
	// Looping: reseek to the start and resume Play (§6 state machine).
	h := e.Seek(context.Background(), 0)
	go func() {
		if err := h.Wait(context.Background()); err != nil {
			e.log.Warn("loop seek failed", "error", err)
			return
		}
		e.Play(context.Background())
	}()
}

// StopWorkers implements command.Stepper: it idles all three workers and
// waits for any in-flight cycle to finish before a Blocking command runs
// exclusively (§4.H).
func (e *Engine) StopWorkers(ctx context.Context) error {
	e.readingGate.Stop()
	e.decodingGate.Stop()
	e.renderingGate.Stop()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if e.readingGate.Quiesced() && e.decodingGate.Quiesced() && e.renderingGate.Quiesced() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// StartWorkers implements command.Stepper: it resumes all three workers
// after a Blocking command completes.
func (e *Engine) StartWorkers() {
	e.readingGate.Start()
	e.decodingGate.Start()
	e.renderingGate.Start()
}

// Run starts the Command Queue and all three workers, plus the Engine
// State publish loop, and blocks until ctx is cancelled or a worker
// reports a non-shutdown error.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.cmdQueue.Run(gctx) })
	g.Go(func() error { return e.readingWorker.Run(gctx) })
	g.Go(func() error { return e.decodingWorker.Run(gctx) })
	g.Go(func() error { return e.renderingWorker.Run(gctx) })
	g.Go(func() error { return e.runStatePublisher(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (e *Engine) runStatePublisher(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.WorkerCadences.StateUpdate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		e.publishStateNow(nil)
	}
}

// publishStateNow rebuilds the Snapshot, optionally applies a mutation
// (used by callbacks that fire mid-cycle, like OnBufferingChanged), stores
// it, diffs it against the last published Snapshot, and fans out any
// changes to registered MediaConnectors.
func (e *Engine) publishStateNow(mutate func(*state.Snapshot)) {
	snap := e.buildSnapshot()
	if mutate != nil {
		mutate(&snap)
	}
	e.stateStore.Update(snap)
	changes := e.stateStore.Diff()
	if changes.Any() {
		e.connectors.Dispatch(changes)
	}
}

func (e *Engine) buildSnapshot() state.Snapshot {
	e.transportMu.RLock()
	defer e.transportMu.RUnlock()

	var bufBytes, bufCount int
	for _, q := range e.queues.All() {
		bufBytes += q.Bytes()
		bufCount += q.Len()
	}

	mainBuf := e.buffers.Get(e.mainStream.Type)
	var bufferingProgress float64 = e.lastProgressValue

	s := state.Snapshot{
		MediaState:        e.mediaState,
		Position:          e.clock.Position(),
		NaturalDuration:   e.mediaInfo.Duration,
		BufferingProgress: bufferingProgress,
		DownloadProgress:  bufferingProgress,
		PacketBufferBytes: bufBytes,
		PacketBufferCount: bufCount,
		IsSeeking:         e.seeking,
		IsOpening:         e.mediaState == state.Open,
		IsChanging:        e.changing,
		HasAudio:          e.hasStreamLocked(block.Audio),
		HasVideo:          e.hasStreamLocked(block.Video),
		HasSubtitles:      e.hasStreamLocked(block.Subtitle),
		HasClosedCaptions: hasClosedCaptions(mainBuf),
		Volume:            e.volume,
		Balance:           e.balance,
		IsMuted:           e.muted,
		SpeedRatio:        e.clock.SpeedRatio(),
	}
	if mainBuf != nil {
		r := mainBuf.Range()
		s.PlaybackStart = r.Start
		s.PlaybackEnd = r.End
		if blk, ok := mainBuf.Get(s.Position); ok && blk.HasDisplayPictureNum {
			s.FramePosition = blk.DisplayPictureNumber
		}
	}
	if sd, ok := e.mediaInfo.MainStream(); ok {
		s.DecodingBitrate = sd.BitrateBps
	}
	return s
}

// hasClosedCaptions reports whether the most recently inserted block in the
// main buffer (when it's the video stream) carries any closed-caption
// frames, per the Caption Extractor's SEI attachment (§4.F, caption.Extractor).
func hasClosedCaptions(mainBuf *ringbuffer.Buffer) bool {
	if mainBuf == nil {
		return false
	}
	blk, ok := mainBuf.Last()
	return ok && blk.Video != nil && len(blk.Video.ClosedCaptions) > 0
}

func (e *Engine) hasStreamLocked(t block.StreamType) bool {
	for _, sd := range e.mediaInfo.Streams {
		if sd.Type == t {
			return true
		}
	}
	return false
}

func (e *Engine) setMediaState(s state.MediaState) {
	e.transportMu.Lock()
	e.mediaState = s
	e.transportMu.Unlock()
	e.publishStateNow(nil)
}

// Snapshot returns the most recently published Engine State.
func (e *Engine) Snapshot() state.Snapshot {
	return e.stateStore.Current()
}

// Connectors returns the MediaConnector registry, so callers can Add/Remove
// observers.
func (e *Engine) Connectors() *state.Registry {
	return e.connectors
}
