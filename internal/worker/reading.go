package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/mediaengine/container"
	"github.com/zsiec/mediaengine/engineconfig"
	"github.com/zsiec/mediaengine/packetqueue"
)

// ReadingWorker implements spec §4.E: at a fixed cadence, it checks the
// packet queue budget and calls Container.Read while under budget. The
// Container itself dispatches the read packet into the right stream's
// packetqueue.Queue via the OnPacketRead event the engine wires up; this
// worker only decides whether and when to call Read.
type ReadingWorker struct {
	Log         *slog.Logger
	Container   container.Container
	ContainerMu *sync.Mutex
	Queues      *packetqueue.Set
	Budget      engineconfig.PacketBudget
	Cadence     time.Duration
	Gate        *Gate

	// MainFrameDuration/MainCapacity resolve the duration-budget formula
	// (§4.E) and are read fresh each cycle since they change across Open/
	// ChangeMedia. OnProgress reports buffering progress each cycle so the
	// engine can update Engine State's low/full-water transitions.
	MainFrameDuration func() time.Duration
	MainCapacity      func() int
	OnProgress        func(progress float64)

	// IsOpen reports whether a media is currently open; the worker idles
	// otherwise (§4.E step 1). PauseRequested additionally idles reading
	// while a Pause command is actively draining (the same step).
	IsOpen         func() bool
	PauseRequested func() bool
}

// Run drives the cadenced loop until ctx is done.
func (w *ReadingWorker) Run(ctx context.Context) error {
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

func (w *ReadingWorker) cycle(ctx context.Context) {
	if w.IsOpen != nil && !w.IsOpen() {
		return
	}
	if w.PauseRequested != nil && w.PauseRequested() {
		return
	}

	queues := w.Queues.All()
	budget := w.effectiveBudget()

	if w.OnProgress != nil {
		w.OnProgress(packetqueue.Progress(queues, budget))
	}
	if packetqueue.Exceeded(queues, budget) {
		return
	}

	w.ContainerMu.Lock()
	readiness, err := w.Container.Read(ctx)
	w.ContainerMu.Unlock()
	if err != nil {
		w.Log.Warn("container read failed", "error", err)
		return
	}
	if readiness.EndOfStream {
		// Reading stops until a seek or state change repositions the
		// container (§4.E step 3); the next cycle's IsOpen/PauseRequested
		// checks naturally re-gate once that happens, since EndOfStream
		// keeps returning true until Seek resets the read cursor.
		return
	}
}

func (w *ReadingWorker) effectiveBudget() packetqueue.Budget {
	return packetqueue.Budget{
		MaxBytes:    w.Budget.MaxBytes,
		MaxDuration: w.Budget.EffectiveMaxDuration(w.MainFrameDuration(), w.MainCapacity()),
	}
}
