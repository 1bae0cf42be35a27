// Package renderertest provides a fake renderer.Renderer recording every
// call, used by engine/worker tests in place of real platform sinks.
package renderertest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/mediaengine/block"
)

// Fake records Render/Update calls and lets tests fail OnStarting on
// demand.
type Fake struct {
	StartErr error

	mu           sync.Mutex
	rendered     []*block.Block
	updates      []time.Duration
	renderCount  atomic.Int64
	updateCount  atomic.Int64
	playCalled   atomic.Bool
	pauseCalled  atomic.Bool
	stopCalled   atomic.Bool
	closeCalled  atomic.Bool
	seekCalled   atomic.Bool
}

func (f *Fake) OnStarting() error { return f.StartErr }
func (f *Fake) OnPlay()           { f.playCalled.Store(true) }
func (f *Fake) OnPause()          { f.pauseCalled.Store(true) }
func (f *Fake) OnStop()           { f.stopCalled.Store(true) }
func (f *Fake) OnClose()          { f.closeCalled.Store(true) }
func (f *Fake) OnSeek()           { f.seekCalled.Store(true) }

// PlayCalled reports whether OnPlay has been called at least once.
func (f *Fake) PlayCalled() bool { return f.playCalled.Load() }

// PauseCalled reports whether OnPause has been called at least once.
func (f *Fake) PauseCalled() bool { return f.pauseCalled.Load() }

// StopCalled reports whether OnStop has been called at least once.
func (f *Fake) StopCalled() bool { return f.stopCalled.Load() }

// CloseCalled reports whether OnClose has been called at least once.
func (f *Fake) CloseCalled() bool { return f.closeCalled.Load() }

// SeekCalled reports whether OnSeek has been called at least once.
func (f *Fake) SeekCalled() bool { return f.seekCalled.Load() }

func (f *Fake) Render(blk *block.Block, position time.Duration) {
	f.renderCount.Add(1)
	f.mu.Lock()
	f.rendered = append(f.rendered, blk)
	f.mu.Unlock()
}

func (f *Fake) Update(position time.Duration) {
	f.updateCount.Add(1)
	f.mu.Lock()
	f.updates = append(f.updates, position)
	f.mu.Unlock()
}

// RenderCount returns the number of Render calls observed.
func (f *Fake) RenderCount() int64 { return f.renderCount.Load() }

// UpdateCount returns the number of Update calls observed.
func (f *Fake) UpdateCount() int64 { return f.updateCount.Load() }

// LastRendered returns the most recently rendered block, or nil.
func (f *Fake) LastRendered() *block.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rendered) == 0 {
		return nil
	}
	return f.rendered[len(f.rendered)-1]
}

// Rendered returns a copy of every block rendered so far, in order.
func (f *Fake) Rendered() []*block.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*block.Block, len(f.rendered))
	copy(out, f.rendered)
	return out
}
