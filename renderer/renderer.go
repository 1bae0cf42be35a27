// Package renderer defines the Renderer Set capability (spec §4.D, §6.2):
// one Renderer per active stream type, obtained from a platform Factory and
// driven by the Rendering Worker.
package renderer

import (
	"sync"
	"time"

	"github.com/zsiec/mediaengine/block"
)

// Renderer is a platform sink for one stream type (audio device, raster
// surface, subtitle overlay). Render and Update are called by the
// Rendering Worker; they must be bounded (spec §5 — the Rendering Worker
// never blocks on I/O except briefly on these callbacks) and Render must
// not retain blk beyond return.
type Renderer interface {
	OnStarting() error
	OnPlay()
	OnPause()
	OnStop()
	OnClose()
	OnSeek()

	// Render presents blk at the given clock position. May be called
	// repeatedly for the same block if the playhead hasn't advanced past
	// it; the sink must be idempotent (§5).
	Render(blk *block.Block, position time.Duration)

	// Update is called between renders for sinks that need continuous time
	// updates (subtitle timing, audio latency probes).
	Update(position time.Duration)
}

// AudioRenderer extends Renderer with the audio-device-specific controls
// named in §4.D: fixed PCM16/48kHz/stereo format, volume/balance/mute, and
// a measured output latency the Rendering Worker uses to align video.
type AudioRenderer interface {
	Renderer
	SetVolume(v float64)
	SetBalance(b float64)
	SetMuted(muted bool)
	Latency() time.Duration
}

// Factory obtains a Renderer for a given stream type, per §6.2 ("obtained
// from a platform factory keyed by stream type").
type Factory interface {
	NewRenderer(t block.StreamType) (Renderer, error)
}

// FactoryFunc adapts a plain function to a Factory.
type FactoryFunc func(t block.StreamType) (Renderer, error)

// NewRenderer implements Factory.
func (f FactoryFunc) NewRenderer(t block.StreamType) (Renderer, error) { return f(t) }

// Set fans a Block out to the single active Renderer for its stream type.
// Modeled on the teacher's distribution.Relay: a mutex-guarded map plus
// broadcast methods, generalized from "N viewers, 1 type" to "1 renderer
// per type, N types".
type Set struct {
	mu        sync.RWMutex
	renderers map[block.StreamType]Renderer
	failed    map[block.StreamType]bool
}

// NewSet creates an empty Renderer Set.
func NewSet() *Set {
	return &Set{
		renderers: make(map[block.StreamType]Renderer),
		failed:    make(map[block.StreamType]bool),
	}
}

// Add registers the renderer for stream type t, calling OnStarting. If
// OnStarting fails, the renderer is marked failed and not registered
// (§7 RendererFailure: disable renderer, continue other streams).
func (s *Set) Add(t block.StreamType, r Renderer) error {
	if err := r.OnStarting(); err != nil {
		s.mu.Lock()
		s.failed[t] = true
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderers[t] = r
	return nil
}

// Get returns the active renderer for t, if any and not failed.
func (s *Set) Get(t block.StreamType) (Renderer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failed[t] {
		return nil, false
	}
	r, ok := s.renderers[t]
	return r, ok
}

// Active returns the stream types with a live (non-failed) renderer.
func (s *Set) Active() []block.StreamType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]block.StreamType, 0, len(s.renderers))
	for t := range s.renderers {
		if !s.failed[t] {
			out = append(out, t)
		}
	}
	return out
}

// Fail marks the renderer for t as failed, removing it from Active() and
// Get(). Used when a Render/Update callback errors or panics recovery
// determines the sink is unusable.
func (s *Set) Fail(t block.StreamType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[t] = true
}

// AllFailed reports whether every registered renderer has failed — the
// condition that escalates RendererFailure to Fatal (§7).
func (s *Set) AllFailed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.renderers) == 0 {
		return false
	}
	for t := range s.renderers {
		if !s.failed[t] {
			return false
		}
	}
	return true
}

// Dispatch calls fn(renderer) for each active renderer.
func (s *Set) Dispatch(fn func(block.StreamType, Renderer)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for t, r := range s.renderers {
		if !s.failed[t] {
			fn(t, r)
		}
	}
}

// OnPlay calls OnPlay on every active renderer (§4.D on_play).
func (s *Set) OnPlay() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for t, r := range s.renderers {
		if !s.failed[t] {
			r.OnPlay()
		}
	}
}

// OnPause calls OnPause on every active renderer (§4.D on_pause).
func (s *Set) OnPause() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for t, r := range s.renderers {
		if !s.failed[t] {
			r.OnPause()
		}
	}
}

// OnStop calls OnStop on every active renderer (§4.D on_stop).
func (s *Set) OnStop() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for t, r := range s.renderers {
		if !s.failed[t] {
			r.OnStop()
		}
	}
}

// OnSeek calls OnSeek on every active renderer (§4.D on_seek).
func (s *Set) OnSeek() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for t, r := range s.renderers {
		if !s.failed[t] {
			r.OnSeek()
		}
	}
}

// Close calls OnClose on every renderer and clears the set.
func (s *Set) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.renderers {
		r.OnClose()
	}
	s.renderers = make(map[block.StreamType]Renderer)
	s.failed = make(map[block.StreamType]bool)
}
