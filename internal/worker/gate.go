// Package worker implements the Media Engine's Reading, Decoding and
// Rendering workers (spec §4.E/F/G): cooperative, ticker-cadenced loops
// that pull packets from the Container, decode/convert them into Blocks,
// and drive the Renderer Set from the Media Clock.
package worker

import "sync"

// Gate lets the Command Queue idle a worker around a Blocking command
// (§4.H "stop all workers to idle, execute exclusively, restart workers").
// A gated-off worker finishes any cycle already in progress, then skips
// cycles until Start; StopWorkers can therefore wait on Quiesced to know
// the worker has actually gone idle rather than merely been asked to.
// The Container's single-threaded-access invariant is additionally
// enforced by engine.Engine's container mutex.
type Gate struct {
	mu      sync.Mutex
	active  bool
	running int
}

// NewGate creates a Gate that starts active.
func NewGate() *Gate {
	return &Gate{active: true}
}

// Stop idles the gate; subsequent cycles will not enter until Start.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
}

// Start resumes the gate.
func (g *Gate) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = true
}

// IsActive reports whether the gate currently permits work.
func (g *Gate) IsActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// enter admits one worker cycle if the gate is active, tracking it as
// running so Quiesced can tell when every entered cycle has left.
func (g *Gate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return false
	}
	g.running++
	return true
}

func (g *Gate) leave() {
	g.mu.Lock()
	g.running--
	g.mu.Unlock()
}

// Quiesced reports whether the gate is stopped and no cycle is in flight.
func (g *Gate) Quiesced() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.active && g.running == 0
}
