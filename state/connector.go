package state

import (
	"log/slog"
	"sync"
	"time"
)

// MediaError classifies a failure delivered via OnMediaFailed (§7).
type MediaError struct {
	Kind    string
	Message string
}

func (e MediaError) Error() string { return e.Kind + ": " + e.Message }

// OpenOptions is the subset of container.Config + source reference a
// connector needs to know about when a media starts opening; kept as an
// opaque payload so package state stays independent of package container.
type OpenOptions struct {
	Source any
	Config any
}

// MediaConnector is the set of callbacks an embedding platform implements
// to receive engine events (§6.3). Every method has a no-op default via
// NopConnector so implementations only override what they care about.
type MediaConnector interface {
	OnMessageLogged(level slog.Level, msg string)
	OnMediaInitializing(opts OpenOptions)
	OnMediaOpening(opts OpenOptions, info any)
	OnMediaChanging()
	OnMediaChanged()
	OnMediaOpened()
	OnMediaClosed()
	OnMediaFailed(err MediaError)
	OnMediaEnded()
	OnBufferingStarted()
	OnBufferingEnded()
	OnSeekingStarted()
	OnSeekingEnded()
	OnPositionChanged(old, new time.Duration)
	OnMediaStateChanged(old, new MediaState)
}

// NopConnector implements MediaConnector with no-op methods; embed it to
// implement only the callbacks you need, matching the teacher's preference
// for small focused interfaces over one god-interface every caller must
// fully implement.
type NopConnector struct{}

func (NopConnector) OnMessageLogged(slog.Level, string)       {}
func (NopConnector) OnMediaInitializing(OpenOptions)          {}
func (NopConnector) OnMediaOpening(OpenOptions, any)          {}
func (NopConnector) OnMediaChanging()                         {}
func (NopConnector) OnMediaChanged()                          {}
func (NopConnector) OnMediaOpened()                           {}
func (NopConnector) OnMediaClosed()                            {}
func (NopConnector) OnMediaFailed(MediaError)                 {}
func (NopConnector) OnMediaEnded()                             {}
func (NopConnector) OnBufferingStarted()                      {}
func (NopConnector) OnBufferingEnded()                         {}
func (NopConnector) OnSeekingStarted()                         {}
func (NopConnector) OnSeekingEnded()                           {}
func (NopConnector) OnPositionChanged(time.Duration, time.Duration) {}
func (NopConnector) OnMediaStateChanged(MediaState, MediaState)     {}

var _ MediaConnector = NopConnector{}

// Registry fans events out to every registered MediaConnector (§6.3
// describes a set of callbacks without ruling out multiple observers).
// Modeled on the teacher's mutex-guarded listener set
// (distribution.Relay.sessions), generalized from "N viewers" to "N
// connectors".
type Registry struct {
	mu         sync.RWMutex
	connectors []MediaConnector
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a connector.
func (r *Registry) Add(c MediaConnector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors = append(r.connectors, c)
}

// Remove unregisters a connector by identity.
func (r *Registry) Remove(c MediaConnector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.connectors {
		if existing == c {
			r.connectors = append(r.connectors[:i], r.connectors[i+1:]...)
			return
		}
	}
}

func (r *Registry) each(fn func(MediaConnector)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.connectors {
		fn(c)
	}
}

// Dispatch translates a Changes value into the
// corresponding MediaConnector callbacks, fanned out to every registered
// connector. Called from the single state-update writer path (§4.I).
func (r *Registry) Dispatch(c Changes) {
	if c.StateChanged {
		r.each(func(conn MediaConnector) { conn.OnMediaStateChanged(c.OldState, c.NewState) })
	}
	if c.PositionChanged {
		r.each(func(conn MediaConnector) { conn.OnPositionChanged(c.OldPosition, c.NewPosition) })
	}
	if c.BufferingChanged {
		if c.BufferingStarted {
			r.each(func(conn MediaConnector) { conn.OnBufferingStarted() })
		} else {
			r.each(func(conn MediaConnector) { conn.OnBufferingEnded() })
		}
	}
	if c.SeekingChanged {
		if c.SeekingStarted {
			r.each(func(conn MediaConnector) { conn.OnSeekingStarted() })
		} else {
			r.each(func(conn MediaConnector) { conn.OnSeekingEnded() })
		}
	}
}

// Emit helpers for the one-shot, non-diffed events (Opening/Opened/Closed/
// Failed/Ended/etc.) that don't correspond to a Snapshot field transition.

func (r *Registry) EmitMediaInitializing(opts OpenOptions) {
	r.each(func(c MediaConnector) { c.OnMediaInitializing(opts) })
}

func (r *Registry) EmitMediaOpening(opts OpenOptions, info any) {
	r.each(func(c MediaConnector) { c.OnMediaOpening(opts, info) })
}

func (r *Registry) EmitMediaOpened() {
	r.each(func(c MediaConnector) { c.OnMediaOpened() })
}

func (r *Registry) EmitMediaChanging() {
	r.each(func(c MediaConnector) { c.OnMediaChanging() })
}

func (r *Registry) EmitMediaChanged() {
	r.each(func(c MediaConnector) { c.OnMediaChanged() })
}

func (r *Registry) EmitMediaClosed() {
	r.each(func(c MediaConnector) { c.OnMediaClosed() })
}

func (r *Registry) EmitMediaFailed(err MediaError) {
	r.each(func(c MediaConnector) { c.OnMediaFailed(err) })
}

func (r *Registry) EmitMediaEnded() {
	r.each(func(c MediaConnector) { c.OnMediaEnded() })
}

func (r *Registry) EmitMessageLogged(level slog.Level, msg string) {
	r.each(func(c MediaConnector) { c.OnMessageLogged(level, msg) })
}
