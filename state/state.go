// Package state implements the Media Engine's Engine State (spec §4.I): an
// aggregated, read-mostly snapshot of observable properties, updated from a
// single writer path and diffed against the last-published snapshot so
// external observers only hear about what actually changed (§9
// "Dispatcher-timer property sync" redesign hint).
package state

import (
	"sync"
	"time"
)

// MediaState is the coarse playback state machine (§4 state transitions).
type MediaState int

const (
	Close MediaState = iota
	Open
	Play
	Pause
	Stop
)

// String renders the state for logging.
func (s MediaState) String() string {
	switch s {
	case Close:
		return "close"
	case Open:
		return "open"
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Snapshot is the full set of observable fields listed in spec §3.
type Snapshot struct {
	MediaState MediaState

	Position         time.Duration
	FramePosition    int64
	NaturalDuration  time.Duration
	PlaybackStart    time.Duration
	PlaybackEnd      time.Duration

	BufferingProgress float64
	DownloadProgress  float64
	PacketBufferBytes int
	PacketBufferCount int
	DecodingBitrate   int64

	IsBuffering bool
	IsSeeking   bool
	IsOpening   bool
	IsChanging  bool

	HasAudio          bool
	HasVideo          bool
	HasSubtitles      bool
	HasClosedCaptions bool

	Volume     float64
	Balance    float64
	IsMuted    bool
	SpeedRatio float64
}

// Snapshot is published to external observers without the position field
// while seeking, per §4.I ("Position changes are not published while
// is_seeking to avoid UI jitter; the final position is published at seek
// end"). publishPosition reports whether Position should be compared/fired
// this tick.
func (s Snapshot) publishPosition() bool { return !s.IsSeeking }

// Store holds the current Snapshot and the last one published to
// observers. It is written through the engine's publish path (its periodic
// state-update tick plus command and worker callbacks) and read by
// external observers calling Current(); a mutex guards both.
type Store struct {
	mu        sync.RWMutex
	current   Snapshot
	published Snapshot
}

// NewStore creates a Store at the zero (Close) snapshot.
func NewStore() *Store {
	return &Store{}
}

// Current returns the latest snapshot.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the current snapshot. It does not notify observers —
// call Diff to compute what changed and feed that into a Connector set.
func (s *Store) Update(next Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = next
}

// Diff computes the set of changes between the last-published snapshot and
// the current one, then marks the current snapshot as published. Position
// is excluded from the diff while the current snapshot has IsSeeking set;
// the tick on which seeking ends compares and publishes it (§4.I).
func (s *Store) Diff() Changes {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.published
	next := s.current

	var c Changes
	if prev.MediaState != next.MediaState {
		c.StateChanged = true
		c.OldState, c.NewState = prev.MediaState, next.MediaState
	}
	if next.publishPosition() && prev.Position != next.Position {
		c.PositionChanged = true
		c.OldPosition, c.NewPosition = prev.Position, next.Position
	}
	if prev.IsBuffering != next.IsBuffering {
		c.BufferingChanged = true
		c.BufferingStarted = next.IsBuffering
	}
	if prev.IsSeeking != next.IsSeeking {
		c.SeekingChanged = true
		c.SeekingStarted = next.IsSeeking
	}

	// Freeze published.Position while position publication is suppressed
	// (IsSeeking): otherwise it silently advances to next.Position here even
	// though no PositionChanged fired, and the eventual post-seek
	// publishPosition()==true tick would then see prev==next and never fire
	// the final OnPositionChanged (§4.I).
	if !next.publishPosition() {
		next.Position = prev.Position
	}
	s.published = next
	return c
}

// Changes is the set of field transitions a single Diff() call found,
// translated by the caller (engine.Engine) into MediaConnector callbacks.
type Changes struct {
	StateChanged         bool
	OldState, NewState   MediaState

	PositionChanged      bool
	OldPosition, NewPosition time.Duration

	BufferingChanged bool
	BufferingStarted bool

	SeekingChanged bool
	SeekingStarted bool
}

// Any reports whether at least one field changed.
func (c Changes) Any() bool {
	return c.StateChanged || c.PositionChanged || c.BufferingChanged || c.SeekingChanged
}
