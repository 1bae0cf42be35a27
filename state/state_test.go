package state

import (
	"testing"
	"time"
)

func TestDiffDetectsStateChange(t *testing.T) {
	s := NewStore()
	s.Update(Snapshot{MediaState: Open})
	c := s.Diff()
	if !c.StateChanged || c.OldState != Close || c.NewState != Open {
		t.Fatalf("got %+v", c)
	}
	if !c.Any() {
		t.Fatal("Any() should be true")
	}
}

func TestDiffIsNoopWhenNothingChanged(t *testing.T) {
	s := NewStore()
	s.Update(Snapshot{MediaState: Play, Position: 2 * time.Second})
	s.Diff()

	c := s.Diff()
	if c.Any() {
		t.Fatalf("expected no changes, got %+v", c)
	}
}

func TestPositionChangeSuppressedWhileSeeking(t *testing.T) {
	s := NewStore()
	s.Update(Snapshot{MediaState: Play, Position: time.Second})
	s.Diff()

	s.Update(Snapshot{MediaState: Play, Position: 3 * time.Second, IsSeeking: true})
	c := s.Diff()
	if c.PositionChanged {
		t.Fatalf("position change should be suppressed while seeking, got %+v", c)
	}
	if !c.SeekingChanged || !c.SeekingStarted {
		t.Fatalf("expected seeking-started transition, got %+v", c)
	}

	s.Update(Snapshot{MediaState: Play, Position: 9 * time.Second, IsSeeking: false})
	c = s.Diff()
	if !c.PositionChanged || c.NewPosition != 9*time.Second {
		t.Fatalf("expected the final position to publish once seeking ends, got %+v", c)
	}
	if !c.SeekingChanged || c.SeekingStarted {
		t.Fatalf("expected seeking-ended transition, got %+v", c)
	}
}

func TestDiffDetectsBufferingTransition(t *testing.T) {
	s := NewStore()
	s.Update(Snapshot{IsBuffering: true})
	c := s.Diff()
	if !c.BufferingChanged || !c.BufferingStarted {
		t.Fatalf("got %+v", c)
	}

	s.Update(Snapshot{IsBuffering: false})
	c = s.Diff()
	if !c.BufferingChanged || c.BufferingStarted {
		t.Fatalf("got %+v", c)
	}
}

func TestCurrentReturnsLatestUpdate(t *testing.T) {
	s := NewStore()
	s.Update(Snapshot{MediaState: Pause, Volume: 0.5})
	got := s.Current()
	if got.MediaState != Pause || got.Volume != 0.5 {
		t.Fatalf("got %+v", got)
	}
}
