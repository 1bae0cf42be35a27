package state

import (
	"testing"
	"time"
)

type recordingConnector struct {
	NopConnector
	stateChanges []string
	positions    int
	bufferings   []bool
}

func (r *recordingConnector) OnMediaStateChanged(old, new MediaState) {
	r.stateChanges = append(r.stateChanges, old.String()+"->"+new.String())
}

func (r *recordingConnector) OnPositionChanged(old, new time.Duration) {
	r.positions++
}

func (r *recordingConnector) OnBufferingStarted() { r.bufferings = append(r.bufferings, true) }
func (r *recordingConnector) OnBufferingEnded()   { r.bufferings = append(r.bufferings, false) }

func TestRegistryDispatchFansOutToAllConnectors(t *testing.T) {
	reg := NewRegistry()
	a := &recordingConnector{}
	b := &recordingConnector{}
	reg.Add(a)
	reg.Add(b)

	reg.Dispatch(Changes{
		StateChanged: true, OldState: Close, NewState: Open,
		PositionChanged:  true,
		BufferingChanged: true, BufferingStarted: true,
	})

	for _, r := range []*recordingConnector{a, b} {
		if len(r.stateChanges) != 1 || r.stateChanges[0] != "close->open" {
			t.Errorf("state changes: got %v", r.stateChanges)
		}
		if r.positions != 1 {
			t.Errorf("positions: got %d", r.positions)
		}
		if len(r.bufferings) != 1 || !r.bufferings[0] {
			t.Errorf("bufferings: got %v", r.bufferings)
		}
	}
}

func TestRegistryRemoveStopsFurtherDispatch(t *testing.T) {
	reg := NewRegistry()
	a := &recordingConnector{}
	reg.Add(a)
	reg.Remove(a)

	reg.Dispatch(Changes{StateChanged: true, OldState: Close, NewState: Open})
	if len(a.stateChanges) != 0 {
		t.Errorf("expected no dispatch after Remove, got %v", a.stateChanges)
	}
}

func TestRegistryEmitMediaFailed(t *testing.T) {
	reg := NewRegistry()
	var got MediaError
	reg.Add(&fnConnector{onFailed: func(e MediaError) { got = e }})

	reg.EmitMediaFailed(MediaError{Kind: "decode", Message: "boom"})
	if got.Kind != "decode" || got.Message != "boom" {
		t.Errorf("got %+v", got)
	}
}

type fnConnector struct {
	NopConnector
	onFailed func(MediaError)
}

func (f *fnConnector) OnMediaFailed(e MediaError) {
	if f.onFailed != nil {
		f.onFailed(e)
	}
}
