package engine

import (
	"context"
	"time"

	"github.com/zsiec/mediaengine/command"
	"github.com/zsiec/mediaengine/container"
)

// Open submits an Open command for source under cfg. The returned Handle
// resolves once the media is open (or the attempt fails).
func (e *Engine) Open(ctx context.Context, source container.Source, cfg container.Config, loop bool) command.Handle {
	req := &OpenRequest{Source: source, Config: cfg, Loop: loop}
	cmd := command.New(ctx, command.Open, command.OpenArgs{Payload: req})
	return e.cmdQueue.Submit(cmd)
}

// Close submits a Close command, releasing the container, buffers and
// renderers for the currently open media.
func (e *Engine) Close(ctx context.Context) command.Handle {
	cmd := command.New(ctx, command.Close, nil)
	return e.cmdQueue.Submit(cmd)
}

// Play submits a Play command.
func (e *Engine) Play(ctx context.Context) command.Handle {
	cmd := command.New(ctx, command.Play, nil)
	return e.cmdQueue.Submit(cmd)
}

// Pause submits a Pause command.
func (e *Engine) Pause(ctx context.Context) command.Handle {
	cmd := command.New(ctx, command.Pause, nil)
	return e.cmdQueue.Submit(cmd)
}

// Stop submits a Stop command; position resets to zero on seekable media.
func (e *Engine) Stop(ctx context.Context) command.Handle {
	cmd := command.New(ctx, command.Stop, nil)
	return e.cmdQueue.Submit(cmd)
}

// Seek submits a Seek command targeting the given position. A newer Seek
// submitted before this one starts replaces it; one already running is
// cancelled at its next frame boundary (§4.H).
func (e *Engine) Seek(ctx context.Context, target time.Duration) command.Handle {
	cmd := command.New(ctx, command.Seek, command.SeekArgs{Target: target})
	return e.cmdQueue.Submit(cmd)
}

// ChangeMedia submits a ChangeMedia command: closes the current media (if
// any) and opens source under cfg, preserving the playhead position on a
// seekable target (§9 supplemented scenario "change audio track").
func (e *Engine) ChangeMedia(ctx context.Context, source container.Source, cfg container.Config, loop bool) command.Handle {
	req := &OpenRequest{Source: source, Config: cfg, Loop: loop}
	cmd := command.New(ctx, command.ChangeMedia, command.OpenArgs{Payload: req})
	return e.cmdQueue.Submit(cmd)
}

// SetSpeedRatio submits a SetSpeedRatio command. ratio must be in
// (MinSpeedRatio, MaxSpeedRatio], per Config.
func (e *Engine) SetSpeedRatio(ctx context.Context, ratio float64) command.Handle {
	cmd := command.New(ctx, command.SetSpeedRatio, command.SpeedRatioArgs{Ratio: ratio})
	return e.cmdQueue.Submit(cmd)
}

// SetVolume sets the active audio renderer's volume directly; unlike
// transport operations this is not queued since it doesn't touch worker or
// container state (§4.D).
func (e *Engine) SetVolume(v float64) {
	e.transportMu.Lock()
	e.volume = v
	e.transportMu.Unlock()
	if ar, ok := e.audioRenderer(); ok {
		ar.SetVolume(v)
	}
}

// SetBalance sets the active audio renderer's stereo balance directly.
func (e *Engine) SetBalance(b float64) {
	e.transportMu.Lock()
	e.balance = b
	e.transportMu.Unlock()
	if ar, ok := e.audioRenderer(); ok {
		ar.SetBalance(b)
	}
}

// SetMuted mutes or unmutes the active audio renderer directly. A
// SetSpeedRatio call away from unity speed may additionally mute it per
// Config.SilenceAudioOffUnitySpeed; this call sets the user-requested base
// state that policy composes with.
func (e *Engine) SetMuted(muted bool) {
	e.transportMu.Lock()
	e.muted = muted
	e.transportMu.Unlock()
	if ar, ok := e.audioRenderer(); ok {
		ar.SetMuted(muted)
	}
}

// SetLooping sets whether end-of-stream re-seeks to the start and resumes
// Play instead of transitioning to Pause (§6 state machine). Takes effect
// immediately, including for an already-open media.
func (e *Engine) SetLooping(looping bool) {
	e.transportMu.Lock()
	e.looping = looping
	e.transportMu.Unlock()
}
