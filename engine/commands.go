package engine

import (
	"errors"
	"time"

	"github.com/zsiec/mediaengine/block"
	"github.com/zsiec/mediaengine/command"
	"github.com/zsiec/mediaengine/container"
	"github.com/zsiec/mediaengine/container/mediaerr"
	"github.com/zsiec/mediaengine/packetqueue"
	"github.com/zsiec/mediaengine/renderer"
	"github.com/zsiec/mediaengine/ringbuffer"
	"github.com/zsiec/mediaengine/state"
)

// handleCommand is the Command Queue's Handler: it dispatches to the
// per-type implementation, all of which run on the queue's single executor
// goroutine (§4.H).
func (e *Engine) handleCommand(cmd *command.Command) error {
	switch cmd.Type {
	case command.Open:
		return e.handleOpen(cmd)
	case command.Close:
		return e.handleClose(cmd)
	case command.Play:
		return e.handlePlay(cmd)
	case command.Pause:
		return e.handlePause(cmd)
	case command.Stop:
		return e.handleStop(cmd)
	case command.Seek:
		return e.handleSeek(cmd)
	case command.ChangeMedia:
		return e.handleChangeMedia(cmd)
	case command.SetSpeedRatio:
		return e.handleSetSpeedRatio(cmd)
	default:
		return mediaerr.Wrap(cmd.Type.String(), mediaerr.ErrInvalidArgument, "unknown command type")
	}
}

func (e *Engine) handleOpen(cmd *command.Command) error {
	req, err := openRequestFrom(cmd.Args)
	if err != nil {
		return err
	}

	opts := state.OpenOptions{Source: req.Source, Config: req.Config}
	e.connectors.EmitMediaInitializing(opts)
	e.setMediaState(state.Open)

	if _, err := e.openMediaInner(cmd, req, opts); err != nil {
		return e.failOpen(openFailureKind(err), err.Error())
	}

	e.setMediaState(state.Stop)
	e.connectors.EmitMediaOpened()
	return nil
}

// openFailureKind distinguishes ErrNoStreams (container opened but had no
// playable component) from a generic ErrOpenFailure.
func openFailureKind(err error) error {
	if errors.Is(err, mediaerr.ErrNoStreams) {
		return mediaerr.ErrNoStreams
	}
	return mediaerr.ErrOpenFailure
}

// openMediaInner does the actual container-open, buffer/renderer
// allocation and transport-state bookkeeping shared by Open and
// ChangeMedia, without touching MediaState transitions or the
// Initializing/Opened/Changed connector events — the caller decides which
// of those apply.
func (e *Engine) openMediaInner(cmd *command.Command, req *OpenRequest, opts state.OpenOptions) (block.MediaInfo, error) {
	cont, err := e.containerFactory()
	if err != nil {
		return block.MediaInfo{}, err
	}
	cont.SetEvents(container.Events{OnPacketRead: e.onPacketRead})

	e.containerMu.Lock()
	info, err := cont.Open(cmd.Context(), req.Source, req.Config)
	e.containerMu.Unlock()
	if err != nil {
		return block.MediaInfo{}, err
	}
	if len(info.Streams) == 0 {
		cont.Close()
		return block.MediaInfo{}, mediaerr.Wrap("open", mediaerr.ErrNoStreams, "container reported no playable streams")
	}
	main, ok := info.MainStream()
	if !ok {
		cont.Close()
		return block.MediaInfo{}, mediaerr.Wrap("open", mediaerr.ErrNoStreams, "no main stream")
	}

	e.connectors.EmitMediaOpening(opts, info)

	e.containerMu.Lock()
	e.cont = cont
	e.readingWorker.Container = cont
	e.decodingWorker.Container = cont
	e.containerMu.Unlock()

	e.allocateBuffersAndQueues(info)
	if err := e.allocateRenderers(info); err != nil {
		e.log.Warn("renderer setup reported failures", "error", err)
	}
	e.captions.Reset()
	e.renderingWorker.ResetLastRendered()
	e.renderingWorker.ResetEndOfStream()

	e.transportMu.Lock()
	e.mediaInfo = info
	e.mainStream = main
	e.looping = req.Loop
	e.isOpen = true
	e.transportMu.Unlock()

	return info, nil
}

// failOpen tears down the transient Open attempt, transitions to Close and
// emits OnMediaFailed, per §6 ("any --fail(err)--> Close").
func (e *Engine) failOpen(kind error, detail string) error {
	e.transportMu.Lock()
	e.isOpen = false
	e.transportMu.Unlock()
	e.setMediaState(state.Close)
	e.connectors.EmitMediaFailed(state.MediaError{Kind: kind.Error(), Message: detail})
	return mediaerr.Wrap("open", kind, detail)
}

func (e *Engine) handleClose(cmd *command.Command) error {
	e.teardownMedia()
	e.setMediaState(state.Close)
	e.connectors.EmitMediaClosed()
	return nil
}

// teardownMedia releases the container, renderers, buffers and queues for
// the currently open media, if any, without touching MediaState or firing
// any connector event — shared by handleClose and handleChangeMedia, which
// each decide what to emit around it.
func (e *Engine) teardownMedia() {
	e.transportMu.RLock()
	wasOpen := e.isOpen
	e.transportMu.RUnlock()
	if !wasOpen {
		return
	}

	e.rendererSet.Close()
	e.buffers.Replace(nil)
	e.queues.Replace(nil)

	e.containerMu.Lock()
	if e.cont != nil {
		if err := e.cont.Close(); err != nil {
			e.log.Warn("container close failed", "error", err)
		}
		e.cont = nil
	}
	e.containerMu.Unlock()

	e.clock.Reset()
	e.captions.Reset()

	e.transportMu.Lock()
	e.isOpen = false
	e.mediaInfo = block.MediaInfo{}
	e.mainStream = block.StreamDescriptor{}
	e.looping = false
	e.transportMu.Unlock()
}

func (e *Engine) handlePlay(cmd *command.Command) error {
	if !e.IsOpen() {
		return mediaerr.Wrap("play", mediaerr.ErrInvalidArgument, "no media open")
	}
	e.clock.Play()
	e.renderingWorker.ResetEndOfStream()
	e.rendererSet.OnPlay()
	e.setMediaState(state.Play)
	return nil
}

func (e *Engine) handlePause(cmd *command.Command) error {
	if !e.IsOpen() {
		return mediaerr.Wrap("pause", mediaerr.ErrInvalidArgument, "no media open")
	}
	e.clock.Pause()
	e.rendererSet.OnPause()
	e.setMediaState(state.Pause)
	return nil
}

func (e *Engine) handleStop(cmd *command.Command) error {
	if !e.IsOpen() {
		return mediaerr.Wrap("stop", mediaerr.ErrInvalidArgument, "no media open")
	}
	e.clock.Pause()
	e.rendererSet.OnStop()

	e.transportMu.RLock()
	seekable := e.mediaInfo.IsSeekable
	e.transportMu.RUnlock()

	if seekable {
		for _, buf := range e.buffers.All() {
			buf.Reset()
		}
		for _, q := range e.queues.All() {
			q.Reset()
		}
		e.containerMu.Lock()
		pos, err := e.cont.Seek(cmd.Context(), 0)
		e.containerMu.Unlock()
		if err == nil {
			e.clock.SetPosition(pos)
		} else {
			e.log.Warn("stop: seek to start failed", "error", err)
			e.clock.SetPosition(0)
		}
		e.renderingWorker.ResetLastRendered()
	}

	e.setMediaState(state.Stop)
	return nil
}

func (e *Engine) handleSeek(cmd *command.Command) error {
	if !e.IsOpen() {
		return mediaerr.Wrap("seek", mediaerr.ErrInvalidArgument, "no media open")
	}
	args, ok := cmd.Args.(command.SeekArgs)
	if !ok {
		return mediaerr.Wrap("seek", mediaerr.ErrInvalidArgument, "missing seek args")
	}

	e.transportMu.Lock()
	e.seeking = true
	e.seekTarget = args.Target
	e.transportMu.Unlock()
	e.rendererSet.OnSeek()
	e.publishStateNow(nil)

	for _, buf := range e.buffers.All() {
		buf.Reset()
	}
	for _, q := range e.queues.All() {
		q.Reset()
	}

	e.containerMu.Lock()
	actual, err := e.cont.Seek(cmd.Context(), args.Target)
	e.containerMu.Unlock()
	if err != nil {
		e.transportMu.Lock()
		e.seeking = false
		e.transportMu.Unlock()
		e.publishStateNow(nil)
		return mediaerr.Wrap("seek", mediaerr.ErrSeekFailure, err.Error())
	}

	e.clock.SetPosition(actual)
	// Decode forward to the requested target, not the keyframe the container
	// landed on: §4.F seek-decoding discards intermediate blocks until a
	// block contains args.Target, leaving the playhead within a main-frame
	// duration of what was asked for rather than a full GOP before it.
	if err := e.decodingWorker.DecodeUntil(cmd.Context(), args.Target); err != nil {
		e.log.Warn("seek decode failed", "error", err)
	}
	e.renderingWorker.ResetLastRendered()
	e.renderingWorker.ResetEndOfStream()

	e.transportMu.Lock()
	e.seeking = false
	e.transportMu.Unlock()
	e.publishStateNow(nil)
	return nil
}

func (e *Engine) handleChangeMedia(cmd *command.Command) error {
	req, err := openRequestFrom(cmd.Args)
	if err != nil {
		return err
	}

	e.transportMu.Lock()
	e.changing = true
	e.transportMu.Unlock()
	e.connectors.EmitMediaChanging()
	e.publishStateNow(nil)

	preservedPos := e.clock.Position()

	e.teardownMedia()

	opts := state.OpenOptions{Source: req.Source, Config: req.Config}
	if _, err := e.openMediaInner(cmd, req, opts); err != nil {
		kind := openFailureKind(err)
		e.transportMu.Lock()
		e.changing = false
		e.isOpen = false
		e.transportMu.Unlock()
		e.connectors.EmitMediaFailed(state.MediaError{Kind: kind.Error(), Message: err.Error()})
		e.setMediaState(state.Close)
		return mediaerr.Wrap("change_media", kind, err.Error())
	}

	e.transportMu.RLock()
	seekable := e.mediaInfo.IsSeekable
	e.transportMu.RUnlock()
	if seekable && preservedPos > 0 {
		e.containerMu.Lock()
		actual, serr := e.cont.Seek(cmd.Context(), preservedPos)
		e.containerMu.Unlock()
		if serr == nil {
			e.clock.SetPosition(actual)
			e.rendererSet.OnSeek()
			if derr := e.decodingWorker.DecodeUntil(cmd.Context(), preservedPos); derr != nil {
				e.log.Warn("change media: resume decode failed", "error", derr)
			}
			e.renderingWorker.ResetLastRendered()
			e.renderingWorker.ResetEndOfStream()
		} else {
			e.log.Warn("change media: resume seek failed", "error", serr)
		}
	}

	e.transportMu.Lock()
	e.changing = false
	e.transportMu.Unlock()
	e.connectors.EmitMediaChanged()
	e.publishStateNow(nil)
	return nil
}

func (e *Engine) handleSetSpeedRatio(cmd *command.Command) error {
	args, ok := cmd.Args.(command.SpeedRatioArgs)
	if !ok {
		return mediaerr.Wrap("set_speed_ratio", mediaerr.ErrInvalidArgument, "missing speed ratio args")
	}
	if args.Ratio <= e.cfg.MinSpeedRatio || args.Ratio > e.cfg.MaxSpeedRatio {
		return mediaerr.Wrap("set_speed_ratio", mediaerr.ErrInvalidArgument, "ratio out of range")
	}
	if !e.clock.SetSpeedRatio(args.Ratio) {
		return mediaerr.Wrap("set_speed_ratio", mediaerr.ErrInvalidArgument, "rejected by clock")
	}

	if ar, ok := e.audioRenderer(); ok && e.cfg.SilenceAudioOffUnitySpeed {
		e.transportMu.RLock()
		userMuted := e.muted
		e.transportMu.RUnlock()
		ar.SetMuted(userMuted || args.Ratio != 1.0)
	}
	e.publishStateNow(nil)
	return nil
}

// onPacketRead mirrors a Read packet into the matching stream's Packet
// Queue for budget accounting (§4.E); the Decoding Worker pops and releases
// one packet per decoded frame to keep the mirror roughly in step with what
// the Container has actually consumed.
func (e *Engine) onPacketRead(p *block.Packet) {
	q := e.queues.Get(p.Stream)
	if q == nil {
		if p.Release != nil {
			p.Release()
		}
		return
	}
	q.Push(p)

	e.transportMu.Lock()
	last, hadLast := e.lastPacketPTS[p.Stream]
	e.lastPacketPTS[p.Stream] = p.PTS
	e.transportMu.Unlock()
	if hadLast && p.PTS > last {
		q.AddDuration(p.PTS - last)
	}
}

func (e *Engine) allocateBuffersAndQueues(info block.MediaInfo) {
	bufs := make(map[block.StreamType]*ringbuffer.Buffer)
	queues := make(map[block.StreamType]*packetqueue.Queue)
	seen := make(map[block.StreamType]bool)
	for _, sd := range info.Streams {
		if seen[sd.Type] {
			continue
		}
		seen[sd.Type] = true
		bufs[sd.Type] = ringbuffer.New(sd.Type, e.cfg.BufferCapacities.ForType(sd.Type))
		queues[sd.Type] = packetqueue.New()
	}
	e.buffers.Replace(bufs)
	e.queues.Replace(queues)

	e.transportMu.Lock()
	e.lastPacketPTS = make(map[block.StreamType]time.Duration)
	e.transportMu.Unlock()
}

func (e *Engine) allocateRenderers(info block.MediaInfo) error {
	var firstErr error
	seen := make(map[block.StreamType]bool)
	for _, sd := range info.Streams {
		if seen[sd.Type] {
			continue
		}
		seen[sd.Type] = true
		r, err := e.rendererFactory.NewRenderer(sd.Type)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := e.rendererSet.Add(sd.Type, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) audioRenderer() (renderer.AudioRenderer, bool) {
	r, ok := e.rendererSet.Get(block.Audio)
	if !ok {
		return nil, false
	}
	ar, ok := r.(renderer.AudioRenderer)
	return ar, ok
}

func openRequestFrom(args any) (*OpenRequest, error) {
	oa, ok := args.(command.OpenArgs)
	if !ok {
		return nil, mediaerr.Wrap("open", mediaerr.ErrInvalidArgument, "missing open args")
	}
	req, ok := oa.Payload.(*OpenRequest)
	if !ok || req == nil {
		return nil, mediaerr.Wrap("open", mediaerr.ErrInvalidArgument, "missing open request payload")
	}
	return req, nil
}
