// Package containertest provides a fake container.Container driving a
// synthetic single-video-stream media, used by engine and worker tests in
// place of the real (out-of-scope) native codec library, analogous to the
// teacher's testViewer fake in pipeline_integration_test.go.
package containertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zsiec/mediaengine/block"
	"github.com/zsiec/mediaengine/container"
	"github.com/zsiec/mediaengine/container/mediaerr"
)

// Fake is a deterministic Container: a single Video stream made of
// BlockCount blocks of BlockDuration each. Read/Decode/Convert advance in
// lockstep, one block per call, so tests can drive the pipeline
// deterministically without real codecs.
type Fake struct {
	BlockCount    int
	BlockDuration time.Duration
	Seekable      bool

	// FailOpen, when set, makes Open return an OpError wrapping it.
	FailOpen error

	mu           sync.Mutex
	opened       bool
	readCursor   int
	frameCursor  int
	events       container.Events
}

// New creates a Fake with sane defaults: 10 one-second video blocks,
// seekable.
func New() *Fake {
	return &Fake{BlockCount: 10, BlockDuration: time.Second, Seekable: true}
}

func (f *Fake) Open(ctx context.Context, source container.Source, cfg container.Config) (block.MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailOpen != nil {
		return block.MediaInfo{}, mediaerr.Wrap("open", f.FailOpen, source.URL)
	}
	f.opened = true
	return block.MediaInfo{
		Duration:   time.Duration(f.BlockCount) * f.BlockDuration,
		IsSeekable: f.Seekable,
		Streams: []block.StreamDescriptor{
			{Type: block.Video, Codec: "fake", FrameRate: 1.0 / f.BlockDuration.Seconds()},
		},
		ContainerFormat: "faketest",
	}, nil
}

func (f *Fake) Read(ctx context.Context) (container.Readiness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readCursor >= f.BlockCount {
		return container.Readiness{EndOfStream: true}, nil
	}
	start := time.Duration(f.readCursor) * f.BlockDuration
	pkt := &block.Packet{Stream: block.Video, PTS: start, Size: 4096}
	f.readCursor++
	if f.events.OnPacketRead != nil {
		f.events.OnPacketRead(pkt)
	}
	return container.Readiness{ReadOK: true}, nil
}

func (f *Fake) Decode(ctx context.Context) ([]*block.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frameCursor >= f.readCursor {
		return nil, nil
	}
	start := time.Duration(f.frameCursor) * f.BlockDuration
	fr := &block.Frame{Stream: block.Video, StartTime: start, Duration: f.BlockDuration}
	f.frameCursor++
	if f.events.OnVideoFrameDecoded != nil {
		f.events.OnVideoFrameDecoded(fr, nil)
	}
	return []*block.Frame{fr}, nil
}

func (f *Fake) Convert(ctx context.Context, fr *block.Frame, dst *block.Block) error {
	dst.Type = fr.Stream
	dst.StartTime = fr.StartTime
	dst.EndTime = fr.StartTime + fr.Duration
	dst.Video = &block.VideoPayload{
		Width: 16, Height: 16, Stride: 64, Format: block.BGRA8,
		Pixels: make([]byte, 16*64),
	}
	return nil
}

func (f *Fake) Seek(ctx context.Context, target time.Duration) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Seekable {
		return 0, mediaerr.Wrap("seek", mediaerr.ErrSeekFailure, "not seekable")
	}
	idx := int(target / f.BlockDuration)
	if idx < 0 {
		idx = 0
	}
	if idx > f.BlockCount {
		idx = f.BlockCount
	}
	f.readCursor = idx
	f.frameCursor = idx
	return time.Duration(idx) * f.BlockDuration, nil
}

func (f *Fake) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = false
	return nil
}

func (f *Fake) IsAtEndOfStream() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frameCursor >= f.BlockCount
}

func (f *Fake) Components() []block.StreamDescriptor {
	return []block.StreamDescriptor{{Type: block.Video, Codec: "fake"}}
}

func (f *Fake) Metadata() map[string]string {
	return map[string]string{"title": fmt.Sprintf("fake-%d-blocks", f.BlockCount)}
}

func (f *Fake) SetEvents(e container.Events) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = e
}

var _ container.Container = (*Fake)(nil)
