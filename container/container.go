// Package container defines the Container Proxy capability (spec §4.C,
// §6.1): the contract the Media Engine consumes from the opaque native
// codec stack (demuxer + decoders + converters). The engine never
// implements a demuxer itself — that native library is explicitly out of
// scope (spec §1) — this package only describes the interface workers call
// through.
package container

import (
	"context"
	"time"

	"github.com/zsiec/mediaengine/block"
)

// Source identifies where the Container reads compressed data from: either
// a URL string or a caller-supplied stream with read+seek callbacks and a
// pseudo-URI, per §6.1.
type Source struct {
	URL    string
	Stream InputStream
}

// InputStream is the read+seek callback pair a caller supplies for a custom
// input, with a pseudo-URI used for logging/format hints.
type InputStream struct {
	PseudoURI string
	Read      func(p []byte) (int, error)
	Seek      func(offset int64, whence int) (int64, error)
}

// Config recognizes the ContainerConfig options named in §6.1.
type Config struct {
	ForcedFormat       string
	ProbeSize          int64
	ReadTimeout        time.Duration
	PerStreamOptions   map[block.StreamType]map[string]string
	ProtocolAllowList  []string
	InputBufferLength  int
}

// Readiness is the result of one Read() call, per §6.1.
type Readiness struct {
	ReadOK            bool
	EndOfStream       bool
	RequiresReadDelay bool
}

// Events is the set of opt-in capture callbacks a Container fires; native
// pointers are passed as opaque `any` handles valid only for the duration
// of the callback (§9 "Pointer-to-native frames in events" redesign hint —
// handle retention past return is forbidden by contract, not enforceable
// by the type system).
type Events struct {
	OnPacketRead         func(p *block.Packet)
	OnVideoFrameDecoded  func(f *block.Frame, native any)
	OnAudioFrameDecoded  func(f *block.Frame, native any)
	OnSubtitleDecoded    func(f *block.Frame, native any)
	OnDataFrameDecoded   func(f *block.Frame, native any)
}

// Container is the capability the Media Engine consumes from the native
// codec stack. A Container is single-threaded per instance: callers (the
// Reading, Decoding workers, and the Command Queue executor) must not
// invoke two methods concurrently — the engine's container mutex (see
// engine.Engine) enforces this.
type Container interface {
	// Open opens source with the given configuration and returns the
	// resulting media metadata, or an error wrapping mediaerr.ErrOpenFailure
	// or mediaerr.ErrNoStreams.
	Open(ctx context.Context, source Source, cfg Config) (block.MediaInfo, error)

	// Read pulls the next packet and dispatches it into the right
	// component's queue internally, firing OnPacketRead. It returns the
	// readiness flags describing what happened.
	Read(ctx context.Context) (Readiness, error)

	// Decode drains one pass over per-component packet queues, yielding
	// zero or more frames across stream types.
	Decode(ctx context.Context) ([]*block.Frame, error)

	// Convert converts a decoded Frame into dst, a Block the caller owns
	// (the Decoding Worker passes a freshly allocated one per frame).
	Convert(ctx context.Context, f *block.Frame, dst *block.Block) error

	// Seek positions the container near targetTime, at the nearest keyframe
	// at or before the request; it flushes decoders and sets each
	// component's start_time anchor. It returns the actual position reached.
	Seek(ctx context.Context, targetTime time.Duration) (time.Duration, error)

	// Flush discards pending decoder state without closing the container.
	Flush() error

	// Close releases all container resources. The Container must not be
	// reused after Close.
	Close() error

	// IsAtEndOfStream reports whether the container has reached the end of
	// the main component's stream.
	IsAtEndOfStream() bool

	// Components describes the active stream components.
	Components() []block.StreamDescriptor

	// Metadata returns the container's metadata dictionary (title, tags,
	// etc. — not the per-stream descriptors already in MediaInfo).
	Metadata() map[string]string

	// SetEvents registers opt-in capture callbacks. Passing a zero Events
	// disables capture.
	SetEvents(Events)
}
