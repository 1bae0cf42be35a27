// Package block defines the data types that flow through the Media Engine
// pipeline: compressed Packets from the Container, decoded Frames, and the
// presentable Blocks that end up in a stream's ring buffer.
package block

import (
	"time"

	"github.com/zsiec/ccx"
)

// StreamType tags the kind of elementary stream a Packet, Frame, or Block
// belongs to.
type StreamType int

// Supported stream types. None is used for packets/frames the engine does
// not route anywhere (e.g. unknown stream indices reported by the Container).
const (
	Video StreamType = iota
	Audio
	Subtitle
	Data
	None
)

// String renders the stream type for logging.
func (t StreamType) String() string {
	switch t {
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Subtitle:
		return "subtitle"
	case Data:
		return "data"
	default:
		return "none"
	}
}

// PixelFormat identifies the normalized pixel layout of a decoded video
// Block. The engine always converts to BGRA8 for the raster sink (§3).
type PixelFormat int

// BGRA8 is the only pixel format Blocks are converted to; the Container
// proxy is responsible for any upstream conversion.
const BGRA8 PixelFormat = 0

// Packet is an opaque handle to a compressed unit read from the Container.
// Whoever dequeues a Packet from a packetqueue.Queue owns it and must call
// Release when done, whether it was consumed or discarded.
type Packet struct {
	Stream   StreamType
	PTS      time.Duration
	Size     int
	IsFlush  bool
	Release  func()
	Native   any // opaque handle owned by the Container implementation
}

// Frame is an opaque handle to a decoded-but-unconverted unit. Frames are
// short-lived: the Decoding Worker converts each one to a Block before it
// is inserted into a ring buffer, then the Frame is released.
type Frame struct {
	Stream    StreamType
	StartTime time.Duration
	Duration  time.Duration
	Release   func()
	Native    any
}

// VideoPayload carries the pixel data and geometry of a Video Block.
type VideoPayload struct {
	Pixels                []byte
	Width, Height, Stride int
	Format                PixelFormat
	ClosedCaptions        []*ccx.CaptionFrame
}

// AudioPayload carries PCM16 interleaved stereo samples at 48 kHz, fixed
// after resampling (§3).
type AudioPayload struct {
	PCM []int16
}

// SubtitlePayload carries decoded subtitle text plus the original markup.
type SubtitlePayload struct {
	Lines     []string
	Markup    string
	FormatTag string
}

// Block is a presentable unit: the output of converting a Frame via the
// Container. Once inserted into a ring buffer a Block is owned exclusively
// by that buffer; renderers borrow it under a read guard (see
// ringbuffer.Guard).
type Block struct {
	Type                  StreamType
	StartTime             time.Duration
	EndTime               time.Duration
	DisplayPictureNumber  int64
	HasDisplayPictureNum  bool
	SMPTETimecode         string

	Video    *VideoPayload
	Audio    *AudioPayload
	Subtitle *SubtitlePayload
}

// Duration returns EndTime - StartTime.
func (b *Block) Duration() time.Duration {
	if b == nil {
		return 0
	}
	return b.EndTime - b.StartTime
}

// Contains reports whether t falls in the Block's half-open [start, end)
// interval.
func (b *Block) Contains(t time.Duration) bool {
	return b != nil && t >= b.StartTime && t < b.EndTime
}

// StreamDescriptor is a per-component entry in MediaInfo.
type StreamDescriptor struct {
	Type        StreamType
	Codec       string
	BitrateBps  int64
	SampleRate  int
	Channels    int
	PixelFormat string
	FrameRate   float64
	Aspect      float64
	RotationDeg int
	Metadata    map[string]string
}

// MediaInfo is the per-open snapshot describing an opened media source
// (§3). Duration is zero and Live is true for sources whose total duration
// is unknown.
type MediaInfo struct {
	Duration        time.Duration
	IsSeekable      bool
	Streams         []StreamDescriptor
	ContainerFormat string
	TotalSizeBytes  int64
	HasKnownSize    bool
	IsNetwork       bool
	IsLive          bool
}

// MainStream picks the Main component per §3: prefer Video, else Audio,
// else the first available stream. It returns (descriptor, true) or a zero
// value and false if there are no streams at all.
func (mi MediaInfo) MainStream() (StreamDescriptor, bool) {
	var firstAudio, first *StreamDescriptor
	for i := range mi.Streams {
		s := &mi.Streams[i]
		if s.Type == Video {
			return *s, true
		}
		if s.Type == Audio && firstAudio == nil {
			firstAudio = s
		}
		if first == nil {
			first = s
		}
	}
	if firstAudio != nil {
		return *firstAudio, true
	}
	if first != nil {
		return *first, true
	}
	return StreamDescriptor{}, false
}
