// Package engineconfig collects every tunable policy parameter the Media
// Engine's workers and buffers use, so the "calibrated defaults" called out
// as policy parameters (rather than hardcoded constants) live in one place.
package engineconfig

import (
	"time"

	"github.com/zsiec/mediaengine/block"
)

// BufferCapacities gives the Block Buffer ring size per stream type.
type BufferCapacities struct {
	Video    int
	Audio    int
	Subtitle int
}

// DefaultBufferCapacities matches the calibrated example sizes.
func DefaultBufferCapacities() BufferCapacities {
	return BufferCapacities{Video: 18, Audio: 48, Subtitle: 16}
}

// ForType returns the configured capacity for a stream type, falling back to
// the Video capacity for Data/None streams (no dedicated ring).
func (c BufferCapacities) ForType(t block.StreamType) int {
	switch t {
	case block.Audio:
		return c.Audio
	case block.Subtitle:
		return c.Subtitle
	default:
		return c.Video
	}
}

// PacketBudget bounds the Reading Worker's packet queues.
type PacketBudget struct {
	MaxBytes int
	// MaxDuration, when zero, is computed per-cycle as
	// max(MinDurationFloor, DurationPerCapacity*mainFrameDuration*mainCapacity).
	MaxDuration           time.Duration
	MinDurationFloor      time.Duration
	DurationPerCapacity   float64
	LowWaterFraction      float64
	FullWaterFraction     float64
}

// DefaultPacketBudget matches the calibrated example policy (§4.E).
func DefaultPacketBudget() PacketBudget {
	return PacketBudget{
		MaxBytes:            16 << 20,
		MinDurationFloor:    time.Second,
		DurationPerCapacity: 0.5,
		LowWaterFraction:    0.1,
		FullWaterFraction:   0.75,
	}
}

// EffectiveMaxDuration resolves the packet duration budget against the main
// stream's per-block duration and buffer capacity, unless an explicit
// MaxDuration override is set.
func (b PacketBudget) EffectiveMaxDuration(mainFrameDuration time.Duration, mainCapacity int) time.Duration {
	if b.MaxDuration > 0 {
		return b.MaxDuration
	}
	computed := time.Duration(b.DurationPerCapacity * float64(mainFrameDuration) * float64(mainCapacity))
	if computed < b.MinDurationFloor {
		return b.MinDurationFloor
	}
	return computed
}

// RetentionWindows bounds how far ahead/behind the playhead the Decoding
// Worker keeps the main Block Buffer populated (§4.F).
type RetentionWindows struct {
	LookAhead time.Duration
	// LookBehind, when zero, is computed as
	// max(LookBehindFloor, LookBehindFactor*mainBlockDuration).
	LookBehind       time.Duration
	LookBehindFloor  time.Duration
	LookBehindFactor float64
}

// DefaultRetentionWindows matches the calibrated example policy (§4.F).
func DefaultRetentionWindows() RetentionWindows {
	return RetentionWindows{
		LookAhead:        2 * time.Second,
		LookBehindFloor:  500 * time.Millisecond,
		LookBehindFactor: 2,
	}
}

// EffectiveLookBehind resolves the look-behind window against the main
// stream's per-block duration, unless an explicit override is set.
func (r RetentionWindows) EffectiveLookBehind(mainBlockDuration time.Duration) time.Duration {
	if r.LookBehind > 0 {
		return r.LookBehind
	}
	computed := time.Duration(r.LookBehindFactor * float64(mainBlockDuration))
	if computed < r.LookBehindFloor {
		return r.LookBehindFloor
	}
	return computed
}

// WorkerCadences sets each worker's cooperative cycle period (§4.E/F/G).
type WorkerCadences struct {
	Reading          time.Duration
	Decoding         time.Duration
	RenderingMinimum time.Duration // longest period between rendering cycles (at least 60 Hz)
	StateUpdate      time.Duration
}

// DefaultWorkerCadences matches the calibrated example cadences.
func DefaultWorkerCadences() WorkerCadences {
	return WorkerCadences{
		Reading:          25 * time.Millisecond,
		Decoding:         10 * time.Millisecond,
		RenderingMinimum: time.Second / 60,
		StateUpdate:      33 * time.Millisecond,
	}
}

// Config bundles every policy parameter the engine consults. Default()
// returns a Config with every field set; zero-valued fields of a Config
// built by hand are used as they are.
type Config struct {
	BufferCapacities  BufferCapacities
	PacketBudget      PacketBudget
	RetentionWindows  RetentionWindows
	WorkerCadences    WorkerCadences

	// SilenceAudioOffUnitySpeed mutes the audio renderer whenever
	// SpeedRatio != 1.0, sidestepping pitch-corrected resampling rather
	// than shipping one (an Open Question in the source spec, resolved
	// here in favor of the simpler, dependency-free behavior).
	SilenceAudioOffUnitySpeed bool

	MaxSpeedRatio float64
	MinSpeedRatio float64
}

// Default returns the calibrated default Config.
func Default() Config {
	return Config{
		BufferCapacities:          DefaultBufferCapacities(),
		PacketBudget:              DefaultPacketBudget(),
		RetentionWindows:          DefaultRetentionWindows(),
		WorkerCadences:            DefaultWorkerCadences(),
		SilenceAudioOffUnitySpeed: true,
		MaxSpeedRatio:             8.0,
		MinSpeedRatio:             0.0625,
	}
}
