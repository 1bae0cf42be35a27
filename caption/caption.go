// Package caption adapts closed-caption byte payload the Container attaches
// to a decoded video Frame into ccx.CaptionFrame attachments on a Block
// (spec §3 "optional closed-caption packets", §9 open question: the CC
// extraction algorithm itself is left to ccx, not reimplemented here).
package caption

import (
	"time"

	"github.com/zsiec/ccx"

	"github.com/zsiec/mediaengine/block"
)

// Extractor decodes CEA-608/708 byte payload into caption frames. The
// Decoding Worker calls it once per video Frame that carries CC payload;
// real decoding is delegated to ccx, matching the teacher's per-channel
// ccx.CEA608Decoder/ccx.CEA708Service usage in its demuxer.
type Extractor struct {
	cea608  map[int]*ccx.CEA608Decoder
	cea708  map[int]*ccx.CEA708Service
	dtvccBuf []byte
}

// NewExtractor creates an Extractor with decoders for the standard four
// CEA-608 channels and the CEA-708 services the teacher's demuxer wires up.
func NewExtractor() *Extractor {
	e := &Extractor{
		cea608: make(map[int]*ccx.CEA608Decoder, 4),
		cea708: make(map[int]*ccx.CEA708Service, 6),
	}
	for ch := 1; ch <= 4; ch++ {
		e.cea608[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= 6; svc++ {
		e.cea708[svc] = ccx.NewCEA708Service()
	}
	return e
}

// AttachFromSEI extracts caption packets embedded in a raw H.264/H.265 SEI
// payload and appends any resulting ccx.CaptionFrame to
// dst.Video.ClosedCaptions. CEA-708 (DTVCC) service blocks are accumulated
// and decoded the same way; both use microseconds-since-start PTS to match
// ccx.CaptionFrame's PTS unit.
func (e *Extractor) AttachFromSEI(sei []byte, pts time.Duration, dst *block.Block) {
	if dst == nil || dst.Video == nil || len(sei) == 0 {
		return
	}
	cd := ccx.ExtractCaptions(sei)
	if cd == nil {
		return
	}

	ptsUs := pts.Microseconds()

	for _, pair := range cd.CC608Pairs {
		dec, ok := e.cea608[pair.Channel]
		if !ok {
			continue
		}
		text := dec.Decode(pair.Data[0], pair.Data[1])
		if text == "" {
			continue
		}
		frame := &ccx.CaptionFrame{PTS: ptsUs, Text: text, Channel: pair.Channel}
		frame.Regions = dec.StyledRegions()
		dst.Video.ClosedCaptions = append(dst.Video.ClosedCaptions, frame)
	}

	for _, t := range cd.DTVCC {
		if t.Start {
			e.dtvccBuf = e.dtvccBuf[:0]
		}
		e.dtvccBuf = append(e.dtvccBuf, t.Data[0], t.Data[1])
		e.drainDTVCC(ptsUs, dst)
	}
}

func (e *Extractor) drainDTVCC(ptsUs int64, dst *block.Block) {
	if len(e.dtvccBuf) < 1 {
		return
	}
	packetSize := ccx.DTVCCPacketSize(e.dtvccBuf[0])
	if len(e.dtvccBuf) < packetSize {
		return
	}
	for _, blk := range ccx.ParseDTVCCPacket(e.dtvccBuf[:packetSize]) {
		svc, ok := e.cea708[blk.ServiceNum]
		if !ok {
			continue
		}
		if !svc.ProcessBlock(blk.Data) {
			continue
		}
		text := svc.DisplayText()
		if text == "" {
			continue
		}
		channel := blk.ServiceNum + 6
		frame := &ccx.CaptionFrame{PTS: ptsUs, Text: text, Channel: channel}
		frame.Regions = svc.StyledRegions()
		dst.Video.ClosedCaptions = append(dst.Video.ClosedCaptions, frame)
	}
	e.dtvccBuf = e.dtvccBuf[:0]
}

// Reset clears all per-channel decoder state, called on seek/flush so
// stale caption rows don't bleed across a discontinuity.
func (e *Extractor) Reset() {
	for ch := range e.cea608 {
		e.cea608[ch] = ccx.NewCEA608Decoder()
	}
	for svc := range e.cea708 {
		e.cea708[svc] = ccx.NewCEA708Service()
	}
}
