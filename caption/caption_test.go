package caption

import (
	"testing"

	"github.com/zsiec/mediaengine/block"
)

func TestAttachFromSEIIgnoresEmptyPayloadAndNilVideo(t *testing.T) {
	t.Parallel()
	e := NewExtractor()

	// No video payload: must not panic, nothing to attach to.
	e.AttachFromSEI([]byte{1, 2, 3}, 0, &block.Block{Type: block.Video})

	// Empty payload: no-op.
	blk := &block.Block{Type: block.Video, Video: &block.VideoPayload{}}
	e.AttachFromSEI(nil, 0, blk)
	if len(blk.Video.ClosedCaptions) != 0 {
		t.Errorf("expected no captions attached from empty payload, got %d", len(blk.Video.ClosedCaptions))
	}
}

func TestResetRecreatesDecoders(t *testing.T) {
	t.Parallel()
	e := NewExtractor()
	if len(e.cea608) != 4 {
		t.Fatalf("expected 4 CEA-608 channel decoders, got %d", len(e.cea608))
	}
	if len(e.cea708) != 6 {
		t.Fatalf("expected 6 CEA-708 services, got %d", len(e.cea708))
	}
	e.Reset()
	if len(e.cea608) != 4 || len(e.cea708) != 6 {
		t.Error("Reset should preserve channel/service counts")
	}
}
