package session

import (
	"testing"

	"github.com/kstaniek/meg-acq-server/internal/framing"
)

func rawFrame(fill float32) [framing.NSamplesPerFrame][framing.NChannelsRaw]float32 {
	var raw [framing.NSamplesPerFrame][framing.NChannelsRaw]float32
	for s := range raw {
		for ch := range raw[s] {
			raw[s][ch] = fill
		}
	}
	return raw
}

func TestAccumulatorCleanFrame(t *testing.T) {
	codec := framing.NewDataCodec(framing.DefaultNChannelsOut, framing.DefaultSamplingRate)
	wire := codec.Encode(1, rawFrame(0), 0)

	acc := &accumulator{}
	acc.append(wire)
	frames, syncLosses := acc.drain(codec)

	if syncLosses != 0 {
		t.Fatalf("syncLosses = %d, want 0", syncLosses)
	}
	if len(frames) != 1 {
		t.Fatalf("len(frames) = %d, want 1", len(frames))
	}
	if acc.len() != 0 {
		t.Fatalf("accumulator should be fully drained, has %d bytes left", acc.len())
	}
}

func TestAccumulatorStampsSeqAndTimestamp(t *testing.T) {
	codec := framing.NewDataCodec(framing.DefaultNChannelsOut, framing.DefaultSamplingRate)
	f1 := codec.Encode(1, rawFrame(0), 0)
	f2 := codec.Encode(2, rawFrame(1), 0)

	acc := &accumulator{}
	acc.append(append(append([]byte{}, f1...), f2...))
	frames, _ := acc.drain(codec)

	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(frames))
	}
	df0 := frames[0].(*framing.DataFrame)
	df1 := frames[1].(*framing.DataFrame)
	if df0.SeqNum != 1 || df1.SeqNum != 2 {
		t.Fatalf("SeqNum = %d, %d, want 1, 2", df0.SeqNum, df1.SeqNum)
	}
	if df0.Timestamp.IsZero() || df1.Timestamp.IsZero() {
		t.Fatalf("expected non-zero timestamps on both frames")
	}
}

func TestAccumulatorGarbageByteBetweenFrames(t *testing.T) {
	codec := framing.NewDataCodec(framing.DefaultNChannelsOut, framing.DefaultSamplingRate)
	f1 := codec.Encode(1, rawFrame(1), 0)
	f2 := codec.Encode(2, rawFrame(2), 0)

	wire := append(append(append([]byte{}, f1...), 0xFF), f2...)

	acc := &accumulator{}
	acc.append(wire)
	frames, syncLosses := acc.drain(codec)

	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(frames))
	}
	if syncLosses != 1 {
		t.Fatalf("syncLosses = %d, want 1", syncLosses)
	}
}

func TestAccumulatorTruncatedTailRetained(t *testing.T) {
	codec := framing.NewDataCodec(framing.DefaultNChannelsOut, framing.DefaultSamplingRate)
	f1 := codec.Encode(1, rawFrame(1), 0)
	f2 := codec.Encode(2, rawFrame(2), 0)
	partial := f2[:100]

	acc := &accumulator{}
	acc.append(append(append([]byte{}, f1...), partial...))
	frames, syncLosses := acc.drain(codec)

	if len(frames) != 1 {
		t.Fatalf("len(frames) = %d, want 1", len(frames))
	}
	if syncLosses != 0 {
		t.Fatalf("syncLosses = %d, want 0", syncLosses)
	}
	if acc.len() != 100 {
		t.Fatalf("accumulator should retain the 100-byte tail, has %d bytes", acc.len())
	}
}

func TestAccumulatorTruncatesOversizedBuffer(t *testing.T) {
	acc := &accumulator{buf: make([]byte, accumulatorTruncateAt+1)}
	if !acc.truncateIfOversized() {
		t.Fatalf("expected truncation to trigger")
	}
	if acc.len() != accumulatorKeepTail {
		t.Fatalf("len() = %d, want %d", acc.len(), accumulatorKeepTail)
	}
}

func TestAccumulatorNoTruncationUnderThreshold(t *testing.T) {
	acc := &accumulator{buf: make([]byte, accumulatorTruncateAt)}
	if acc.truncateIfOversized() {
		t.Fatalf("did not expect truncation at exactly the threshold")
	}
}
