package framing

import (
	"encoding/binary"
	"errors"
	"testing"
	"unicode/utf8"
)

// encodeStatusFrame builds a wire-format status frame for tests. text is
// padded/truncated to StatusTextSize bytes; sensors fills the first
// len(sensors) records (up to StatusNSensors).
func encodeStatusFrame(frameNumber uint32, text string, sensors []SensorRecord, declaredPayloadSize int) []byte {
	if declaredPayloadSize < StatusEffectiveSize {
		declaredPayloadSize = StatusEffectiveSize
	}
	buf := make([]byte, StatusHeaderSize+declaredPayloadSize+StatusFooterSize)
	copy(buf[0:4], FrameStart)
	binary.LittleEndian.PutUint32(buf[4:8], frameNumber)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(declaredPayloadSize))
	binary.LittleEndian.PutUint32(buf[12:16], StatusNSensors)
	binary.LittleEndian.PutUint32(buf[16:20], StatusEffectiveSize)

	payload := buf[StatusHeaderSize : StatusHeaderSize+declaredPayloadSize]
	copy(payload[0:StatusTextSize], text)
	for i, rec := range sensors {
		if i >= StatusNSensors {
			break
		}
		off := StatusTextSize + i*statusRecordSize
		payload[off] = rec.ACT
		payload[off+1] = rec.LLS
		payload[off+2] = rec.SLS
		payload[off+3] = rec.FLS
	}

	footer := buf[StatusHeaderSize+declaredPayloadSize:]
	copy(footer[0:4], PayloadEnd)
	copy(footer[8:12], FrameEnd)
	return buf
}

func allActiveSensors() []SensorRecord {
	recs := make([]SensorRecord, StatusNSensors)
	for i := range recs {
		recs[i] = SensorRecord{ACT: 1, LLS: 0, SLS: 0, FLS: 0}
	}
	return recs
}

func TestStatusCodecDecodeAllActive(t *testing.T) {
	c := StatusCodec{}
	wire := encodeStatusFrame(9, "calibration ok", allActiveSensors(), StatusEffectiveSize)

	got, consumed, err := c.Decode(wire, 0)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if consumed != len(wire) {
		t.Fatalf("consumed = %d, want %d", consumed, len(wire))
	}
	frame, ok := got.(*StatusFrame)
	if !ok {
		t.Fatalf("decoded frame has wrong type %T", got)
	}
	if frame.WireFrameNumber != 9 {
		t.Fatalf("WireFrameNumber = %d, want 9", frame.WireFrameNumber)
	}
	for i, rec := range frame.Sensors {
		if rec.ACT != 1 {
			t.Fatalf("sensor %d ACT = %d, want 1", i, rec.ACT)
		}
	}
}

func TestStatusCodecLargerDeclaredPayload(t *testing.T) {
	c := StatusCodec{}
	// Declare more payload than the effective 600 bytes; the extra trailing
	// bytes carry no status and must be skipped without affecting decode.
	wire := encodeStatusFrame(1, "extra padding present", allActiveSensors(), StatusEffectiveSize+256)

	_, consumed, err := c.Decode(wire, 0)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if consumed != len(wire) {
		t.Fatalf("consumed = %d, want %d", consumed, len(wire))
	}
}

func TestStatusCodecNeedsMoreData(t *testing.T) {
	c := StatusCodec{}
	wire := encodeStatusFrame(1, "ok", allActiveSensors(), StatusEffectiveSize)
	truncated := wire[:len(wire)-20]

	_, _, err := c.Decode(truncated, 0)
	if !errors.Is(err, ErrNeedMoreData) {
		t.Fatalf("err = %v, want ErrNeedMoreData", err)
	}
}

func TestStatusCodecBadNSensors(t *testing.T) {
	c := StatusCodec{}
	wire := encodeStatusFrame(1, "ok", allActiveSensors(), StatusEffectiveSize)
	binary.LittleEndian.PutUint32(wire[12:16], 32)

	_, _, err := c.Decode(wire, 0)
	var de *DecodeError
	if !errors.As(err, &de) || de.Kind != BadHeaderValue || de.Field != "n_sensors" {
		t.Fatalf("err = %v, want BadHeaderValue on n_sensors", err)
	}
}

func TestStatusCodecLossyTextDecode(t *testing.T) {
	c := StatusCodec{}
	wire := encodeStatusFrame(1, "ok", allActiveSensors(), StatusEffectiveSize)
	// Corrupt a byte of the text region with an invalid UTF-8 lead byte; the
	// frame must still decode, with the bad byte replaced rather than the
	// frame rejected.
	wire[StatusHeaderSize+5] = 0xff

	got, _, err := c.Decode(wire, 0)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	frame := got.(*StatusFrame)
	if !utf8.ValidString(frame.Text) {
		t.Fatalf("Text %q is not valid UTF-8 after lossy decode", frame.Text)
	}
}

func TestStatusCodecHeaderValidAt(t *testing.T) {
	c := StatusCodec{}
	wire := encodeStatusFrame(1, "ok", allActiveSensors(), StatusEffectiveSize)
	if !c.HeaderValidAt(wire, 0) {
		t.Fatalf("HeaderValidAt should be true at a genuine header")
	}
	if c.HeaderValidAt(wire, 1) {
		t.Fatalf("HeaderValidAt should be false one byte into the frame")
	}
}
