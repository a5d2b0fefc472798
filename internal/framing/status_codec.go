package framing

import (
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"github.com/kstaniek/meg-acq-server/internal/metrics"
)

// StatusCodec decodes the variable-size sensor-status frame: a 20-byte
// header, declared_payload_size bytes of payload (only the first
// StatusEffectiveSize of which carry status; the remainder is ignored), and
// a 12-byte footer.
type StatusCodec struct{}

func (c StatusCodec) FixedSize() (int, bool) { return 0, false }
func (c StatusCodec) StreamLabel() string    { return metrics.StreamStatus }

func (c StatusCodec) HeaderValidAt(buf []byte, offset int) bool {
	if offset < 0 || offset+StatusHeaderSize > len(buf) {
		return false
	}
	if string(buf[offset:offset+4]) != FrameStart {
		return false
	}
	nSensors := binary.LittleEndian.Uint32(buf[offset+12 : offset+16])
	effectiveSize := binary.LittleEndian.Uint32(buf[offset+16 : offset+20])
	return nSensors == StatusNSensors && effectiveSize == StatusEffectiveSize
}

// Decode validates and decodes one status frame at offset. See Codec.Decode.
// Because the frame size depends on the header's declared_payload_size
// field, Decode first confirms the header is present and validates its
// fields, then checks whether the full frame (header+payload+footer) has
// arrived before reading the payload or footer.
func (c StatusCodec) Decode(buf []byte, offset int) (any, int, error) {
	if offset < 0 || offset+StatusHeaderSize > len(buf) {
		return nil, 0, ErrNeedMoreData
	}
	hdr := buf[offset : offset+StatusHeaderSize]
	if string(hdr[0:4]) != FrameStart {
		return nil, 0, &DecodeError{Kind: BadStartMarker, Offset: offset}
	}

	wireFrameNumber := binary.LittleEndian.Uint32(hdr[4:8])
	declaredPayloadSize := binary.LittleEndian.Uint32(hdr[8:12])
	nSensors := binary.LittleEndian.Uint32(hdr[12:16])
	effectiveSize := binary.LittleEndian.Uint32(hdr[16:20])

	if nSensors != StatusNSensors {
		return nil, 0, &DecodeError{Kind: BadHeaderValue, Field: "n_sensors", Offset: offset}
	}
	if effectiveSize != StatusEffectiveSize {
		return nil, 0, &DecodeError{Kind: BadHeaderValue, Field: "effective_status_size", Offset: offset}
	}

	frameSize := StatusHeaderSize + int(declaredPayloadSize) + StatusFooterSize
	if offset+frameSize > len(buf) {
		return nil, 0, ErrNeedMoreData
	}

	payload := buf[offset+StatusHeaderSize : offset+StatusHeaderSize+int(declaredPayloadSize)]
	footer := buf[offset+StatusHeaderSize+int(declaredPayloadSize) : offset+frameSize]

	if string(footer[0:4]) != PayloadEnd {
		return nil, 0, &DecodeError{Kind: BadEndMarker, Which: "payload_end", Offset: offset}
	}
	if string(footer[8:12]) != FrameEnd {
		return nil, 0, &DecodeError{Kind: BadEndMarker, Which: "frame_end", Offset: offset}
	}
	if len(payload) < StatusEffectiveSize {
		return nil, 0, &DecodeError{Kind: PayloadLength, Offset: offset}
	}

	text := decodeLossyUTF8(payload[0:StatusTextSize])
	valueBytes := payload[StatusTextSize:StatusEffectiveSize]

	var sensors [StatusNSensors]SensorRecord
	// Partial records at the tail are dropped without failing the frame.
	for i := 0; i < StatusNSensors; i++ {
		off := i * statusRecordSize
		if off+statusRecordSize > len(valueBytes) {
			break
		}
		sensors[i] = SensorRecord{
			ACT: valueBytes[off],
			LLS: valueBytes[off+1],
			SLS: valueBytes[off+2],
			FLS: valueBytes[off+3],
		}
	}

	frame := &StatusFrame{
		Text:                text,
		Sensors:             sensors,
		WireFrameNumber:     wireFrameNumber,
		DeclaredPayloadSize: declaredPayloadSize,
		NSensors:            nSensors,
		EffectiveStatusSize: effectiveSize,
	}
	return frame, frameSize, nil
}

// decodeLossyUTF8 converts a fixed-size text field to a string, replacing
// any invalid byte sequence with U+FFFD rather than rejecting the frame; the
// sensor firmware pads this field with arbitrary bytes past the label's
// terminator.
func decodeLossyUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}
