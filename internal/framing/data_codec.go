package framing

import (
	"encoding/binary"
	"math"

	"github.com/kstaniek/meg-acq-server/internal/metrics"
)

// DataCodec decodes/encodes the fixed 16,416-byte sensor-sample frame. Its
// only policy knobs are NChannelsOut, the number of leading channels exposed
// to consumers, and SamplingRate, the header value it requires. Both are
// set per connect.
type DataCodec struct {
	NChannelsOut int
	SamplingRate uint32
}

// NewDataCodec returns a DataCodec exposing the given channel count (capped
// at NChannelsRaw; zero or negative falls back to DefaultNChannelsOut) and
// validating the given sampling rate (zero falls back to
// DefaultSamplingRate).
func NewDataCodec(nChannelsOut int, samplingRate uint32) DataCodec {
	if nChannelsOut <= 0 {
		nChannelsOut = DefaultNChannelsOut
	}
	if nChannelsOut > NChannelsRaw {
		nChannelsOut = NChannelsRaw
	}
	if samplingRate == 0 {
		samplingRate = DefaultSamplingRate
	}
	return DataCodec{NChannelsOut: nChannelsOut, SamplingRate: samplingRate}
}

func (c DataCodec) FixedSize() (int, bool) { return DataFrameSize, true }
func (c DataCodec) StreamLabel() string    { return metrics.StreamData }

// HeaderValidAt reports whether buf[offset:] begins with a start marker
// followed by header fields that all satisfy the fixed equalities. It
// tolerates a short buffer (not enough bytes yet to tell) by returning false
// rather than panicking, so resync scanning can run ahead of the fill level.
func (c DataCodec) HeaderValidAt(buf []byte, offset int) bool {
	if offset < 0 || offset+DataHeaderSize > len(buf) {
		return false
	}
	if string(buf[offset:offset+4]) != FrameStart {
		return false
	}
	payloadSize := binary.LittleEndian.Uint32(buf[offset+8 : offset+12])
	nSensors := binary.LittleEndian.Uint32(buf[offset+12 : offset+16])
	samplingRate := binary.LittleEndian.Uint32(buf[offset+16 : offset+20])
	return payloadSize == DataPayloadSize && nSensors == DefaultNSensors && samplingRate == c.SamplingRate
}

// Decode validates and decodes one data frame at offset. See Codec.Decode.
func (c DataCodec) Decode(buf []byte, offset int) (any, int, error) {
	if offset < 0 || offset+DataFrameSize > len(buf) {
		return nil, 0, ErrNeedMoreData
	}
	fr := buf[offset : offset+DataFrameSize]

	if string(fr[0:4]) != FrameStart {
		return nil, 0, &DecodeError{Kind: BadStartMarker, Offset: offset}
	}

	wireFrameNumber := binary.LittleEndian.Uint32(fr[4:8])
	payloadSize := binary.LittleEndian.Uint32(fr[8:12])
	nSensors := binary.LittleEndian.Uint32(fr[12:16])
	samplingRate := binary.LittleEndian.Uint32(fr[16:20])

	if payloadSize != DataPayloadSize {
		return nil, 0, &DecodeError{Kind: BadHeaderValue, Field: "payload_size", Offset: offset}
	}
	if nSensors != DefaultNSensors {
		return nil, 0, &DecodeError{Kind: BadHeaderValue, Field: "n_sensors", Offset: offset}
	}
	if samplingRate != c.SamplingRate {
		return nil, 0, &DecodeError{Kind: BadHeaderValue, Field: "sampling_rate", Offset: offset}
	}

	payload := fr[DataHeaderSize : DataHeaderSize+DataPayloadSize]
	if len(payload) != DataPayloadSize {
		return nil, 0, &DecodeError{Kind: PayloadLength, Offset: offset}
	}

	footer := fr[DataHeaderSize+DataPayloadSize:]
	if string(footer[0:4]) != PayloadEnd {
		return nil, 0, &DecodeError{Kind: BadEndMarker, Which: "payload_end", Offset: offset}
	}
	// footer[4:8] is the reserved checksum; it is carried but not verified.
	if string(footer[8:12]) != FrameEnd {
		return nil, 0, &DecodeError{Kind: BadEndMarker, Which: "frame_end", Offset: offset}
	}

	nChannelsOut := c.NChannelsOut
	if nChannelsOut <= 0 {
		nChannelsOut = DefaultNChannelsOut
	}
	samples := make([][]float32, NSamplesPerFrame)
	floats := make([]float32, NFloatsPerFrame)
	for i := 0; i < NFloatsPerFrame; i++ {
		bits := binary.LittleEndian.Uint32(payload[i*4 : i*4+4])
		floats[i] = math.Float32frombits(bits)
	}
	for s := 0; s < NSamplesPerFrame; s++ {
		row := make([]float32, nChannelsOut)
		copy(row, floats[s*NChannelsRaw:s*NChannelsRaw+nChannelsOut])
		samples[s] = row
	}

	frame := &DataFrame{
		Samples:         samples,
		WireFrameNumber: wireFrameNumber,
		Quality:         QualityScore(samples),
	}
	return frame, DataFrameSize, nil
}

// Encode packs a frame's raw 16x256 float payload (not the truncated
// consumer view) into the wire representation, for tests and the loopback
// fixtures exercised by the resynchronization suite.
func (c DataCodec) Encode(frameNumber uint32, raw [NSamplesPerFrame][NChannelsRaw]float32, checksum uint32) []byte {
	buf := make([]byte, DataFrameSize)
	copy(buf[0:4], FrameStart)
	binary.LittleEndian.PutUint32(buf[4:8], frameNumber)
	binary.LittleEndian.PutUint32(buf[8:12], DataPayloadSize)
	binary.LittleEndian.PutUint32(buf[12:16], DefaultNSensors)
	binary.LittleEndian.PutUint32(buf[16:20], c.SamplingRate)
	pos := DataHeaderSize
	for s := 0; s < NSamplesPerFrame; s++ {
		for ch := 0; ch < NChannelsRaw; ch++ {
			binary.LittleEndian.PutUint32(buf[pos:pos+4], math.Float32bits(raw[s][ch]))
			pos += 4
		}
	}
	copy(buf[pos:pos+4], PayloadEnd)
	binary.LittleEndian.PutUint32(buf[pos+4:pos+8], checksum)
	copy(buf[pos+8:pos+12], FrameEnd)
	return buf
}
