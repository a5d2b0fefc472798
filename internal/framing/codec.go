package framing

// Codec decodes one frame from a byte window at a given offset. It never
// advances any external cursor and never mutates buf; the caller (a
// StreamSession's accumulator) owns cursor bookkeeping.
//
// Decode returns (frame, consumed, nil) on success, (nil, 0, ErrNeedMoreData)
// when buf does not yet hold a complete frame at offset, or (nil, 0, *DecodeError)
// when the bytes at offset are not a valid frame.
type Codec interface {
	Decode(buf []byte, offset int) (frame any, consumed int, err error)

	// HeaderValidAt reports whether the bytes at offset look like the start
	// of a valid frame: the start marker plus every fixed header equality
	// this codec enforces. It does not require the payload or footer to be
	// present yet, which lets resynchronization scan ahead of the
	// accumulator's current fill level.
	HeaderValidAt(buf []byte, offset int) bool

	// FixedSize reports the frame size when it is constant (DataCodec), or
	// (0, false) when frames vary in size (StatusCodec).
	FixedSize() (size int, fixed bool)

	// StreamLabel names the metrics/log stream this codec belongs to.
	StreamLabel() string
}

// Compile-time assertions that the concrete codecs satisfy Codec.
var (
	_ Codec = DataCodec{}
	_ Codec = StatusCodec{}
)
