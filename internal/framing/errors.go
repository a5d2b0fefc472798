package framing

import (
	"errors"
	"fmt"

	"github.com/kstaniek/meg-acq-server/internal/metrics"
)

// ErrNeedMoreData signals that the buffer does not yet hold a complete frame
// at the given offset. It is not a decode failure: the caller should wait for
// more bytes rather than treat it as a sync loss.
var ErrNeedMoreData = errors.New("framing: need more data")

// DecodeErrKind classifies why Decode rejected a frame.
type DecodeErrKind int

const (
	ShortBuffer DecodeErrKind = iota
	BadStartMarker
	BadHeaderValue
	BadEndMarker
	PayloadLength
)

func (k DecodeErrKind) metricsLabel() string {
	switch k {
	case ShortBuffer:
		return metrics.ErrShortBuffer
	case BadStartMarker:
		return metrics.ErrBadStartMarker
	case BadHeaderValue:
		return metrics.ErrBadHeaderValue
	case BadEndMarker:
		return metrics.ErrBadEndMarker
	case PayloadLength:
		return metrics.ErrPayloadLength
	default:
		return "unknown"
	}
}

// DecodeError reports a rejected frame: its kind, the offending field/marker
// name (when applicable), and the buffer offset at which decoding started.
type DecodeError struct {
	Kind   DecodeErrKind
	Field  string // set for BadHeaderValue
	Which  string // set for BadEndMarker ("payload_end" | "frame_end")
	Offset int
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case ShortBuffer:
		return fmt.Sprintf("framing: short buffer at offset %d", e.Offset)
	case BadStartMarker:
		return fmt.Sprintf("framing: bad start marker at offset %d", e.Offset)
	case BadHeaderValue:
		return fmt.Sprintf("framing: bad header value %q at offset %d", e.Field, e.Offset)
	case BadEndMarker:
		return fmt.Sprintf("framing: bad end marker %q at offset %d", e.Which, e.Offset)
	case PayloadLength:
		return fmt.Sprintf("framing: payload length mismatch at offset %d", e.Offset)
	default:
		return fmt.Sprintf("framing: decode error at offset %d", e.Offset)
	}
}

// RecordMetric increments the decode-error counter for this failure on the
// given stream label (metrics.StreamData or metrics.StreamStatus).
func (e *DecodeError) RecordMetric(stream string) {
	metrics.IncDecodeError(stream, e.Kind.metricsLabel())
}
