package session

import (
	"errors"

	"github.com/kstaniek/meg-acq-server/internal/framing"
)

const (
	accumulatorTruncateAt = 100 * 1024
	accumulatorKeepTail   = 50 * 1024
	maxFramesPerDrain     = 10
)

// accumulator is the resynchronizing byte buffer a receiver goroutine owns
// exclusively. It is never accessed concurrently; all synchronization
// happens at the session level around the derived snapshots it feeds.
type accumulator struct {
	buf []byte
	seq uint64
}

// nextSeq returns the next monotone frame sequence number, assigned at
// parse time. It is independent of the wire's informational frame_number.
func (a *accumulator) nextSeq() uint64 {
	a.seq++
	return a.seq
}

func (a *accumulator) append(b []byte) {
	a.buf = append(a.buf, b...)
}

// truncateIfOversized right-truncates the buffer to its last
// accumulatorKeepTail bytes once it exceeds accumulatorTruncateAt. The tail
// is preserved since the next valid start marker can only be found ahead of
// the discarded prefix.
func (a *accumulator) truncateIfOversized() bool {
	if len(a.buf) <= accumulatorTruncateAt {
		return false
	}
	tail := a.buf[len(a.buf)-accumulatorKeepTail:]
	a.buf = append([]byte(nil), tail...)
	return true
}

// drain decodes as many frames as are available, up to maxFramesPerDrain,
// advancing the accumulator past each one. It returns the decoded frames in
// receive order and the number of resynchronization events encountered.
func (a *accumulator) drain(codec framing.Codec) (frames []any, syncLosses int) {
	for len(frames) < maxFramesPerDrain {
		if len(a.buf) == 0 {
			return frames, syncLosses
		}
		frame, consumed, err := codec.Decode(a.buf, 0)
		if err == nil {
			stampFrame(frame, a.nextSeq())
			frames = append(frames, frame)
			a.buf = a.buf[consumed:]
			continue
		}
		if errors.Is(err, framing.ErrNeedMoreData) {
			return frames, syncLosses
		}

		var de *framing.DecodeError
		if errors.As(err, &de) {
			de.RecordMetric(codec.StreamLabel())
		}
		syncLosses++

		if p := a.findResyncPoint(codec); p > 0 {
			a.buf = a.buf[p:]
			continue
		}
		// No valid header found anywhere in the current buffer; stop
		// draining until more bytes arrive rather than re-testing the same
		// prefix in a tight loop.
		return frames, syncLosses
	}
	return frames, syncLosses
}

// findResyncPoint performs a validated resynchronization scan: starting
// at offset 1 (offset 0 already failed), it looks for a position whose
// header satisfies every fixed equality the codec enforces. A naive byte
// scan for the start marker alone is insufficient because the marker
// recurs inside frame payloads and footers.
func (a *accumulator) findResyncPoint(codec framing.Codec) int {
	for off := 1; off < len(a.buf); off++ {
		if codec.HeaderValidAt(a.buf, off) {
			return off
		}
	}
	return -1
}

func (a *accumulator) len() int { return len(a.buf) }

// stampFrame assigns the parse-time sequence number and wall-clock
// timestamp to a freshly decoded frame. No clock is recovered from the
// wire.
func stampFrame(frame any, seq uint64) {
	now := nowFn()
	switch f := frame.(type) {
	case *framing.DataFrame:
		f.SeqNum = seq
		f.Timestamp = now
	case *framing.StatusFrame:
		f.SeqNum = seq
		f.Timestamp = now
	}
}
