package session

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kstaniek/meg-acq-server/internal/framing"
)

// minTestBytes is three frames' worth, the minimum a useful probe reads.
const minTestBytes = 3 * framing.DataFrameSize

// TestResult is the outcome of a transient connection test.
type TestResult struct {
	FramesFound      int
	ThroughputMbps   float64
	ConnectionTimeMs int64
}

// TestDataConnection opens a short-lived connection to host:port, reads at
// least three frames' worth of bytes (or until timeout), decodes as many
// frames as it can, and closes. It never touches a persistent DataSession.
func TestDataConnection(ctx context.Context, host string, port int, timeout time.Duration) (TestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialStart := nowFn()
	conn, err := dialTCP(ctx, fmt.Sprintf("%s:%d", host, port))
	connectElapsed := nowFn().Sub(dialStart)
	if err != nil {
		return TestResult{}, err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = nowFn().Add(timeout)
	}

	acc := &accumulator{}
	buf := make([]byte, defaultRecvBufferSize)
	bytesRead := 0
	readStart := nowFn()

	for acc.len() < minTestBytes && nowFn().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		n, readErr := conn.Read(buf)
		if n > 0 {
			acc.append(buf[:n])
			bytesRead += n
		}
		if readErr != nil {
			if netErr, ok := readErr.(net.Error); ok && netErr.Timeout() {
				break
			}
			if n == 0 {
				break
			}
		}
	}
	elapsed := nowFn().Sub(readStart)

	codec := framing.NewDataCodec(framing.DefaultNChannelsOut, framing.DefaultSamplingRate)
	var totalFrames int
	for {
		frames, _ := acc.drain(codec)
		totalFrames += len(frames)
		if len(frames) == 0 {
			break
		}
	}

	var throughput float64
	if elapsed.Seconds() > 0 {
		throughput = (float64(bytesRead) * 8) / (elapsed.Seconds() * 1e6)
	}

	return TestResult{
		FramesFound:      totalFrames,
		ThroughputMbps:   throughput,
		ConnectionTimeMs: connectElapsed.Milliseconds(),
	}, nil
}
