package session

import (
	"errors"
	"net"
	"time"

	"github.com/kstaniek/meg-acq-server/internal/framing"
	"github.com/kstaniek/meg-acq-server/internal/logging"
	"github.com/kstaniek/meg-acq-server/internal/metrics"
)

// runReceiver is the session's sole receiver goroutine: it owns the socket
// read side and the accumulator exclusively. It reads until stop is closed
// or the consecutive error/empty-poll thresholds are crossed, at which
// point it transitions the session to Error and returns.
func (s *DataSession) runReceiver(conn *net.TCPConn, stop <-chan struct{}) {
	defer s.wg.Done()
	log := logging.WithComponent("data")

	acc := &accumulator{}
	buf := make([]byte, s.recvBufferSize)
	var consecutiveErrors, consecutiveEmpty int

	for {
		select {
		case <-stop:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(recvTimeout))
		n, err := conn.Read(buf)

		if n > 0 {
			consecutiveErrors, consecutiveEmpty = 0, 0
			metrics.AddBytesReceived(metrics.StreamData, n)
			acc.append(buf[:n])
			s.stats.recordBytes(n)
			if acc.truncateIfOversized() {
				metrics.IncSyncLoss(metrics.StreamData) // counters an overrun, not a decode failure, but both represent lost framing context
			}
			s.drainAndFanOut(acc)
		}

		if err == nil {
			continue
		}

		select {
		case <-stop:
			return
		default:
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			consecutiveEmpty++
			if consecutiveEmpty >= maxConsecutiveEmptyPolls {
				log.Warn("data_receiver_empty_poll_limit", "consecutive", consecutiveEmpty)
				metrics.IncTransportError("data")
				s.transition(Error)
				return
			}
			continue
		}

		consecutiveErrors++
		log.Warn("data_receiver_read_error", "error", err, "consecutive", consecutiveErrors)
		if errors.Is(err, net.ErrClosed) || consecutiveErrors > maxConsecutiveRecvErrors {
			metrics.IncTransportError("data")
			s.transition(Error)
			return
		}
	}
}

// drainAndFanOut decodes as many frames as the accumulator currently holds
// and routes each one to the RingStore and the session statistics.
func (s *DataSession) drainAndFanOut(acc *accumulator) {
	codec := s.codecSnapshot()
	frames, syncLosses := acc.drain(codec)
	for i := 0; i < syncLosses; i++ {
		metrics.IncSyncLoss(metrics.StreamData)
		s.stats.recordSyncLoss()
	}
	for _, f := range frames {
		df, ok := f.(*framing.DataFrame)
		if !ok {
			continue
		}
		metrics.IncFramesParsed(metrics.StreamData)
		s.stats.recordFrame()
		s.store.Ingest(df.Samples)
	}
	if len(frames) > 0 {
		metrics.SetFPS(s.stats.fps())
		metrics.SetThroughputMbps(s.stats.throughputMbps())
	}
}
