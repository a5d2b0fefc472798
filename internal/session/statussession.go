package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kstaniek/meg-acq-server/internal/framing"
	"github.com/kstaniek/meg-acq-server/internal/logging"
	"github.com/kstaniek/meg-acq-server/internal/metrics"
)

// StatusSession owns a TCP socket to the sensor-status stream endpoint. It
// mirrors DataSession's lifecycle and receiver discipline but keeps only
// the most recently decoded SensorStatus rather than a RingStore, since the
// status stream carries periodic telemetry, not sample data.
type StatusSession struct {
	*lifecycle

	host string
	port int

	recvBufferSize int

	connMu sync.Mutex
	conn   *net.TCPConn
	stopCh chan struct{}
	wg     sync.WaitGroup

	stats *statsTracker

	latestMu sync.RWMutex
	latest   *framing.StatusFrame
}

// NewStatusSession returns a Disconnected StatusSession.
func NewStatusSession(recvBufferSize int) *StatusSession {
	if recvBufferSize <= 0 {
		recvBufferSize = defaultRecvBufferSize
	}
	return &StatusSession{
		lifecycle:      newLifecycle("status"),
		recvBufferSize: recvBufferSize,
		stats:          newStatsTracker(),
	}
}

// Connect dials host:port and spawns the receiver goroutine.
func (s *StatusSession) Connect(ctx context.Context, host string, port int) error {
	if st := s.State(); st != Disconnected {
		return fmt.Errorf("%w: connect requires Disconnected, have %s", ErrLifecycle, st)
	}
	s.transition(Connecting)
	conn, err := dialTCP(ctx, fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		metrics.IncTransportError("status")
		s.transition(Error)
		return err
	}

	s.host, s.port = host, port
	s.connMu.Lock()
	s.conn = conn
	s.stopCh = make(chan struct{})
	s.connMu.Unlock()

	s.transition(Connected)

	stop := s.stopCh
	s.wg.Add(1)
	go s.runReceiver(conn, stop)

	s.transition(Streaming)
	logging.WithComponent("status").Info("status_session_connected", "host", host, "port", port)
	return nil
}

// Disconnect mirrors DataSession.Disconnect.
func (s *StatusSession) Disconnect() error {
	s.connMu.Lock()
	conn := s.conn
	stop := s.stopCh
	s.conn = nil
	s.connMu.Unlock()

	if stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
	if conn != nil {
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(receiverJoinBudget):
		logging.WithComponent("status").Warn("status_session_join_timeout")
	}

	s.transition(Disconnected)
	return nil
}

// Status returns a snapshot of connection statistics.
func (s *StatusSession) Status() ConnectionStats {
	bytesReceived, framesParsed, syncLosses, lastDataTime := s.stats.snapshot()
	return ConnectionStats{
		Host:             s.host,
		Port:             s.port,
		State:            s.State().String(),
		BytesReceived:    bytesReceived,
		FramesParsed:     framesParsed,
		SyncLosses:       syncLosses,
		ParseSuccessRate: parseSuccessRate(framesParsed, syncLosses),
		LastDataTime:     lastDataTime,
		ConnectionStable: !lastDataTime.IsZero() && nowFn().Sub(lastDataTime) < connectionStableGap,
	}
}

// SensorStatus returns the most recently decoded status frame. ok is false
// when no frame has arrived yet: a not-ready result, not an error.
func (s *StatusSession) SensorStatus() (*framing.StatusFrame, bool, error) {
	if !s.State().isLive() {
		return nil, false, fmt.Errorf("%w: sensor_status requires a live session, have %s", ErrLifecycle, s.State())
	}
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	if s.latest == nil {
		return nil, false, nil
	}
	cp := *s.latest
	return &cp, true, nil
}

func (s *StatusSession) runReceiver(conn *net.TCPConn, stop <-chan struct{}) {
	defer s.wg.Done()
	log := logging.WithComponent("status")

	acc := &accumulator{}
	buf := make([]byte, s.recvBufferSize)
	var consecutiveErrors, consecutiveEmpty int
	codec := framing.StatusCodec{}

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
			metrics.AddBytesReceived(metrics.StreamStatus, n)
			acc.append(buf[:n])
			if acc.truncateIfOversized() {
				metrics.IncSyncLoss(metrics.StreamStatus)
			}
			frames, syncLosses := acc.drain(codec)
			for i := 0; i < syncLosses; i++ {
				metrics.IncSyncLoss(metrics.StreamStatus)
				s.stats.recordSyncLoss()
			}
			for _, f := range frames {
				sf, ok := f.(*framing.StatusFrame)
				if !ok {
					continue
				}
				metrics.IncFramesParsed(metrics.StreamStatus)
				s.stats.recordFrame()
				s.latestMu.Lock()
				s.latest = sf
				s.latestMu.Unlock()
			}
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
				log.Warn("status_receiver_empty_poll_limit", "consecutive", consecutiveEmpty)
				metrics.IncTransportError("status")
				s.transition(Error)
				return
			}
			continue
		}

		consecutiveErrors++
		log.Warn("status_receiver_read_error", "error", err, "consecutive", consecutiveErrors)
		if errors.Is(err, net.ErrClosed) || consecutiveErrors > maxConsecutiveRecvErrors {
			metrics.IncTransportError("status")
			s.transition(Error)
			return
		}
	}
}
