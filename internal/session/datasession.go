package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kstaniek/meg-acq-server/internal/framing"
	"github.com/kstaniek/meg-acq-server/internal/logging"
	"github.com/kstaniek/meg-acq-server/internal/metrics"
	"github.com/kstaniek/meg-acq-server/internal/ring"
)

const (
	defaultRecvBufferSize    = 8192
	maxConsecutiveRecvErrors = 10
	maxConsecutiveEmptyPolls = 50

	receiverJoinBudget  = 2 * time.Second
	processorJoinBudget = 1 * time.Second
)

// DataSession owns a TCP socket to the data stream endpoint, its receiver
// and processor goroutines, the resynchronizing accumulator, and the
// RingStore those goroutines feed.
type DataSession struct {
	*lifecycle

	host string
	port int

	codecMu sync.RWMutex
	codec   framing.DataCodec

	recvBufferSize int

	connMu sync.Mutex
	conn   *net.TCPConn
	stopCh chan struct{}
	wg     sync.WaitGroup

	store *ring.RingStore
	stats *statsTracker
}

// NewDataSession returns a Disconnected DataSession. recvBufferSize falls
// back to defaultRecvBufferSize when zero.
func NewDataSession(recvBufferSize int) *DataSession {
	if recvBufferSize <= 0 {
		recvBufferSize = defaultRecvBufferSize
	}
	return &DataSession{
		lifecycle:      newLifecycle("data"),
		recvBufferSize: recvBufferSize,
		store:          ring.NewRingStore(),
		stats:          newStatsTracker(),
		codec:          framing.NewDataCodec(framing.DefaultNChannelsOut, framing.DefaultSamplingRate),
	}
}

// RegisterDataCallback adds a callback invoked with every frame's sample
// rows as they are ingested.
func (s *DataSession) RegisterDataCallback(cb ring.DataCallback) {
	s.store.RegisterCallback(cb)
}

// Connect dials host:port, validates the wire against samplingRate and
// exposes nChannelsOut channels per frame, then spawns the receiver and
// processor goroutines. It transitions Disconnected -> Connecting ->
// Connected -> Streaming on success.
func (s *DataSession) Connect(ctx context.Context, host string, port int, samplingRate uint32, nChannelsOut int) error {
	if st := s.State(); st != Disconnected {
		return fmt.Errorf("%w: connect requires Disconnected, have %s", ErrLifecycle, st)
	}

	s.transition(Connecting)
	codec := framing.NewDataCodec(nChannelsOut, samplingRate)
	conn, err := dialTCP(ctx, fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		metrics.IncTransportError("data")
		s.transition(Error)
		return err
	}

	s.host, s.port = host, port
	s.codecMu.Lock()
	s.codec = codec
	s.codecMu.Unlock()

	s.connMu.Lock()
	s.conn = conn
	s.stopCh = make(chan struct{})
	s.connMu.Unlock()

	s.transition(Connected)

	stop := s.stopCh
	s.wg.Add(2)
	go s.runReceiver(conn, stop)
	go func() {
		defer s.wg.Done()
		s.store.RunProcessor(stop)
	}()

	s.transition(Streaming)
	logging.WithComponent("data").Info("data_session_connected", "host", host, "port", port)
	return nil
}

// Disconnect stops the receiver/processor goroutines, closes the socket,
// and transitions to Disconnected. Disconnected is terminal: a new
// DataSession is required to reconnect.
func (s *DataSession) Disconnect() error {
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
	case <-time.After(receiverJoinBudget + processorJoinBudget):
		logging.WithComponent("data").Warn("data_session_join_timeout")
	}

	s.transition(Disconnected)
	return nil
}

func (s *DataSession) codecSnapshot() framing.DataCodec {
	s.codecMu.RLock()
	defer s.codecMu.RUnlock()
	return s.codec
}

// Status returns a snapshot of connection statistics.
func (s *DataSession) Status() ConnectionStats {
	bytesReceived, framesParsed, syncLosses, lastDataTime := s.stats.snapshot()
	depths := s.store.QueueDepths()
	return ConnectionStats{
		Host:             s.host,
		Port:             s.port,
		State:            s.State().String(),
		BytesReceived:    bytesReceived,
		FramesParsed:     framesParsed,
		SyncLosses:       syncLosses,
		ParseSuccessRate: parseSuccessRate(framesParsed, syncLosses),
		FPS:              s.stats.fps(),
		ThroughputMbps:   s.stats.throughputMbps(),
		QueueDepths:      QueueDepths{Monitor: depths.Monitor, Data: depths.Data, Prediction: depths.Prediction},
		LastDataTime:     lastDataTime,
		ConnectionStable: !lastDataTime.IsZero() && nowFn().Sub(lastDataTime) < connectionStableGap,
	}
}

// MonitorData returns the monitor-queue snapshot, gated on the session
// being live.
func (s *DataSession) MonitorData(maxSamples int) ([][]float32, bool, error) {
	if !s.State().isLive() {
		return nil, false, fmt.Errorf("%w: monitor_data requires a live session, have %s", ErrLifecycle, s.State())
	}
	rows, ok := s.store.MonitorSnapshot(maxSamples)
	return rows, ok, nil
}

// LatestData returns the last n rows of the raw sample window.
func (s *DataSession) LatestData(n int) ([][]float32, bool, error) {
	if !s.State().isLive() {
		return nil, false, fmt.Errorf("%w: latest_data requires a live session, have %s", ErrLifecycle, s.State())
	}
	rows, ok := s.store.RecentSamples(n)
	return rows, ok, nil
}

// PredictionStart opens a prediction collection window.
func (s *DataSession) PredictionStart(duration time.Duration) error {
	if !s.State().isLive() {
		return fmt.Errorf("%w: prediction_start requires a live session, have %s", ErrLifecycle, s.State())
	}
	s.store.StartPrediction(duration)
	return nil
}

// PredictionData drains and returns the prediction window.
func (s *DataSession) PredictionData() ([][]float32, error) {
	if !s.State().isLive() {
		return nil, fmt.Errorf("%w: prediction_data requires a live session, have %s", ErrLifecycle, s.State())
	}
	return s.store.PredictionSnapshot(), nil
}

// ChannelActivity computes per-channel activity over the raw window.
func (s *DataSession) ChannelActivity() (ring.ChannelActivity, bool, error) {
	if !s.State().isLive() {
		return ring.ChannelActivity{}, false, fmt.Errorf("%w: channel_activity requires a live session, have %s", ErrLifecycle, s.State())
	}
	act, ok := s.store.ChannelActivity(100)
	return act, ok, nil
}
