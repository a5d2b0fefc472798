package ring

import (
	"sync"
	"time"

	"github.com/kstaniek/meg-acq-server/internal/logging"
	"github.com/kstaniek/meg-acq-server/internal/metrics"
)

const (
	RawWindowCapacity       = 10000
	ProcessedWindowCapacity = 5000
	MonitorQueueCapacity    = 50
	MonitorQueueThreshold   = 45
	DataQueueCapacity       = 1000
	PredictionQueueCapacity = 200

	monitorWaitTimeout = 100 * time.Millisecond
)

// DataCallback observes every frame's sample batch as it is ingested. A
// panic in one callback is recovered and never breaks delivery to the rest.
// Callbacks run one after another on the ingesting goroutine, in
// registration order, so a slow callback delays the remaining callbacks and
// the receiver.
type DataCallback func(rows [][]float32)

// RingStore holds the bounded buffers a StreamSession feeds from its
// receiver goroutine, plus the secondary processed window a processor
// goroutine fills by draining the main data queue. It is owned by exactly
// one session; readers only ever see detached snapshots.
type RingStore struct {
	raw        *SampleWindow
	processed  *SampleWindow
	monitor    *BatchQueue
	data       *BatchQueue
	prediction *PredictionQueue

	cbMu      sync.RWMutex
	callbacks []DataCallback
}

// NewRingStore returns an empty store sized per the fixed capacities above.
func NewRingStore() *RingStore {
	return &RingStore{
		raw:        NewSampleWindow(RawWindowCapacity),
		processed:  NewSampleWindow(ProcessedWindowCapacity),
		monitor:    NewBatchQueue(MonitorQueueCapacity, NewestWins, MonitorQueueThreshold, metrics.QueueMonitor),
		data:       NewBatchQueue(DataQueueCapacity, DropOldest, 0, metrics.QueueData),
		prediction: NewPredictionQueue(PredictionQueueCapacity, metrics.QueuePrediction),
	}
}

// RegisterCallback adds a data callback invoked on every ingested frame.
func (s *RingStore) RegisterCallback(cb DataCallback) {
	s.cbMu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.cbMu.Unlock()
}

// Ingest fans a parsed frame's sample rows out to the raw window, the
// monitor queue, the main data queue, the prediction queue (if active), and
// every registered callback. Called only from the session's receiver
// goroutine.
func (s *RingStore) Ingest(rows [][]float32) {
	s.raw.AppendAll(rows)
	s.monitor.Enqueue(rows)
	s.data.Enqueue(rows)
	s.prediction.Offer(rows)
	s.notifyCallbacks(rows)
}

// notifyCallbacks runs each registered callback isolated from the others:
// a panic in one is recovered and counted, never propagated or allowed to
// skip the remaining callbacks.
func (s *RingStore) notifyCallbacks(rows [][]float32) {
	s.cbMu.RLock()
	cbs := make([]DataCallback, len(s.callbacks))
	copy(cbs, s.callbacks)
	s.cbMu.RUnlock()

	for _, cb := range cbs {
		s.invokeSafely(cb, rows)
	}
}

func (s *RingStore) invokeSafely(cb DataCallback, rows [][]float32) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncObserverError("data_callback")
			logging.L().Error("data_callback_panic", "recovered", r)
		}
	}()
	cb(rows)
}

// RunProcessor drains the main data queue into the processed window until
// stop is closed. It is meant to run as the session's sole processor
// goroutine.
func (s *RingStore) RunProcessor(stop <-chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rows := s.data.DrainAll()
			if len(rows) > 0 {
				s.processed.AppendAll(rows)
			}
		}
	}
}

// MonitorSnapshot drains the monitor queue, waiting up to 100ms for the
// first batch to arrive. ok is false if nothing arrived in time; otherwise
// the result is truncated to maxSamples rows (newest by queue order).
func (s *RingStore) MonitorSnapshot(maxSamples int) (rows [][]float32, ok bool) {
	rows, ok = s.monitor.WaitDrain(monitorWaitTimeout)
	if !ok {
		return nil, false
	}
	if maxSamples > 0 && len(rows) > maxSamples {
		rows = rows[len(rows)-maxSamples:]
	}
	return rows, true
}

// RecentSamples returns the last n rows of the raw window; ok is false if
// fewer than n rows have been collected.
func (s *RingStore) RecentSamples(n int) ([][]float32, bool) {
	return s.raw.Recent(n)
}

// StartPrediction opens a prediction collection window of the given
// duration, clearing any previously queued batches.
func (s *RingStore) StartPrediction(duration time.Duration) {
	s.prediction.Start(duration)
}

// PredictionSnapshot drains and returns the prediction queue, deactivating
// collection unconditionally.
func (s *RingStore) PredictionSnapshot() [][]float32 {
	return s.prediction.Snapshot()
}

// PredictionActive reports whether a prediction collection window is open.
func (s *RingStore) PredictionActive() bool {
	return s.prediction.Active()
}

// ChannelActivity computes per-channel variance/mean/std and the active
// channel set over the last `recent` rows of the raw window. ok is false if
// the window is under-populated.
func (s *RingStore) ChannelActivity(recent int) (ChannelActivity, bool) {
	rows, ok := s.raw.Recent(recent)
	if !ok {
		return ChannelActivity{}, false
	}
	return ComputeChannelActivity(rows)
}

// QueueDepths reports the current length of each bounded queue, used for
// ConnectionStats.
type QueueDepths struct {
	Monitor    int
	Data       int
	Prediction int
}

func (s *RingStore) QueueDepths() QueueDepths {
	return QueueDepths{
		Monitor:    s.monitor.Len(),
		Data:       s.data.Len(),
		Prediction: s.prediction.Len(),
	}
}
