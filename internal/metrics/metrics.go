// Package metrics exposes Prometheus counters/gauges for the acquisition
// core plus a cheap atomic local mirror for interval structured logging,
// so a deployment without a Prometheus scraper still gets periodic numbers
// in the log stream.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/meg-acq-server/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series.
var (
	BytesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meg_bytes_received_total",
		Help: "Total bytes received per stream.",
	}, []string{"stream"})
	FramesParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meg_frames_parsed_total",
		Help: "Total frames successfully decoded per stream.",
	}, []string{"stream"})
	SyncLosses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meg_sync_losses_total",
		Help: "Total resynchronization events (failed decodes and accumulator truncations) per stream.",
	}, []string{"stream"})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meg_decode_errors_total",
		Help: "Total decode failures by kind.",
	}, []string{"stream", "kind"})
	QueueDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meg_queue_drops_total",
		Help: "Total frames dropped by a bounded queue under backpressure.",
	}, []string{"queue"})
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meg_queue_depth",
		Help: "Current depth of a bounded queue.",
	}, []string{"queue"})
	ObserverErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meg_observer_errors_total",
		Help: "Total observer/callback panics or errors swallowed during fan-out.",
	}, []string{"kind"})
	FPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meg_data_fps",
		Help: "Current frames-per-second of the data stream (reciprocal of mean inter-frame interval).",
	})
	ThroughputMbps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meg_data_throughput_mbps",
		Help: "Rolling 60s throughput of the data stream in Mbps.",
	})
	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meg_session_state",
		Help: "Current lifecycle state (1 for the active state, 0 otherwise), per session and state name.",
	}, []string{"session", "state"})
	CommandsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meg_commands_sent_total",
		Help: "Total commands successfully sent over the commander channel.",
	})
	CommandErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meg_command_errors_total",
		Help: "Total command send failures.",
	})
	TransportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meg_transport_errors_total",
		Help: "Total transport-level errors (connect/read/write failures) per session.",
	}, []string{"session"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Stream label constants (stable label values to bound cardinality).
const (
	StreamData   = "data"
	StreamStatus = "status"
)

// Decode error kind labels.
const (
	ErrShortBuffer    = "short_buffer"
	ErrBadStartMarker = "bad_start_marker"
	ErrBadHeaderValue = "bad_header_value"
	ErrBadEndMarker   = "bad_end_marker"
	ErrPayloadLength  = "payload_length"
)

// Queue name labels.
const (
	QueueMonitor    = "monitor"
	QueueData       = "data"
	QueuePrediction = "prediction"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready on their own listener.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters, cheap to read without touching Prometheus internals.
var (
	localBytesData      uint64
	localBytesStatus    uint64
	localFramesData     uint64
	localFramesStatus   uint64
	localSyncLossData   uint64
	localSyncLossStatus uint64
	localDecodeErrors   uint64
	localQueueDrops     uint64
)

// Snapshot is a cheap copy of local counters, used for periodic log lines.
type Snapshot struct {
	BytesData      uint64
	BytesStatus    uint64
	FramesData     uint64
	FramesStatus   uint64
	SyncLossData   uint64
	SyncLossStatus uint64
	DecodeErrors   uint64
	QueueDrops     uint64
}

func Snap() Snapshot {
	return Snapshot{
		BytesData:      atomic.LoadUint64(&localBytesData),
		BytesStatus:    atomic.LoadUint64(&localBytesStatus),
		FramesData:     atomic.LoadUint64(&localFramesData),
		FramesStatus:   atomic.LoadUint64(&localFramesStatus),
		SyncLossData:   atomic.LoadUint64(&localSyncLossData),
		SyncLossStatus: atomic.LoadUint64(&localSyncLossStatus),
		DecodeErrors:   atomic.LoadUint64(&localDecodeErrors),
		QueueDrops:     atomic.LoadUint64(&localQueueDrops),
	}
}

// AddBytesReceived records bytes read off the wire for a stream.
func AddBytesReceived(stream string, n int) {
	BytesReceived.WithLabelValues(stream).Add(float64(n))
	switch stream {
	case StreamData:
		atomic.AddUint64(&localBytesData, uint64(n))
	case StreamStatus:
		atomic.AddUint64(&localBytesStatus, uint64(n))
	}
}

// IncFramesParsed records one successfully decoded frame for a stream.
func IncFramesParsed(stream string) {
	FramesParsed.WithLabelValues(stream).Inc()
	switch stream {
	case StreamData:
		atomic.AddUint64(&localFramesData, 1)
	case StreamStatus:
		atomic.AddUint64(&localFramesStatus, 1)
	}
}

// IncSyncLoss records one resynchronization event for a stream.
func IncSyncLoss(stream string) {
	SyncLosses.WithLabelValues(stream).Inc()
	switch stream {
	case StreamData:
		atomic.AddUint64(&localSyncLossData, 1)
	case StreamStatus:
		atomic.AddUint64(&localSyncLossStatus, 1)
	}
}

// IncDecodeError records one decode failure of the given kind.
func IncDecodeError(stream, kind string) {
	DecodeErrors.WithLabelValues(stream, kind).Inc()
	atomic.AddUint64(&localDecodeErrors, 1)
}

// IncQueueDrop records one queue-overflow drop.
func IncQueueDrop(queue string) {
	QueueDrops.WithLabelValues(queue).Inc()
	atomic.AddUint64(&localQueueDrops, 1)
}

// SetQueueDepth publishes the current depth of a bounded queue.
func SetQueueDepth(queue string, depth int) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// IncObserverError records one isolated observer/callback failure.
func IncObserverError(kind string) { ObserverErrors.WithLabelValues(kind).Inc() }

// SetFPS publishes the current data-stream frame rate.
func SetFPS(v float64) { FPS.Set(v) }

// SetThroughputMbps publishes the rolling data-stream throughput.
func SetThroughputMbps(v float64) { ThroughputMbps.Set(v) }

// SetSessionState flips the gauge for the active state to 1 and the rest of
// the known states to 0, for a given session name ("data", "status").
func SetSessionState(session string, active string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == active {
			v = 1.0
		}
		SessionState.WithLabelValues(session, s).Set(v)
	}
}

// IncCommandSent / IncCommandError record commander outcomes.
func IncCommandSent()  { CommandsSent.Inc() }
func IncCommandError() { CommandErrors.Inc() }

// IncTransportError records one connect/read/write failure for a session.
func IncTransportError(session string) { TransportErrors.WithLabelValues(session).Inc() }

// InitBuildInfo sets the build info gauge (call once at startup) and
// pre-registers common decode-error label series so the first error doesn't
// pay registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, stream := range []string{StreamData, StreamStatus} {
		for _, kind := range []string{ErrShortBuffer, ErrBadStartMarker, ErrBadHeaderValue, ErrBadEndMarker, ErrPayloadLength} {
			DecodeErrors.WithLabelValues(stream, kind).Add(0)
		}
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function, if any.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
