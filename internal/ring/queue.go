package ring

import (
	"sync"
	"time"

	"github.com/kstaniek/meg-acq-server/internal/metrics"
)

// Policy selects how a BatchQueue sheds load once it reaches capacity.
type Policy int

const (
	// DropOldest discards the head of the queue to make room for a new
	// enqueue once the queue is at capacity.
	DropOldest Policy = iota
	// NewestWins evicts from the head once the queue reaches threshold
	// entries (before it is strictly full), trading completeness for
	// freshness of the most recent arrivals.
	NewestWins
)

// Batch is one frame's worth of sample rows, queued as a single unit so a
// drain can concatenate batches back into a flat row view.
type Batch = [][]float32

// BatchQueue is a bounded, multi-consumer-safe FIFO of Batch values with a
// configurable overflow policy. Exactly one goroutine enqueues (the session
// receiver); any number of goroutines may drain.
type BatchQueue struct {
	mu        sync.Mutex
	notEmpty  *sync.Cond
	buf       []Batch
	capacity  int
	threshold int // only meaningful for NewestWins
	policy    Policy
	label     string // metrics queue label
}

// NewBatchQueue returns an empty queue. threshold is ignored for DropOldest.
func NewBatchQueue(capacity int, policy Policy, threshold int, label string) *BatchQueue {
	q := &BatchQueue{
		buf:       make([]Batch, 0, capacity),
		capacity:  capacity,
		threshold: threshold,
		policy:    policy,
		label:     label,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a batch, applying the queue's overflow policy if needed. It
// never blocks.
func (q *BatchQueue) Enqueue(b Batch) {
	q.mu.Lock()
	switch q.policy {
	case NewestWins:
		for len(q.buf) >= q.threshold {
			q.buf = q.buf[1:]
			metrics.IncQueueDrop(q.label)
		}
	default: // DropOldest
		for len(q.buf) >= q.capacity {
			q.buf = q.buf[1:]
			metrics.IncQueueDrop(q.label)
		}
	}
	q.buf = append(q.buf, b)
	depth := len(q.buf)
	q.notEmpty.Signal()
	q.mu.Unlock()
	metrics.SetQueueDepth(q.label, depth)
}

// DrainAll removes and returns every queued batch, concatenated into a flat
// row slice in receive order. It never blocks.
func (q *BatchQueue) DrainAll() [][]float32 {
	q.mu.Lock()
	buf := q.buf
	q.buf = make([]Batch, 0, q.capacity)
	q.mu.Unlock()
	metrics.SetQueueDepth(q.label, 0)

	if len(buf) == 0 {
		return nil
	}
	total := 0
	for _, b := range buf {
		total += len(b)
	}
	out := make([][]float32, 0, total)
	for _, b := range buf {
		out = append(out, b...)
	}
	return out
}

// WaitDrain blocks until at least one batch is queued or timeout elapses,
// then drains and returns the concatenated rows. ok is false on timeout with
// nothing queued.
func (q *BatchQueue) WaitDrain(timeout time.Duration) (rows [][]float32, ok bool) {
	deadline := time.Now().Add(timeout)
	var timedOut bool

	timer := time.AfterFunc(timeout, func() {
		q.mu.Lock()
		timedOut = true
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	q.mu.Lock()
	for len(q.buf) == 0 && !timedOut && time.Now().Before(deadline) {
		q.notEmpty.Wait()
	}
	empty := len(q.buf) == 0
	q.mu.Unlock()

	if empty {
		return nil, false
	}
	return q.DrainAll(), true
}

// Len reports the number of batches currently queued.
func (q *BatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
