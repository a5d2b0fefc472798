package ring

import (
	"sync"
	"time"
)

// PredictionQueue is a BatchQueue that only accepts enqueues while an
// operator-initiated collection window is active, and auto-deactivates once
// its deadline has passed.
type PredictionQueue struct {
	q *BatchQueue

	mu       sync.Mutex
	active   bool
	deadline time.Time
}

// NewPredictionQueue returns an inactive prediction queue of the given
// capacity.
func NewPredictionQueue(capacity int, label string) *PredictionQueue {
	return &PredictionQueue{q: NewBatchQueue(capacity, DropOldest, 0, label)}
}

// Start clears any queued batches and activates collection for duration.
func (p *PredictionQueue) Start(duration time.Duration) {
	p.q.DrainAll()
	p.mu.Lock()
	p.active = true
	p.deadline = time.Now().Add(duration)
	p.mu.Unlock()
}

// Offer enqueues a batch if collection is currently active and the deadline
// has not yet passed; it auto-deactivates collection when the deadline has
// elapsed. A frame that arrives at the deadline instant is still enqueued;
// any frame arriving after it is not.
func (p *PredictionQueue) Offer(b Batch) {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	if time.Now().After(p.deadline) {
		p.active = false
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.q.Enqueue(b)
}

// Active reports whether a collection window is currently open.
func (p *PredictionQueue) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Snapshot drains the queue and deactivates collection unconditionally.
func (p *PredictionQueue) Snapshot() [][]float32 {
	rows := p.q.DrainAll()
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
	return rows
}

// Len reports the number of batches currently queued.
func (p *PredictionQueue) Len() int { return p.q.Len() }
