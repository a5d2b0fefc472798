// Package ring implements the bounded in-memory buffers a StreamSession
// feeds: circular sample windows, policy-driven frame queues, and the
// per-channel activity view derived from them.
package ring

import "sync"

// SampleWindow is a fixed-capacity circular buffer of sample rows. Rows are
// appended in receive order; once full, the oldest row is overwritten.
type SampleWindow struct {
	mu   sync.RWMutex
	rows [][]float32
	cap  int
	next int
	size int
}

// NewSampleWindow returns an empty window holding at most capacity rows.
func NewSampleWindow(capacity int) *SampleWindow {
	return &SampleWindow{rows: make([][]float32, capacity), cap: capacity}
}

// Append adds one row, evicting the oldest row once the window is full.
func (w *SampleWindow) Append(row []float32) {
	cp := make([]float32, len(row))
	copy(cp, row)

	w.mu.Lock()
	w.rows[w.next] = cp
	w.next = (w.next + 1) % w.cap
	if w.size < w.cap {
		w.size++
	}
	w.mu.Unlock()
}

// AppendAll appends every row in a frame's sample batch, in order.
func (w *SampleWindow) AppendAll(rows [][]float32) {
	for _, row := range rows {
		w.Append(row)
	}
}

// Recent returns a detached copy of the last n rows in receive order, oldest
// first. ok is false when fewer than n rows have been collected yet.
func (w *SampleWindow) Recent(n int) (rows [][]float32, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if n <= 0 || n > w.size {
		return nil, false
	}
	out := make([][]float32, n)
	// Oldest of the requested n sits n slots behind the write cursor (the
	// cursor points at the slot the next row will take).
	start := (w.next - n + w.cap) % w.cap
	for i := 0; i < n; i++ {
		src := w.rows[(start+i)%w.cap]
		row := make([]float32, len(src))
		copy(row, src)
		out[i] = row
	}
	return out, true
}

// Len reports how many rows are currently held (capped at capacity).
func (w *SampleWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}
