package ring

import (
	"testing"
	"time"
)

func row(n int, fill float32) []float32 {
	r := make([]float32, n)
	for i := range r {
		r[i] = fill
	}
	return r
}

func TestSampleWindowRecentUnderPopulated(t *testing.T) {
	w := NewSampleWindow(10)
	w.Append(row(4, 1))
	if _, ok := w.Recent(5); ok {
		t.Fatalf("Recent should report under-populated before 5 rows arrive")
	}
}

func TestSampleWindowWrapsAndReturnsOrder(t *testing.T) {
	w := NewSampleWindow(3)
	for i := 0; i < 5; i++ {
		w.Append(row(1, float32(i)))
	}
	got, ok := w.Recent(3)
	if !ok {
		t.Fatalf("expected populated window")
	}
	want := []float32{2, 3, 4}
	for i, r := range got {
		if r[0] != want[i] {
			t.Fatalf("row %d = %v, want %v", i, r[0], want[i])
		}
	}
}

func TestBatchQueueNewestWinsEvictsHead(t *testing.T) {
	q := NewBatchQueue(50, NewestWins, 3, "test_monitor")
	for i := 0; i < 5; i++ {
		q.Enqueue(Batch{row(1, float32(i))})
	}
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (threshold-bounded)", q.Len())
	}
	rows := q.DrainAll()
	if len(rows) != 3 || rows[0][0] != 2 {
		t.Fatalf("drained rows = %v, want newest 3 starting at value 2", rows)
	}
}

func TestBatchQueueDropOldestBoundsAtCapacity(t *testing.T) {
	q := NewBatchQueue(2, DropOldest, 0, "test_data")
	q.Enqueue(Batch{row(1, 1)})
	q.Enqueue(Batch{row(1, 2)})
	q.Enqueue(Batch{row(1, 3)})
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	rows := q.DrainAll()
	if rows[0][0] != 2 || rows[1][0] != 3 {
		t.Fatalf("drained rows = %v, want [2 3]", rows)
	}
}

func TestBatchQueueWaitDrainTimesOutEmpty(t *testing.T) {
	q := NewBatchQueue(10, DropOldest, 0, "test_empty")
	start := time.Now()
	_, ok := q.WaitDrain(30 * time.Millisecond)
	if ok {
		t.Fatalf("expected timeout on empty queue")
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatalf("WaitDrain returned too early")
	}
}

func TestBatchQueueWaitDrainWakesOnEnqueue(t *testing.T) {
	q := NewBatchQueue(10, DropOldest, 0, "test_wake")
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(Batch{row(1, 9)})
	}()
	rows, ok := q.WaitDrain(200 * time.Millisecond)
	if !ok || len(rows) != 1 || rows[0][0] != 9 {
		t.Fatalf("WaitDrain = %v, %v, want one row [9]", rows, ok)
	}
}

func TestPredictionQueueDeadlineGating(t *testing.T) {
	p := NewPredictionQueue(10, "test_prediction")
	p.Start(20 * time.Millisecond)
	p.Offer(Batch{row(1, 1)})
	if !p.Active() {
		t.Fatalf("expected active immediately after Start")
	}
	time.Sleep(30 * time.Millisecond)
	p.Offer(Batch{row(1, 2)}) // arrives after deadline, must not be enqueued
	rows := p.Snapshot()
	if len(rows) != 1 || rows[0][0] != 1 {
		t.Fatalf("rows = %v, want only the pre-deadline batch", rows)
	}
	if p.Active() {
		t.Fatalf("Snapshot must deactivate collection")
	}
}

func TestComputeChannelActivityFindsActiveChannels(t *testing.T) {
	var rows [][]float32
	for i := 0; i < 100; i++ {
		v := float32(i%2) * 100 // channels 0,2,3: flat, channel 1: high variance
		rows = append(rows, []float32{0, v, 0, 0})
	}
	act, ok := ComputeChannelActivity(rows)
	if !ok {
		t.Fatalf("expected populated result")
	}
	found := false
	for _, ch := range act.ActiveChannels {
		if ch == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("channel 1 should be active, got %v", act.ActiveChannels)
	}
}

func TestRingStoreIngestAndSnapshot(t *testing.T) {
	s := NewRingStore()
	var gotCallback [][]float32
	s.RegisterCallback(func(rows [][]float32) { gotCallback = rows })

	for i := 0; i < 3; i++ {
		s.Ingest([][]float32{row(2, float32(i))})
	}

	if _, ok := s.MonitorSnapshot(10); !ok {
		t.Fatalf("MonitorSnapshot should find queued rows")
	}
	if gotCallback == nil {
		t.Fatalf("registered callback was never invoked")
	}
	if _, ok := s.RecentSamples(3); !ok {
		t.Fatalf("RecentSamples(3) should be populated after 3 ingests")
	}
}

func TestRingStorePanickingCallbackIsolated(t *testing.T) {
	s := NewRingStore()
	var secondCalled bool
	s.RegisterCallback(func(rows [][]float32) { panic("boom") })
	s.RegisterCallback(func(rows [][]float32) { secondCalled = true })

	s.Ingest([][]float32{row(1, 1)})
	if !secondCalled {
		t.Fatalf("a panicking callback must not prevent later callbacks from running")
	}
}
