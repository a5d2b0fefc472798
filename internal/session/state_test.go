package session

import "testing"

func TestLifecycleTransitionNotifiesObservers(t *testing.T) {
	l := newLifecycle("test")
	var got []string
	l.RegisterObserver(StatusObserverFunc(func(from, to State) {
		got = append(got, from.String()+"->"+to.String())
	}))

	l.transition(Connecting)
	l.transition(Connected)
	l.transition(Connecting) // no-op to same-state check below doesn't apply; Connected != Connecting

	if len(got) != 3 {
		t.Fatalf("got %d transitions, want 3: %v", len(got), got)
	}
	if got[0] != "disconnected->connecting" {
		t.Fatalf("got[0] = %q", got[0])
	}
}

func TestLifecycleTransitionToSameStateIsNoOp(t *testing.T) {
	l := newLifecycle("test")
	var count int
	l.RegisterObserver(StatusObserverFunc(func(from, to State) { count++ }))

	l.transition(Connecting)
	l.transition(Connecting)
	if count != 1 {
		t.Fatalf("count = %d, want 1 (repeat transition to same state must be a no-op)", count)
	}
}

func TestLifecycleObserverPanicIsIsolated(t *testing.T) {
	l := newLifecycle("test")
	var secondCalled bool
	l.RegisterObserver(StatusObserverFunc(func(from, to State) { panic("boom") }))
	l.RegisterObserver(StatusObserverFunc(func(from, to State) { secondCalled = true }))

	l.transition(Connecting)
	if !secondCalled {
		t.Fatalf("a panicking observer must not prevent later observers from running")
	}
}

func TestStateIsLive(t *testing.T) {
	cases := map[State]bool{
		Disconnected: false,
		Connecting:   true,
		Connected:    true,
		Streaming:    true,
		Error:        false,
	}
	for s, want := range cases {
		if got := s.isLive(); got != want {
			t.Fatalf("%v.isLive() = %v, want %v", s, got, want)
		}
	}
}
