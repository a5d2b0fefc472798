// Package session implements the StreamSession lifecycle: a TCP socket to
// one MEG instrument endpoint, its receiving goroutine, a resynchronizing
// byte accumulator, and the Disconnected/Connecting/Connected/Streaming/Error
// state machine that gates every consumer-facing operation.
package session

import (
	"sync"

	"github.com/kstaniek/meg-acq-server/internal/logging"
	"github.com/kstaniek/meg-acq-server/internal/metrics"
)

// State is one node of the session lifecycle state machine.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Streaming
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Streaming:
		return "streaming"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// AllStates lists every state name, for metrics gauge initialization.
var AllStates = []string{
	Disconnected.String(), Connecting.String(), Connected.String(),
	Streaming.String(), Error.String(),
}

// StatusObserver is notified of every lifecycle transition. Observe must
// return promptly; it runs on the goroutine driving the transition.
type StatusObserver interface {
	Observe(from, to State)
}

// StatusObserverFunc adapts a function to StatusObserver.
type StatusObserverFunc func(from, to State)

func (f StatusObserverFunc) Observe(from, to State) { f(from, to) }

// lifecycle is embedded by DataSession and StatusSession; it owns the state
// field and the observer fan-out so both sessions share one implementation.
type lifecycle struct {
	name string // "data" or "status", for metrics/log scoping

	mu    sync.RWMutex
	state State

	obsMu     sync.RWMutex
	observers []StatusObserver
}

func newLifecycle(name string) *lifecycle {
	l := &lifecycle{name: name, state: Disconnected}
	metrics.SetSessionState(name, Disconnected.String(), AllStates)
	return l
}

func (l *lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// transition moves to 'to' and notifies observers, unless already there.
func (l *lifecycle) transition(to State) {
	l.mu.Lock()
	from := l.state
	if from == to {
		l.mu.Unlock()
		return
	}
	l.state = to
	l.mu.Unlock()

	metrics.SetSessionState(l.name, to.String(), AllStates)
	logging.WithComponent(l.name).Info("session_state_transition", "from", from.String(), "to", to.String())
	l.notifyObservers(from, to)
}

// RegisterObserver adds a lifecycle observer.
func (l *lifecycle) RegisterObserver(o StatusObserver) {
	l.obsMu.Lock()
	l.observers = append(l.observers, o)
	l.obsMu.Unlock()
}

func (l *lifecycle) notifyObservers(from, to State) {
	l.obsMu.RLock()
	obs := make([]StatusObserver, len(l.observers))
	copy(obs, l.observers)
	l.obsMu.RUnlock()

	for _, o := range obs {
		l.invokeSafely(o, from, to)
	}
}

func (l *lifecycle) invokeSafely(o StatusObserver, from, to State) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncObserverError("status_observer")
			logging.WithComponent(l.name).Error("status_observer_panic", "recovered", r)
		}
	}()
	o.Observe(from, to)
}

// isLive reports whether the state is anything but Disconnected or Error —
// the states in which receiver/processor goroutines may legitimately run.
func (s State) isLive() bool {
	return s == Connecting || s == Connected || s == Streaming
}
