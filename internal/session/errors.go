package session

import "errors"

// Sentinel errors, wrapped with fmt.Errorf("%w: ...") at the call site so
// callers can classify failures via errors.Is without string matching.
var (
	ErrTransport  = errors.New("transport")
	ErrLifecycle  = errors.New("lifecycle")
	ErrNotReady   = errors.New("not_ready")
	ErrTestFailed = errors.New("test_connection")
)
