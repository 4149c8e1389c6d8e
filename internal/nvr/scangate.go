package nvr

import (
	"sync"
	"sync/atomic"
)

// ScanGate is an atomic boolean toggled by the Supervisor and read on
// every Capture tick. Readers use acquire semantics (atomic.Bool.Load),
// writers use release semantics (atomic.Bool.Store) — there is no
// invariant that both of a camera's two gates are set simultaneously;
// exactly-one-set is only guaranteed at startup.
type ScanGate struct {
	v atomic.Bool
}

// NewScanGate creates a gate in the given initial state.
func NewScanGate(initial bool) *ScanGate {
	g := &ScanGate{}
	g.v.Store(initial)
	return g
}

// Enabled reports the gate's current state.
func (g *ScanGate) Enabled() bool { return g.v.Load() }

// Set enables or disables the gate.
func (g *ScanGate) Set(enabled bool) { g.v.Store(enabled) }

// FrameReadySignal is a broadcast-style notifier: Capture signals it once
// per produced frame, and any number of waiters can block on WaitFirst
// until at least one frame has arrived. It is the first-frame
// synchronization required before the Supervisor enters its main loop.
type FrameReadySignal struct {
	mu      sync.Mutex
	ch      chan struct{}
	fired   bool
}

// NewFrameReadySignal creates an unfired signal.
func NewFrameReadySignal() *FrameReadySignal {
	return &FrameReadySignal{ch: make(chan struct{})}
}

// Fire marks the signal as raised, waking every current and future waiter
// on WaitFirst. Subsequent calls are no-ops.
func (s *FrameReadySignal) Fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return
	}
	s.fired = true
	close(s.ch)
}

// WaitFirst blocks until Fire has been called at least once.
func (s *FrameReadySignal) WaitFirst() {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	<-ch
}

// C exposes the underlying channel for use inside a select, e.g. to race
// the first frame against a shutdown signal.
func (s *FrameReadySignal) C() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}
