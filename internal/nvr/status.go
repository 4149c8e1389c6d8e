package nvr

import "time"

// ComputeStatus applies the fixed precedence order:
// recording > scanning_for_objects > scanning_for_motion > unknown.
func ComputeStatus(isRecording, scanningForObjects, scanningForMotion bool) Status {
	switch {
	case isRecording:
		return StatusRecording
	case scanningForObjects:
		return StatusScanningForObjects
	case scanningForMotion:
		return StatusScanningForMotion
	default:
		return StatusUnknown
	}
}

// StatusTracker holds the last published StatusState and reports whether
// a new computation differs from it, so the Supervisor only publishes on
// change.
type StatusTracker struct {
	current StatusState
	hasSent bool
}

// Current returns the last status computed by Next, or a StatusState with
// State StatusUnknown if Next has not been called yet.
func (t *StatusTracker) Current() StatusState {
	if !t.hasSent {
		return StatusState{State: StatusUnknown}
	}
	return t.current
}

// Next computes the status for the given inputs and reports whether it
// differs from the last value returned by Next (or the zero value, on
// the first call). The returned StatusState is always the latest one;
// callers should only publish it when changed is true.
func (t *StatusTracker) Next(isRecording, scanningForObjects, scanningForMotion bool, lastStart, lastEnd time.Time) (StatusState, bool) {
	next := StatusState{
		State:              ComputeStatus(isRecording, scanningForObjects, scanningForMotion),
		LastRecordingStart: lastStart,
		LastRecordingEnd:   lastEnd,
	}
	changed := !t.hasSent || !next.Equal(t.current)
	t.current = next
	t.hasSent = true
	return next, changed
}
