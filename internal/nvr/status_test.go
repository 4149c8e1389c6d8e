package nvr

import (
	"testing"
	"time"
)

func TestComputeStatusPrecedence(t *testing.T) {
	cases := []struct {
		recording, objects, motion bool
		want                       Status
	}{
		{true, true, true, StatusRecording},
		{false, true, true, StatusScanningForObjects},
		{false, false, true, StatusScanningForMotion},
		{false, false, false, StatusUnknown},
	}
	for _, c := range cases {
		if got := ComputeStatus(c.recording, c.objects, c.motion); got != c.want {
			t.Errorf("ComputeStatus(%v,%v,%v) = %v, want %v", c.recording, c.objects, c.motion, got, c.want)
		}
	}
}

func TestStatusTrackerChangedOnlyOnFirstCallAndOnTransition(t *testing.T) {
	var tr StatusTracker

	_, changed := tr.Next(false, false, true, time.Time{}, time.Time{})
	if !changed {
		t.Fatal("expected the first Next call to report changed=true")
	}

	_, changed = tr.Next(false, false, true, time.Time{}, time.Time{})
	if changed {
		t.Fatal("expected an unchanged call to report changed=false")
	}

	state, changed := tr.Next(true, false, true, time.Time{}, time.Time{})
	if !changed || state.State != StatusRecording {
		t.Fatalf("expected a transition to recording to report changed=true, got state=%v changed=%v", state.State, changed)
	}
}

func TestStatusTrackerCurrentReflectsLastNext(t *testing.T) {
	var tr StatusTracker
	if tr.Current().State != StatusUnknown {
		t.Fatal("expected the zero-value tracker to report unknown before Next is called")
	}
	tr.Next(true, false, false, time.Time{}, time.Time{})
	if tr.Current().State != StatusRecording {
		t.Fatalf("Current() = %v, want recording", tr.Current().State)
	}
}
