package nvr

import "github.com/banshee-data/camnvr/internal/logging"

// MotionFilter implements the debounce stage over motion-contour results:
// motion must persist for `frames` consecutive hits above `area` before
// motion_detected latches true, and a single miss resets the run.
type MotionFilter struct {
	areaThreshold float64
	framesNeeded  int

	framesRun      int
	motionDetected bool

	log *logging.Logger
}

// NewMotionFilter builds a MotionFilter from its configured thresholds.
func NewMotionFilter(areaThreshold float64, framesNeeded int, log *logging.Logger) *MotionFilter {
	return &MotionFilter{areaThreshold: areaThreshold, framesNeeded: framesNeeded, log: log}
}

// MotionFilterResult reports whether motion_detected changed this call.
type MotionFilterResult struct {
	MotionDetected bool
	Changed        bool
}

// Apply steps the debounce state machine with one motion-frame's
// contours and returns the resulting (possibly unchanged) state.
func (mf *MotionFilter) Apply(contours MotionContours) MotionFilterResult {
	prev := mf.motionDetected

	if contours.MaxArea > mf.areaThreshold {
		mf.framesRun++
		mf.log.Debugf("consecutive frames with motion: %d, max area: %.1f", mf.framesRun, contours.MaxArea)
		if mf.framesRun >= mf.framesNeeded {
			mf.motionDetected = true
		}
	} else {
		mf.framesRun = 0
		mf.motionDetected = false
	}

	changed := mf.motionDetected != prev
	if changed {
		if mf.motionDetected {
			mf.log.Debugf("motion detected")
		} else {
			mf.log.Debugf("motion stopped")
		}
	}

	return MotionFilterResult{MotionDetected: mf.motionDetected, Changed: changed}
}

// MotionDetected reports the filter's current latched state.
func (mf *MotionFilter) MotionDetected() bool { return mf.motionDetected }
