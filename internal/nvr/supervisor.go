package nvr

import (
	"context"
	"math"
	"sync"

	"github.com/banshee-data/camnvr/internal/logging"
)

// SupervisorConfig carries the tuning knobs the event state machine
// needs.
type SupervisorConfig struct {
	FPS float64

	TriggerDetector      bool // motion_detection.trigger_detector
	MotionTimeoutEnabled bool // motion_detection.timeout
	MotionMaxTimeout     float64 // seconds
	RecorderTimeout      float64 // seconds

	PublishFrames bool
}

// Supervisor is the per-camera event state machine: it
// drains processed object/motion frames, runs the filter stages, decides
// when to start or stop a recording, and republishes status on change.
type Supervisor struct {
	cfg SupervisorConfig

	objReturn    *FrameQueue
	motionReturn *FrameQueue

	objGate    *ScanGate
	motionGate *ScanGate
	ready      *FrameReadySignal

	objectFilter *ObjectFilter
	motionFilter *MotionFilter
	zoneEval     *ZoneEvaluator

	recorder      Recorder
	publisher     *Publisher
	statusTracker *StatusTracker

	log *logging.Logger

	mu    sync.Mutex
	state EventState

	captureCancel context.CancelFunc
	captureDone   chan struct{}
	captureMu     sync.Mutex
}

// NewSupervisor wires a Supervisor from its collaborators.
func NewSupervisor(cfg SupervisorConfig, objReturn, motionReturn *FrameQueue, objGate, motionGate *ScanGate, ready *FrameReadySignal, objectFilter *ObjectFilter, motionFilter *MotionFilter, zoneEval *ZoneEvaluator, recorder Recorder, publisher *Publisher, log *logging.Logger) *Supervisor {
	return &Supervisor{
		cfg:           cfg,
		objReturn:     objReturn,
		motionReturn:  motionReturn,
		objGate:       objGate,
		motionGate:    motionGate,
		ready:         ready,
		objectFilter:  objectFilter,
		motionFilter:  motionFilter,
		zoneEval:      zoneEval,
		recorder:      recorder,
		publisher:     publisher,
		statusTracker: &StatusTracker{},
		log:           log,
	}
}

// Run waits for Capture's first frame, then loops until ctx is
// cancelled, stepping the state machine once per iteration.
func (s *Supervisor) Run(ctx context.Context) error {
	select {
	case <-s.ready.C():
	case <-ctx.Done():
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		s.step(ctx)
	}
}

func (s *Supervisor) step(ctx context.Context) {
	s.publishStatus()

	var lastObjFrame, lastMotionFrame *Frame
	var objTrigger, zoneTrigger bool
	drainedObjFrame := false

	if frame, ok := s.objReturn.TryPop(); ok {
		drainedObjFrame = true
		lastObjFrame = frame
		res := s.objectFilter.Apply(frame)
		objTrigger = res.TriggerRecorder
		s.publishObjectResult(res)
		zoneTrigger = s.zoneEval.Apply(frame)
	}

	if frame, ok := s.motionReturn.TryPop(); ok {
		lastMotionFrame = frame
		res := s.motionFilter.Apply(frame.Contours)
		if res.Changed {
			s.publishMotionResult(res)
		}
	}

	s.mu.Lock()
	st := &s.state

	if (objTrigger || zoneTrigger) && !s.recorder.IsRecording() {
		st.StartRecorderEdge = true
	}
	// TriggerRecorder persists across ticks with no object frame, mirroring
	// the zone/object trigger state holding until the next object frame
	// updates it rather than resetting every iteration.
	if drainedObjFrame {
		st.TriggerRecorder = objTrigger || zoneTrigger
	}

	s.processMotionEvent(st)
	s.mu.Unlock()

	if s.cfg.PublishFrames {
		s.publishFrame(lastObjFrame, lastMotionFrame)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case st.StartRecorderEdge:
		st.StartRecorderEdge = false
		objs := s.objectFilter.objectsInFOV
		var w, h int
		if lastObjFrame != nil {
			w, h = lastObjFrame.Width, lastObjFrame.Height
		}
		if err := s.recorder.Start(ctx, lastObjFrame, objs, w, h); err != nil {
			s.log.Errorf("failed to start recording: %v", err)
		} else if s.cfg.MotionTimeoutEnabled {
			s.motionGate.Set(true)
		}
	case s.recorder.IsRecording() && s.eventOver(st):
		st.IdleFrames++
		s.stopOrTick(st)
	default:
		st.IdleFrames = 0
	}
}

// eventOver reports whether the current event (trigger or timed-out
// motion) has finished.
func (s *Supervisor) eventOver(st *EventState) bool {
	if st.TriggerRecorder {
		st.MotionOnlyFrames = 0
		st.MotionMaxTimeoutReached = false
		return false
	}

	if s.cfg.MotionTimeoutEnabled && s.motionFilter.MotionDetected() {
		threshold := s.cfg.FPS * s.cfg.MotionMaxTimeout
		if float64(st.MotionOnlyFrames) >= threshold {
			if !st.MotionMaxTimeoutReached {
				s.log.Infof("motion max timeout reached")
			}
			st.MotionMaxTimeoutReached = true
			return true
		}
		st.MotionOnlyFrames++
		return false
	}

	return true
}

// stopOrTick logs a periodic countdown while idle and stops the recorder
// once the idle timeout has elapsed.
func (s *Supervisor) stopOrTick(st *EventState) {
	if s.cfg.FPS <= 0 {
		return
	}
	if st.IdleFrames%int(math.Round(s.cfg.FPS)) == 0 {
		remaining := s.cfg.RecorderTimeout - float64(st.IdleFrames)/s.cfg.FPS
		s.log.Infof("recording stop in %.1fs", remaining)
	}
	if float64(st.IdleFrames) >= s.cfg.FPS*s.cfg.RecorderTimeout {
		if err := s.recorder.Stop(); err != nil {
			s.log.Errorf("failed to stop recording: %v", err)
		}
		if !s.cfg.TriggerDetector {
			s.motionGate.Set(false)
		}
	}
}

// processMotionEvent toggles the object-detector gate to follow motion
// state when trigger_detector is configured.
func (s *Supervisor) processMotionEvent(st *EventState) {
	motionDetected := s.motionFilter.MotionDetected()
	if motionDetected {
		if s.cfg.TriggerDetector && !s.objGate.Enabled() {
			s.objGate.Set(true)
			s.log.Debugf("starting object detector")
		}
	} else if s.objGate.Enabled() && !s.recorder.IsRecording() && s.cfg.TriggerDetector {
		s.log.Debugf("not recording, pausing object detector")
		s.objGate.Set(false)
	}
}

// Status returns the most recently computed status, for callers that only
// need to read it (e.g. an admin status endpoint) rather than drive it.
func (s *Supervisor) Status() StatusState {
	return s.statusTracker.Current()
}

func (s *Supervisor) publishStatus() {
	state, changed := s.statusTracker.Next(
		s.recorder.IsRecording(),
		s.objGate.Enabled(),
		s.motionGate.Enabled(),
		s.recorder.LastRecordingStart(),
		s.recorder.LastRecordingEnd(),
	)
	if !changed {
		return
	}
	s.publisher.Publish(Message{
		Topic: "status",
		Attributes: map[string]any{
			"state":                string(state.State),
			"last_recording_start": state.LastRecordingStart,
			"last_recording_end":   state.LastRecordingEnd,
		},
	})
}

func (s *Supervisor) publishObjectResult(res ObjectFilterResult) {
	if !res.Changed {
		return
	}
	objs := make([]map[string]any, 0, len(res.ObjectsInFOV))
	labels := make(map[string]struct{}, len(res.ObjectsInFOV))
	for _, o := range res.ObjectsInFOV {
		objs = append(objs, map[string]any{"label": o.Label, "confidence": o.Confidence})
		labels[o.Label] = struct{}{}
	}
	s.publisher.Publish(Message{
		Topic: "object_detected",
		Attributes: map[string]any{
			"object_detected": len(res.ObjectsInFOV) > 0,
			"objects":         objs,
			"label_count":     len(labels),
		},
	})
}

func (s *Supervisor) publishMotionResult(res MotionFilterResult) {
	s.publisher.Publish(Message{
		Topic: "motion_detected",
		Attributes: map[string]any{
			"motion_detected": res.MotionDetected,
		},
	})
}

func (s *Supervisor) publishFrame(objFrame, motionFrame *Frame) {
	frame := objFrame
	if frame == nil {
		frame = motionFrame
	}
	if frame == nil {
		return
	}
	pixels := renderOverlay(frame.Pixels, objFrame, motionFrame, s.zoneEval.Zones())
	s.publisher.Publish(Message{
		Topic:   "camera",
		Payload: pixels,
	})
}

// ToggleCamera handles an "ON"/"OFF" control message: "ON" starts capture
// (idempotently) against the given factory, "OFF" stops it and, if
// recording, stops the recording too. Any other payload is ignored.
func (s *Supervisor) ToggleCamera(ctx context.Context, msg string, startCapture func(context.Context) error) {
	switch msg {
	case "ON":
		s.captureMu.Lock()
		defer s.captureMu.Unlock()
		if s.captureCancel != nil {
			return
		}
		captureCtx, cancel := context.WithCancel(ctx)
		s.captureCancel = cancel
		s.captureDone = make(chan struct{})
		go func() {
			defer close(s.captureDone)
			if err := startCapture(captureCtx); err != nil {
				s.log.Errorf("capture exited: %v", err)
			}
		}()
	case "OFF":
		s.captureMu.Lock()
		cancel := s.captureCancel
		done := s.captureDone
		s.captureCancel = nil
		s.captureDone = nil
		s.captureMu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-done
		if s.recorder.IsRecording() {
			if err := s.recorder.Stop(); err != nil {
				s.log.Errorf("failed to stop recording on camera OFF: %v", err)
			}
		}
	}
}
