package nvr

import (
	"context"
	"time"

	"github.com/banshee-data/camnvr/internal/logging"
	"github.com/banshee-data/camnvr/internal/timeutil"
)

// ObjectDecoder runs the object analyzer over frames pulled from the
// object queue at a fixed interval: it does not try to keep up with
// every captured frame, it samples at Interval, keeps the newest queued
// frame at each tick and drops any older ones.
type ObjectDecoder struct {
	in       *FrameQueue
	out      *FrameQueue
	analyzer ObjectAnalyzer
	interval time.Duration
	clock    timeutil.Clock
	log      *logging.Logger
}

// NewObjectDecoder builds an object decode stage.
func NewObjectDecoder(in, out *FrameQueue, analyzer ObjectAnalyzer, interval time.Duration, clock timeutil.Clock, log *logging.Logger) *ObjectDecoder {
	return &ObjectDecoder{in: in, out: out, analyzer: analyzer, interval: interval, clock: clock, log: log}
}

// Run ticks at d.interval, running the analyzer against the newest
// available frame (if any) each tick, and pushes the annotated frame
// downstream.
func (d *ObjectDecoder) Run(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			d.tick(ctx)
		}
	}
}

func (d *ObjectDecoder) tick(ctx context.Context) {
	frame, ok := latestFrame(d.in)
	if !ok {
		return
	}
	objs, err := d.analyzer.Detect(ctx, frame)
	if err != nil {
		d.log.Debugf("object analyzer error: %v", err)
		return
	}
	frame.Objects = objs
	d.out.Push(frame)
}

// MotionDecoder is the motion-path analogue of ObjectDecoder.
type MotionDecoder struct {
	in       *FrameQueue
	out      *FrameQueue
	analyzer MotionAnalyzer
	interval time.Duration
	clock    timeutil.Clock
	log      *logging.Logger
}

// NewMotionDecoder builds a motion decode stage.
func NewMotionDecoder(in, out *FrameQueue, analyzer MotionAnalyzer, interval time.Duration, clock timeutil.Clock, log *logging.Logger) *MotionDecoder {
	return &MotionDecoder{in: in, out: out, analyzer: analyzer, interval: interval, clock: clock, log: log}
}

// Run is the motion-path analogue of ObjectDecoder.Run.
func (d *MotionDecoder) Run(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			d.tick(ctx)
		}
	}
}

func (d *MotionDecoder) tick(ctx context.Context) {
	frame, ok := latestFrame(d.in)
	if !ok {
		return
	}
	contours, err := d.analyzer.Detect(ctx, frame)
	if err != nil {
		d.log.Debugf("motion analyzer error: %v", err)
		return
	}
	frame.Contours = contours
	d.out.Push(frame)
}

// latestFrame drains a queue down to its newest entry, discarding any
// older frames that accumulated between ticks.
func latestFrame(q *FrameQueue) (*Frame, bool) {
	var latest *Frame
	for {
		f, ok := q.TryPop()
		if !ok {
			break
		}
		latest = f
	}
	if latest == nil {
		return nil, false
	}
	return latest, true
}
