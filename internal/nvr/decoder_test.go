package nvr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/camnvr/internal/timeutil"
)

type fakeObjectAnalyzer struct {
	objects []DetectedObject
	err     error
}

func (f *fakeObjectAnalyzer) Detect(ctx context.Context, frame *Frame) ([]DetectedObject, error) {
	return f.objects, f.err
}

type fakeMotionAnalyzer struct {
	contours MotionContours
	err      error
}

func (f *fakeMotionAnalyzer) Detect(ctx context.Context, frame *Frame) (MotionContours, error) {
	return f.contours, f.err
}

func TestLatestFrameDrainsToNewestQueued(t *testing.T) {
	q := NewFrameQueue()
	q.Push(&Frame{Width: 1})
	q.Push(&Frame{Width: 2})

	f, ok := latestFrame(q)
	if !ok || f.Width != 2 {
		t.Fatalf("latestFrame = %+v, ok=%v, want the most recently pushed frame", f, ok)
	}
	if q.Len() != 0 {
		t.Fatal("expected latestFrame to drain the queue entirely")
	}
}

func TestLatestFrameEmptyQueue(t *testing.T) {
	if _, ok := latestFrame(NewFrameQueue()); ok {
		t.Fatal("expected ok=false on an empty queue")
	}
}

func TestObjectDecoderTickAnnotatesAndForwardsFrame(t *testing.T) {
	in, out := NewFrameQueue(), NewFrameQueue()
	objs := []DetectedObject{{Label: "person", Confidence: 0.9}}
	d := NewObjectDecoder(in, out, &fakeObjectAnalyzer{objects: objs}, time.Second, timeutil.NewMockClock(time.Now()), nopLogger())

	in.Push(&Frame{Width: 1})
	d.tick(context.Background())

	f, ok := out.TryPop()
	if !ok {
		t.Fatal("expected the decoded frame to be forwarded downstream")
	}
	if len(f.Objects) != 1 || f.Objects[0].Label != "person" {
		t.Fatalf("Objects = %+v, want the analyzer's detections", f.Objects)
	}
}

func TestObjectDecoderTickSkipsOnEmptyQueue(t *testing.T) {
	in, out := NewFrameQueue(), NewFrameQueue()
	d := NewObjectDecoder(in, out, &fakeObjectAnalyzer{}, time.Second, timeutil.NewMockClock(time.Now()), nopLogger())

	d.tick(context.Background())
	if out.Len() != 0 {
		t.Fatal("expected no forwarded frame when the input queue is empty")
	}
}

func TestObjectDecoderTickDropsFrameOnAnalyzerError(t *testing.T) {
	in, out := NewFrameQueue(), NewFrameQueue()
	d := NewObjectDecoder(in, out, &fakeObjectAnalyzer{err: errors.New("boom")}, time.Second, timeutil.NewMockClock(time.Now()), nopLogger())

	in.Push(&Frame{Width: 1})
	d.tick(context.Background())
	if out.Len() != 0 {
		t.Fatal("expected an analyzer error to drop the frame rather than forward it")
	}
}

func TestMotionDecoderTickAnnotatesAndForwardsFrame(t *testing.T) {
	in, out := NewFrameQueue(), NewFrameQueue()
	contours := MotionContours{MaxArea: 42}
	d := NewMotionDecoder(in, out, &fakeMotionAnalyzer{contours: contours}, time.Second, timeutil.NewMockClock(time.Now()), nopLogger())

	in.Push(&Frame{Width: 1})
	d.tick(context.Background())

	f, ok := out.TryPop()
	if !ok {
		t.Fatal("expected the decoded frame to be forwarded downstream")
	}
	if f.Contours.MaxArea != 42 {
		t.Fatalf("Contours = %+v, want the analyzer's output", f.Contours)
	}
}

func TestMotionDecoderTickDropsFrameOnAnalyzerError(t *testing.T) {
	in, out := NewFrameQueue(), NewFrameQueue()
	d := NewMotionDecoder(in, out, &fakeMotionAnalyzer{err: errors.New("boom")}, time.Second, timeutil.NewMockClock(time.Now()), nopLogger())

	in.Push(&Frame{Width: 1})
	d.tick(context.Background())
	if out.Len() != 0 {
		t.Fatal("expected an analyzer error to drop the frame rather than forward it")
	}
}
