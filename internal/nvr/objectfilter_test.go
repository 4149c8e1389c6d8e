package nvr

import "testing"

func personFilter() ObjectLabelFilter {
	return ObjectLabelFilter{
		Label:             "person",
		MinConfidence:     0.5,
		MinSizeRel:        0.01,
		MaxSizeRel:        0.9,
		TriggersRecording: true,
	}
}

func TestObjectLabelFilterAcceptsWithinBounds(t *testing.T) {
	f := personFilter()
	obj := DetectedObject{Label: "person", Confidence: 0.8, BBox: BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}}
	if !f.accepts(obj, 1000) {
		t.Fatal("expected object within confidence/size bounds to be accepted")
	}
}

func TestObjectLabelFilterRejectsLowConfidence(t *testing.T) {
	f := personFilter()
	obj := DetectedObject{Label: "person", Confidence: 0.1, BBox: BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}}
	if f.accepts(obj, 1000) {
		t.Fatal("expected low-confidence object to be rejected")
	}
}

func TestObjectLabelFilterRejectsOutOfSizeBounds(t *testing.T) {
	f := personFilter()
	tiny := DetectedObject{Label: "person", Confidence: 0.9, BBox: BBox{X1: 0, Y1: 0, X2: 1, Y2: 1}}
	if f.accepts(tiny, 1000) {
		t.Fatal("expected too-small object to be rejected")
	}
	huge := DetectedObject{Label: "person", Confidence: 0.9, BBox: BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}}
	if f.accepts(huge, 1000) {
		t.Fatal("expected too-large object to be rejected")
	}
}

func TestObjectFilterApplyMarksRelevantAndTriggers(t *testing.T) {
	of := NewObjectFilter([]ObjectLabelFilter{personFilter()}, nil, nil, nil, nopLogger())
	frame := &Frame{
		Width: 100, Height: 100,
		Objects: []DetectedObject{
			{Label: "person", Confidence: 0.9, BBox: BBox{X1: 0, Y1: 0, X2: 20, Y2: 20}},
			{Label: "cat", Confidence: 0.9, BBox: BBox{X1: 0, Y1: 0, X2: 20, Y2: 20}}, // no filter configured
		},
	}

	res := of.Apply(frame)
	if len(res.ObjectsInFOV) != 1 || res.ObjectsInFOV[0].Label != "person" {
		t.Fatalf("ObjectsInFOV = %+v, want only the person", res.ObjectsInFOV)
	}
	if !res.TriggerRecorder {
		t.Fatal("expected TriggerRecorder to be true")
	}
	if !frame.Objects[0].Relevant {
		t.Fatal("expected the matched object to be marked Relevant")
	}
	if frame.Objects[1].Relevant {
		t.Fatal("expected the unmatched label to stay not Relevant")
	}
}

func TestObjectFilterRequireZoneRejectsOutsideAnyZone(t *testing.T) {
	f := personFilter()
	f.RequireZone = true
	zones := []Zone{NewZone("porch", square(0, 0, 10, 10), nil, false, "")}
	of := NewObjectFilter([]ObjectLabelFilter{f}, zones, nil, nil, nopLogger())

	frame := &Frame{
		Width: 1000, Height: 1000,
		Objects: []DetectedObject{
			{Label: "person", Confidence: 0.9, BBox: BBox{X1: 500, Y1: 500, X2: 520, Y2: 520}},
		},
	}
	res := of.Apply(frame)
	if len(res.ObjectsInFOV) != 0 {
		t.Fatalf("expected object outside every zone to be filtered out, got %+v", res.ObjectsInFOV)
	}
}

func TestObjectFilterApplyChangedOnlyOnSetChange(t *testing.T) {
	of := NewObjectFilter([]ObjectLabelFilter{personFilter()}, nil, nil, nil, nopLogger())
	frame := func() *Frame {
		return &Frame{
			Width: 100, Height: 100,
			Objects: []DetectedObject{
				{Label: "person", Confidence: 0.9, BBox: BBox{X1: 0, Y1: 0, X2: 20, Y2: 20}},
			},
		}
	}

	first := of.Apply(frame())
	if !first.Changed {
		t.Fatal("expected Changed=true on first detection")
	}
	second := of.Apply(frame())
	if second.Changed {
		t.Fatal("expected Changed=false when the same object set repeats")
	}
}

func TestObjectFilterPublishesLabelPresenceOnChange(t *testing.T) {
	pub := NewPublisher(nopLogger())
	id, ch := pub.Subscribe()
	defer pub.Unsubscribe(id)

	of := NewObjectFilter([]ObjectLabelFilter{personFilter()}, nil, nil, pub, nopLogger())
	frame := &Frame{
		Width: 100, Height: 100,
		Objects: []DetectedObject{
			{Label: "person", Confidence: 0.9, BBox: BBox{X1: 0, Y1: 0, X2: 20, Y2: 20}},
		},
	}
	of.Apply(frame)

	select {
	case msg := <-ch:
		if msg.Topic != "object_detected person" {
			t.Fatalf("topic = %q, want %q", msg.Topic, "object_detected person")
		}
		if msg.Attributes["object_detected"] != true {
			t.Fatalf("object_detected attribute = %v, want true", msg.Attributes["object_detected"])
		}
		if msg.Attributes["count"] != 1 {
			t.Fatalf("count attribute = %v, want 1", msg.Attributes["count"])
		}
	default:
		t.Fatal("expected a published object_detected person message")
	}

	of.Apply(&Frame{Width: 100, Height: 100})

	select {
	case msg := <-ch:
		if msg.Attributes["object_detected"] != false {
			t.Fatalf("object_detected attribute = %v, want false on disappearance", msg.Attributes["object_detected"])
		}
	default:
		t.Fatal("expected a published object_detected person message on disappearance")
	}
}

func TestSameObjectSetIgnoresOrder(t *testing.T) {
	a := []DetectedObject{{Label: "person", Confidence: 0.9}, {Label: "car", Confidence: 0.5}}
	b := []DetectedObject{{Label: "car", Confidence: 0.5}, {Label: "person", Confidence: 0.9}}
	if !sameObjectSet(a, b) {
		t.Fatal("expected reordered but otherwise identical sets to compare equal")
	}
}
