package nvr

import (
	"sort"

	"github.com/banshee-data/camnvr/internal/logging"
)

// ObjectLabelFilter is the per-label acceptance rule configured under
// object_detection.labels.
type ObjectLabelFilter struct {
	Label             string
	MinConfidence     float64
	MinSizeRel        float64
	MaxSizeRel        float64
	RequireZone       bool
	TriggersRecording bool
	PostProcessor     string
}

// accepts reports whether obj passes this filter's confidence and
// relative-size bounds. Zone membership is evaluated by the caller
// (ObjectFilter.Apply), since it needs the frame's zone list.
func (f ObjectLabelFilter) accepts(obj DetectedObject, frameArea float64) bool {
	if obj.Confidence < f.MinConfidence {
		return false
	}
	if frameArea <= 0 {
		return false
	}
	rel := obj.BBox.Area() / frameArea
	if rel < f.MinSizeRel || rel > f.MaxSizeRel {
		return false
	}
	return true
}

// PostProcessorDispatch is implemented by whatever owns the external
// post-processor work queue. Send is fire-and-forget: a full queue or a
// pool error never propagates back into the pipeline.
type PostProcessorDispatch interface {
	Send(name string, frame *Frame, obj DetectedObject)
}

// ObjectFilter implements the in-FOV filter stage: for each label with a
// configured filter, decide relevance, track whether any matched object
// wants the recorder, and dispatch to post-processors.
type ObjectFilter struct {
	filters map[string]ObjectLabelFilter
	zones   []Zone

	objectsInFOV []DetectedObject
	labelCounts  map[string]int

	dispatch  PostProcessorDispatch
	publisher *Publisher
	log       *logging.Logger
}

// NewObjectFilter builds an ObjectFilter from its configured per-label
// rules and zones.
func NewObjectFilter(filters []ObjectLabelFilter, zones []Zone, dispatch PostProcessorDispatch, publisher *Publisher, log *logging.Logger) *ObjectFilter {
	m := make(map[string]ObjectLabelFilter, len(filters))
	for _, f := range filters {
		m[f.Label] = f
	}
	return &ObjectFilter{
		filters:     m,
		zones:       zones,
		labelCounts: make(map[string]int),
		dispatch:    dispatch,
		publisher:   publisher,
		log:         log,
	}
}

// ObjectFilterResult is what Apply hands back to the Supervisor for the
// per-iteration recording-edge and status decisions.
type ObjectFilterResult struct {
	ObjectsInFOV    []DetectedObject
	TriggerRecorder bool
	Changed         bool // objects_in_fov set changed since the previous call
}

// Apply runs the object filter over one processed object-frame.
func (of *ObjectFilter) Apply(frame *Frame) ObjectFilterResult {
	frameArea := float64(frame.Width * frame.Height)
	var inFOV []DetectedObject
	trigger := false

	for i := range frame.Objects {
		obj := &frame.Objects[i]
		filter, ok := of.filters[obj.Label]
		if !ok || !filter.accepts(*obj, frameArea) {
			continue
		}
		if filter.RequireZone && !anyZoneContains(of.zones, *obj) {
			continue
		}

		obj.Relevant = true
		inFOV = append(inFOV, *obj)

		if filter.TriggersRecording {
			trigger = true
		}
		if filter.PostProcessor != "" && of.dispatch != nil {
			of.dispatch.Send(filter.PostProcessor, frame, *obj)
		}
	}

	changed := !sameObjectSet(of.objectsInFOV, inFOV)
	of.objectsInFOV = inFOV

	of.reportLabelCounts(inFOV)

	return ObjectFilterResult{
		ObjectsInFOV:    inFOV,
		TriggerRecorder: trigger,
		Changed:         changed,
	}
}

// reportLabelCounts publishes "object_detected <label>" on presence change:
// a bool attribute for whether the label is now present, plus the current
// integer count for that label.
func (of *ObjectFilter) reportLabelCounts(objs []DetectedObject) {
	counts := make(map[string]int)
	for _, o := range objs {
		counts[o.Label]++
	}
	for label, n := range counts {
		if of.labelCounts[label] == 0 && n > 0 {
			of.log.Debugf("object_detected %s: now present, count=%d", label, n)
			of.publishLabelPresence(label, true, n)
		}
	}
	for label, prev := range of.labelCounts {
		if prev > 0 && counts[label] == 0 {
			of.log.Debugf("object_detected %s: no longer present", label)
			of.publishLabelPresence(label, false, 0)
		}
	}
	of.labelCounts = counts
}

func (of *ObjectFilter) publishLabelPresence(label string, present bool, count int) {
	if of.publisher == nil {
		return
	}
	of.publisher.Publish(Message{
		Topic: "object_detected " + label,
		Attributes: map[string]any{
			"object_detected": present,
			"count":           count,
		},
	})
}

func anyZoneContains(zones []Zone, obj DetectedObject) bool {
	cx, cy := obj.BBox.Center()
	for _, z := range zones {
		if z.Interested(obj.Label) && z.Contains(cx, cy) {
			return true
		}
	}
	return false
}

// sameObjectSet compares two object lists by label then confidence, the
// "ordered-by-label-then-confidence" equality used for change detection.
func sameObjectSet(a, b []DetectedObject) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := sortedByLabelConfidence(a), sortedByLabelConfidence(b)
	for i := range as {
		if as[i].Label != bs[i].Label || as[i].Confidence != bs[i].Confidence {
			return false
		}
	}
	return true
}

func sortedByLabelConfidence(objs []DetectedObject) []DetectedObject {
	out := append([]DetectedObject(nil), objs...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Confidence < out[j].Confidence
	})
	return out
}
