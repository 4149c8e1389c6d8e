package nvr

// Zone is a named polygonal region of interest within the camera's frame.
// An object is "in" a zone when its bounding box center falls inside the
// polygon.
type Zone struct {
	Name             string
	Polygon          []Point
	LabelsOfInterest map[string]struct{}
	TriggersRecording bool
	PostProcessor    string
}

// Point is a polygon vertex in frame pixel coordinates.
type Point struct {
	X, Y float64
}

// NewZone builds a Zone from its configured vertices and label allowlist.
func NewZone(name string, polygon []Point, labels []string, triggersRecording bool, postProcessor string) Zone {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return Zone{
		Name:              name,
		Polygon:           polygon,
		LabelsOfInterest:  set,
		TriggersRecording: triggersRecording,
		PostProcessor:     postProcessor,
	}
}

// Interested reports whether this zone cares about the given label. An
// empty LabelsOfInterest set means the zone is interested in every label
// — an empty allowlist is "all labels", not "no labels".
func (z Zone) Interested(label string) bool {
	if len(z.LabelsOfInterest) == 0 {
		return true
	}
	_, ok := z.LabelsOfInterest[label]
	return ok
}

// Contains reports whether the point (x, y) lies inside the zone's
// polygon, using a standard ray-casting even-odd test. Points exactly on
// an edge may resolve either way; boundary membership is unspecified.
func (z Zone) Contains(x, y float64) bool {
	return polygonContains(z.Polygon, x, y)
}

func polygonContains(poly []Point, x, y float64) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	n := len(poly)
	j := n - 1
	for i := 0; i < n; i++ {
		pi, pj := poly[i], poly[j]
		if (pi.Y > y) != (pj.Y > y) {
			xIntersect := (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if x < xIntersect {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// zoneRuntimeState is the per-zone mutable half of the evaluator: whether
// it is currently triggered, for change-detection on publish.
type zoneRuntimeState struct {
	triggered bool
}

// ZoneEvaluator finds, for each processed object-frame, which zones
// currently hold a relevant, interesting object, aggregates any such
// zone's TriggersRecording into the Supervisor, and republishes each
// zone's boolean only when it changes.
type ZoneEvaluator struct {
	zones    []Zone
	state    []zoneRuntimeState
	dispatch PostProcessorDispatch
	pub      *Publisher
}

// NewZoneEvaluator builds a ZoneEvaluator over the camera's configured
// zones.
func NewZoneEvaluator(zones []Zone, dispatch PostProcessorDispatch, pub *Publisher) *ZoneEvaluator {
	return &ZoneEvaluator{zones: zones, state: make([]zoneRuntimeState, len(zones)), dispatch: dispatch, pub: pub}
}

// Zones returns the evaluator's configured zones, for callers that need
// the polygons themselves (the per-iteration image overlay) rather than
// trigger decisions.
func (ze *ZoneEvaluator) Zones() []Zone {
	return ze.zones
}

// Apply evaluates every zone against frame's relevant objects and
// returns whether any triggered zone wants a recording started.
func (ze *ZoneEvaluator) Apply(frame *Frame) (triggerRecorder bool) {
	for i, z := range ze.zones {
		triggered := false
		for _, obj := range frame.Objects {
			if !obj.Relevant || !z.Interested(obj.Label) {
				continue
			}
			cx, cy := obj.BBox.Center()
			if z.Contains(cx, cy) {
				triggered = true
				if z.PostProcessor != "" && ze.dispatch != nil {
					ze.dispatch.Send(z.PostProcessor, frame, obj)
				}
			}
		}

		if triggered != ze.state[i].triggered {
			ze.state[i].triggered = triggered
			if ze.pub != nil {
				ze.pub.Publish(Message{
					Topic:      "zone_" + z.Name,
					Attributes: map[string]any{"triggered": triggered},
				})
			}
		}

		if triggered && z.TriggersRecording {
			triggerRecorder = true
		}
	}
	return triggerRecorder
}
