// Package risk decides, per frame, whether the detections describe a risk
// that must be recorded.
package risk

import (
	"image"
	"math"

	"eventcam/internal/model"
)

// CollisionLabel is the trigger label of the proximity rule.
const CollisionLabel = "collision"

// Reason tells which rule produced a decision.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonLabel     Reason = "label"
	ReasonProximity Reason = "proximity"
)

// Decision is the outcome of evaluating one frame.
type Decision struct {
	Trigger bool
	Label   string
	Reason  Reason
	// Collision is set whenever the proximity rule fired, even if the
	// label rule won the tie-break.
	Collision bool
	// Distance is the minimum person-forklift center distance in pixels,
	// +Inf when either role is absent.
	Distance float64
}

type labelSet map[string]struct{}

func newLabelSet(labels []string) labelSet {
	set := make(labelSet, len(labels))
	for _, label := range labels {
		set[label] = struct{}{}
	}
	return set
}

func (s labelSet) has(label string) bool {
	_, ok := s[label]
	return ok
}

// Evaluator applies a fixed rule set. It holds no mutable state, so one
// instance may be shared by any number of goroutines.
type Evaluator struct {
	triggers  labelSet
	persons   labelSet
	forklifts labelSet
	threshold float64
	priority  Priority
}

// NewEvaluator compiles rules into an evaluator.
func NewEvaluator(rules Rules) *Evaluator {
	priority := rules.Priority
	if priority == "" {
		priority = PriorityProximity
	}
	return &Evaluator{
		triggers:  newLabelSet(rules.TriggerLabels),
		persons:   newLabelSet(rules.PersonLabels),
		forklifts: newLabelSet(rules.ForkliftLabels),
		threshold: rules.PixelDistance,
		priority:  priority,
	}
}

// Evaluate maps a frame's detections to a trigger decision.
//
// The label rule fires for the first detection, in list order, whose label
// is in the trigger set. The proximity rule is evaluated afterwards and on
// its own; when both fire the configured priority picks the label.
func (e *Evaluator) Evaluate(detections []model.Detection) Decision {
	decision := Decision{Distance: math.Inf(1)}

	var persons, forklifts []image.Point
	for _, det := range detections {
		label := det.ResolvedLabel()

		if !decision.Trigger && e.triggers.has(label) {
			decision.Trigger = true
			decision.Label = label
			decision.Reason = ReasonLabel
		}

		switch {
		case e.persons.has(label):
			persons = append(persons, det.Box.Center())
		case e.forklifts.has(label):
			forklifts = append(forklifts, det.Box.Center())
		}
	}

	decision.Distance = minDistance(persons, forklifts)
	if decision.Distance < e.threshold {
		decision.Collision = true
		if !decision.Trigger || e.priority == PriorityProximity {
			decision.Trigger = true
			decision.Label = CollisionLabel
			decision.Reason = ReasonProximity
		}
	}
	return decision
}

// minDistance returns the smallest Euclidean distance between any a and
// any b, or +Inf when either slice is empty.
func minDistance(a, b []image.Point) float64 {
	best := math.Inf(1)
	for _, p := range a {
		for _, q := range b {
			dx := float64(p.X - q.X)
			dy := float64(p.Y - q.Y)
			if d := math.Hypot(dx, dy); d < best {
				best = d
			}
		}
	}
	return best
}
