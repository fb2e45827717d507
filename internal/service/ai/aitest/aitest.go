// Package aitest provides a scripted detector for pipeline tests.
package aitest

import (
	"context"
	"sync"

	"eventcam/internal/frame"
	"eventcam/internal/frame/frametest"
	"eventcam/internal/model"
)

// Detector returns Script(seq) for each fake frame, or Err when set.
type Detector struct {
	DetName string
	Script  func(seq int) []model.Detection
	Err     error
	Table   model.ClassNames

	mu     sync.Mutex
	calls  int
	closed bool
}

func (d *Detector) Infer(ctx context.Context, f frame.Frame) ([]model.Detection, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	if d.Script == nil {
		return nil, nil
	}
	return d.Script(frametest.Seq(f)), nil
}

func (d *Detector) Names() model.ClassNames { return d.Table }
func (d *Detector) Name() string            { return d.DetName }

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Calls returns how many frames were inferred.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Closed reports whether Close was called.
func (d *Detector) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Box returns a 20x20 detection of label centered on (cx, cy).
func Box(label string, cx, cy int) model.Detection {
	return model.Detection{
		Label:      label,
		Box:        model.Box{X1: cx - 10, Y1: cy - 10, X2: cx + 10, Y2: cy + 10},
		Confidence: 0.9,
	}
}
