// Package ai runs object detection on frames, either in-process through the
// OpenCV DNN module or through a remote inference server.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"eventcam/internal/frame"
	"eventcam/internal/model"
)

const (
	// DetectionThreshold is the default minimum confidence for detections.
	DetectionThreshold = 0.5
	// NMSThreshold is the IoU above which overlapping boxes are suppressed.
	NMSThreshold = 0.45
)

var (
	// ErrDetect wraps every inference failure.
	ErrDetect = errors.New("detection failed")
	// ErrUnknownModel is returned for a model name that was never registered.
	ErrUnknownModel = errors.New("unknown model")
)

// Detector turns a frame into detections.
type Detector interface {
	Infer(ctx context.Context, f frame.Frame) ([]model.Detection, error)
	// Names returns the class table the model ships with. It may be empty.
	Names() model.ClassNames
	// Name is the registry name of the model ("det", "seg").
	Name() string
	Close() error
}

// relabeled replaces detection labels with a merged class table.
type relabeled struct {
	Detector
	names model.ClassNames
}

// Relabel returns a detector labelling detections from names by class id.
func Relabel(d Detector, names model.ClassNames) Detector {
	return &relabeled{Detector: d, names: names}
}

func (r *relabeled) Infer(ctx context.Context, f frame.Frame) ([]model.Detection, error) {
	detections, err := r.Detector.Infer(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range detections {
		if name, ok := r.names[detections[i].ClassID]; ok {
			detections[i].Label = name
		}
	}
	return detections, nil
}

func (r *relabeled) Names() model.ClassNames { return r.names }

// Factory loads a detector.
type Factory func() (Detector, error)

// Registry maps model names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Open loads the detector registered under name.
func (r *Registry) Open(name string) (Detector, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	d, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", name, err)
	}
	return d, nil
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next returns the model after current in sorted order, wrapping around.
func (r *Registry) Next(current string) string {
	names := r.Names()
	if len(names) == 0 {
		return ""
	}
	for i, name := range names {
		if name == current {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}
