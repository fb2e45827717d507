// Package pump drives one source connection: every tick it reads a frame,
// detects, evaluates the risk rules, records and publishes a preview.
package pump

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"sync"
	"time"

	"eventcam/internal/frame"
	"eventcam/internal/logger"
	"eventcam/internal/metrics"
	"eventcam/internal/model"
	"eventcam/internal/service/ai"
	"eventcam/internal/service/recorder"
	"eventcam/internal/service/risk"
)

// MinInterval is the shortest tick interval.
const MinInterval = 10 * time.Millisecond

var (
	// ErrSourceInterrupted is returned when a live source stops delivering
	// frames. The source must be reconnected.
	ErrSourceInterrupted = errors.New("source interrupted")
	// ErrNoFrame is returned by Trigger when neither a frame was read nor
	// the source reported its frame size.
	ErrNoFrame = errors.New("no frame captured yet")
)

// Source delivers frames. Read returns an error when no frame is available.
// Size is the frame size reported on open, zero when unknown.
type Source interface {
	Read() (frame.Frame, error)
	FPS() float64
	Size() image.Point
	Live() bool
	Name() string
	Close() error
}

// Annotator draws detections onto a frame in place.
type Annotator interface {
	Annotate(f frame.Frame, detections []model.Detection, decision risk.Decision) error
}

// Publisher receives annotated preview frames. The frame is only valid
// during the call.
type Publisher interface {
	PublishFrame(f frame.Frame, detections []model.Detection, decision risk.Decision)
}

// Options wires a Pump.
type Options struct {
	Source    Source
	Detector  ai.Detector
	Evaluator *risk.Evaluator
	Recorder  *recorder.Recorder
	Annotator Annotator
	Publisher Publisher
	// PreviewInterval publishes every n-th frame; 0 or 1 publishes all.
	PreviewInterval int
	// Interval overrides the tick interval derived from the source fps.
	Interval time.Duration
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

// Pump runs the per-frame pipeline. Ticks and manual triggers are
// serialized, so at most one frame is in flight.
type Pump struct {
	opts     Options
	interval time.Duration

	mu       sync.Mutex
	lastSize image.Point
	seq      uint64

	// sinkFailed is set while a risk episode cannot open its clip, so the
	// failure is counted and logged once per episode.
	sinkFailed bool
}

// Interval returns the tick interval for fps: 1s/fps, never below
// MinInterval. Invalid rates fall back to recorder.DefaultFPS.
func Interval(fps float64) time.Duration {
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		fps = recorder.DefaultFPS
	}
	return max(MinInterval, time.Duration(float64(time.Second)/fps))
}

func New(opts Options) *Pump {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.PreviewInterval <= 0 {
		opts.PreviewInterval = 1
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = Interval(opts.Source.FPS())
	}
	return &Pump{opts: opts, interval: interval}
}

// TickInterval returns the interval Run ticks at.
func (p *Pump) TickInterval() time.Duration { return p.interval }

// Run ticks until ctx is canceled or the source ends. It returns nil on
// cancellation and at the end of a file, ErrSourceInterrupted when a live
// source fails, and the detector error when detection fails.
func (p *Pump) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.opts.Logger.Info("Pump started for %s (every %v)", p.opts.Source.Name(), p.interval)
	for {
		select {
		case <-ctx.Done():
			p.opts.Logger.Info("Pump stopped for %s", p.opts.Source.Name())
			return nil
		case <-ticker.C:
			err := p.Tick(ctx)
			if errors.Is(err, io.EOF) {
				p.opts.Logger.Info("End of stream: %s", p.opts.Source.Name())
				return nil
			}
			if err != nil {
				p.opts.Logger.Error("Pump halted for %s: %v", p.opts.Source.Name(), err)
				return err
			}
		}
	}
}

// Tick processes one frame. A file source that has no more frames yields
// io.EOF.
func (p *Pump) Tick(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.opts.Metrics
	src := p.opts.Source

	f, err := src.Read()
	if err != nil {
		m.ReadErrors.Add(1)
		if src.Live() {
			return fmt.Errorf("%w: %s: %v", ErrSourceInterrupted, src.Name(), err)
		}
		return io.EOF
	}
	defer f.Close()

	m.FramesRead.Add(1)
	p.lastSize = f.Size()

	start := time.Now()
	detections, err := p.opts.Detector.Infer(ctx, f)
	m.ObserveInference(time.Since(start))
	if err != nil {
		m.DetectErrors.Add(1)
		if !errors.Is(err, ai.ErrDetect) {
			err = fmt.Errorf("%w: %v", ai.ErrDetect, err)
		}
		return err
	}
	m.FramesProcessed.Add(1)

	decision := p.opts.Evaluator.Evaluate(detections)
	if decision.Trigger {
		m.Trigger(decision.Label)
		err := p.opts.Recorder.Trigger(decision.Label, f.Size())
		if err != nil && !p.sinkFailed {
			m.SinkErrors.Add(1)
			p.opts.Logger.Error("Failed to start recording (%s): %v", decision.Label, err)
		}
		p.sinkFailed = err != nil
	} else {
		p.sinkFailed = false
	}

	if p.opts.Annotator != nil {
		if err := p.opts.Annotator.Annotate(f, detections, decision); err != nil {
			p.opts.Logger.Warning("Failed to annotate frame: %v", err)
		}
	}

	if err := p.opts.Recorder.Feed(f); err != nil {
		m.SinkErrors.Add(1)
		p.opts.Logger.Error("Recording failed: %v", err)
	}
	m.SetRecording(p.opts.Recorder.Recording())

	p.seq++
	if p.opts.Publisher != nil && p.seq%uint64(p.opts.PreviewInterval) == 0 {
		p.opts.Publisher.PublishFrame(f, detections, decision)
		m.PreviewsSent.Add(1)
	}
	return nil
}

// Trigger starts or extends a recording with label, sized like the last
// frame read, or like the source before the first frame. It waits for an
// in-flight tick to finish.
func (p *Pump) Trigger(label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	size := p.lastSize
	if size == (image.Point{}) {
		size = p.opts.Source.Size()
	}
	if size.X <= 0 || size.Y <= 0 {
		return ErrNoFrame
	}
	p.opts.Metrics.Trigger(label)
	if err := p.opts.Recorder.Trigger(label, size); err != nil {
		p.opts.Metrics.SinkErrors.Add(1)
		return err
	}
	p.opts.Metrics.SetRecording(p.opts.Recorder.Recording())
	return nil
}
