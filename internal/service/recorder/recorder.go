// Package recorder keeps a rolling pre-roll of frames and turns risk
// triggers into clip files bracketing the event.
package recorder

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"eventcam/internal/frame"
	"eventcam/internal/logger"
	"eventcam/internal/model"

	"github.com/google/uuid"
)

var (
	// ErrSinkOpen is returned when a clip file cannot be created or the
	// pre-roll cannot be written to it.
	ErrSinkOpen = errors.New("failed to open clip sink")
	// ErrSinkWrite is returned when a frame cannot be appended to an open
	// clip. The session is aborted and its file removed.
	ErrSinkWrite = errors.New("failed to write clip frame")
)

// Sink receives the frames of one clip.
type Sink interface {
	Write(f frame.Frame) error
	Close() error
}

// SinkFactory opens a sink writing to path at fps with the given frame size.
type SinkFactory func(path string, fps float64, size image.Point) (Sink, error)

// Notifier is told about every completed clip.
type Notifier interface {
	Notify(event model.Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(event model.Event)

// Notify calls f(event).
func (f NotifierFunc) Notify(event model.Event) { f(event) }

// Options configures a Recorder.
type Options struct {
	Dir         string
	FPS         float64
	PreSeconds  float64
	PostSeconds float64
	NewSink     SinkFactory
	Notifier    Notifier
	Logger      *logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session is an in-flight clip.
type Session struct {
	ID        string
	Label     string
	Path      string
	Size      image.Point
	Remaining int
	Written   int
	StartedAt time.Time
	sink      Sink
}

// Status is a point-in-time view of a Recorder.
type Status struct {
	Recording bool    `json:"recording"`
	SessionID string  `json:"session_id,omitempty"`
	Label     string  `json:"label,omitempty"`
	Path      string  `json:"path,omitempty"`
	Remaining int     `json:"remaining"`
	Written   int     `json:"written"`
	Buffered  int     `json:"buffered"`
	Capacity  int     `json:"capacity"`
	FPS       float64 `json:"fps"`
}

// Recorder is the Idle/Recording state machine of one source connection.
// All methods are safe for concurrent use.
type Recorder struct {
	dir        string
	fps        float64
	postFrames int
	newSink    SinkFactory
	notifier   Notifier
	logger     *logger.Logger
	now        func() time.Time

	mu      sync.Mutex
	buffer  *PreBuffer
	session *Session
}

// New creates an idle Recorder. The frame rate is clamped with ClampFPS.
func New(opts Options) *Recorder {
	fps := ClampFPS(opts.FPS)

	r := &Recorder{
		dir:        opts.Dir,
		fps:        fps,
		postFrames: FrameCount(opts.PostSeconds, fps),
		newSink:    opts.NewSink,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		now:        opts.Now,
		buffer:     NewPreBuffer(FrameCount(opts.PreSeconds, fps)),
	}
	if r.logger == nil {
		r.logger = logger.Discard()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// FPS returns the clamped frame rate used for clips.
func (r *Recorder) FPS() float64 { return r.fps }

// Trigger starts a session for label, or extends the running one.
// size is the frame size of the clip.
func (r *Recorder) Trigger(label string, size image.Point) error {
	r.mu.Lock()

	if r.session != nil {
		r.extendLocked()
		r.mu.Unlock()
		return nil
	}

	if err := r.startLocked(label, size); err != nil {
		r.mu.Unlock()
		return err
	}

	var event *model.Event
	if r.postFrames == 0 {
		event = r.finishLocked()
	}
	r.mu.Unlock()

	r.notify(event)
	return nil
}

// Extend resets the post-roll countdown of the running session. It does
// nothing while idle.
func (r *Recorder) Extend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extendLocked()
}

// Feed adds f to the pre-roll and, while recording, appends it to the clip.
// The clip is closed and announced once the post-roll is exhausted.
func (r *Recorder) Feed(f frame.Frame) error {
	r.mu.Lock()

	r.buffer.Feed(f)

	if r.session == nil {
		r.mu.Unlock()
		return nil
	}

	if err := r.session.sink.Write(f); err != nil {
		s := r.abortLocked()
		r.mu.Unlock()
		return fmt.Errorf("%w: session %s: %v", ErrSinkWrite, s.ID, err)
	}
	r.session.Written++
	r.session.Remaining--

	var event *model.Event
	if r.session.Remaining <= 0 {
		event = r.finishLocked()
	}
	r.mu.Unlock()

	r.notify(event)
	return nil
}

// Stop closes the running session, if any, and announces it.
func (r *Recorder) Stop() {
	r.mu.Lock()
	var event *model.Event
	if r.session != nil {
		event = r.finishLocked()
	}
	r.mu.Unlock()

	r.notify(event)
}

// Close stops the running session and releases the pre-roll.
func (r *Recorder) Close() {
	r.Stop()

	r.mu.Lock()
	r.buffer.Clear()
	r.mu.Unlock()
}

// Recording reports whether a session is in flight.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// Status returns a snapshot of the recorder state.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := Status{
		Buffered: r.buffer.Len(),
		Capacity: r.buffer.Cap(),
		FPS:      r.fps,
	}
	if s := r.session; s != nil {
		status.Recording = true
		status.SessionID = s.ID
		status.Label = s.Label
		status.Path = s.Path
		status.Remaining = s.Remaining
		status.Written = s.Written
	}
	return status
}

func (r *Recorder) startLocked(label string, size image.Point) error {
	if r.newSink == nil {
		return fmt.Errorf("%w: no sink factory", ErrSinkOpen)
	}
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create event directory: %v", ErrSinkOpen, err)
	}

	startedAt := r.now()
	path := uniquePath(r.dir, ClipName(label, startedAt))

	sink, err := r.newSink(path, r.fps, size)
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %s: %v", ErrSinkOpen, path, err)
	}

	snapshot := r.buffer.Snapshot()
	for _, f := range snapshot {
		if err := sink.Write(f); err != nil {
			sink.Close()
			os.Remove(path)
			return fmt.Errorf("%w: pre-roll write to %s: %v", ErrSinkOpen, path, err)
		}
	}

	r.session = &Session{
		ID:        uuid.NewString(),
		Label:     label,
		Path:      path,
		Size:      size,
		Remaining: r.postFrames,
		Written:   len(snapshot),
		StartedAt: startedAt,
		sink:      sink,
	}
	r.logger.Info("Recording started: %s (%s), pre-roll %d frames", filepath.Base(path), label, len(snapshot))
	return nil
}

func (r *Recorder) extendLocked() {
	if r.session == nil {
		return
	}
	r.session.Remaining = r.postFrames
	r.logger.Debug("Recording extended: %s", filepath.Base(r.session.Path))
}

// finishLocked closes the session and returns the event to announce.
func (r *Recorder) finishLocked() *model.Event {
	s := r.session
	r.session = nil

	if err := s.sink.Close(); err != nil {
		r.logger.Error("Failed to close clip %s: %v", s.Path, err)
	}

	event := &model.Event{
		UUID:      s.ID,
		Kind:      model.EventClip,
		Label:     s.Label,
		Filename:  filepath.Base(s.Path),
		FilePath:  s.Path,
		Frames:    s.Written,
		Timestamp: s.StartedAt,
	}
	if info, err := os.Stat(s.Path); err == nil {
		event.FileSize = info.Size()
	}

	r.logger.Info("Recording saved: %s (%d frames)", event.Filename, s.Written)
	return event
}

func (r *Recorder) abortLocked() *Session {
	s := r.session
	r.session = nil
	if err := s.sink.Close(); err != nil {
		r.logger.Error("Failed to close aborted clip %s: %v", s.Path, err)
	}
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		r.logger.Error("Failed to remove aborted clip %s: %v", s.Path, err)
	}
	r.logger.Warning("Recording aborted: %s after %d frames", filepath.Base(s.Path), s.Written)
	return s
}

func (r *Recorder) notify(event *model.Event) {
	if event == nil || r.notifier == nil {
		return
	}
	r.notifier.Notify(*event)
}
