// Package frametest provides in-memory frames for tests that exercise the
// recording engine without a capture backend.
package frametest

import (
	"errors"
	"image"
	"os"
	"sync"
	"sync/atomic"

	"eventcam/internal/frame"
)

// Frame is a fake frame identified by Seq. Clones keep the same Seq so a
// sink can check what it received.
type Frame struct {
	Seq    int
	W, H   int
	closed atomic.Bool
}

// New returns a fake frame of the given size.
func New(seq, w, h int) *Frame {
	return &Frame{Seq: seq, W: w, H: h}
}

func (f *Frame) Size() image.Point { return image.Pt(f.W, f.H) }

func (f *Frame) Clone() frame.Frame {
	return &Frame{Seq: f.Seq, W: f.W, H: f.H}
}

func (f *Frame) Close() error {
	f.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (f *Frame) Closed() bool { return f.closed.Load() }

// JPEG returns a tiny placeholder payload.
func (f *Frame) JPEG() ([]byte, error) {
	return []byte{0xFF, 0xD8, byte(f.Seq), 0xFF, 0xD9}, nil
}

// Seq returns the sequence number of a fake frame, or -1 for other frames.
func Seq(f frame.Frame) int {
	if ff, ok := f.(*Frame); ok {
		return ff.Seq
	}
	return -1
}

// Sink records the sequence numbers of the frames written to it.
type Sink struct {
	Path string
	FPS  float64
	Size image.Point

	mu      sync.Mutex
	seqs    []int
	closed  bool
	failAt  int
	written int
}

// Write records f. It fails on the write number configured in Sinks.
func (s *Sink) Write(f frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("write to closed sink")
	}
	s.written++
	if s.failAt > 0 && s.written == s.failAt {
		return errors.New("disk full")
	}
	s.seqs = append(s.seqs, Seq(f))
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Seqs returns the sequence numbers written so far.
func (s *Sink) Seqs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.seqs...)
}

// Closed reports whether Close was called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sinks opens fake sinks and remembers them. Each opened sink creates an
// empty file at its path.
type Sinks struct {
	// OpenErr makes Open fail after creating the file.
	OpenErr error
	// FailWriteAt makes the n-th write (1-based) of every sink fail.
	FailWriteAt int

	mu     sync.Mutex
	opened []*Sink
}

// Open creates a sink for path.
func (s *Sinks) Open(path string, fps float64, size image.Point) (*Sink, error) {
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return nil, err
	}
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}

	sink := &Sink{Path: path, FPS: fps, Size: size, failAt: s.FailWriteAt}
	s.mu.Lock()
	s.opened = append(s.opened, sink)
	s.mu.Unlock()
	return sink, nil
}

// Opened returns every sink opened so far.
func (s *Sinks) Opened() []*Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Sink(nil), s.opened...)
}

// Source yields Count fake frames, then fails every Read.
type Source struct {
	Count   int
	W, H    int
	Rate    float64
	IsLive  bool
	SrcName string

	mu     sync.Mutex
	next   int
	closed bool
}

func (s *Source) Read() (frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("source closed")
	}
	if s.next >= s.Count {
		return nil, errors.New("no frame")
	}
	f := New(s.next, s.W, s.H)
	s.next++
	return f, nil
}

func (s *Source) FPS() float64      { return s.Rate }
func (s *Source) Live() bool        { return s.IsLive }
func (s *Source) Name() string      { return s.SrcName }
func (s *Source) Size() image.Point { return image.Pt(s.W, s.H) }

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Delivered returns how many frames were read.
func (s *Source) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
