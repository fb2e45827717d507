package recorder

import (
	"math"

	"eventcam/internal/frame"
)

const (
	// MinFPS and MaxFPS bound the frame rate used for buffer sizing and
	// clip encoding.
	MinFPS = 5
	MaxFPS = 60
	// DefaultFPS replaces a missing or invalid source frame rate.
	DefaultFPS = 30
)

// ClampFPS returns fps bounded to [MinFPS, MaxFPS], or DefaultFPS when the
// source reported NaN, an infinity or a non-positive rate.
func ClampFPS(fps float64) float64 {
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		return DefaultFPS
	}
	return math.Max(MinFPS, math.Min(MaxFPS, fps))
}

// FrameCount converts a duration in seconds to a frame count at fps.
func FrameCount(seconds, fps float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * fps))
}

// PreBuffer keeps clones of the most recent frames in a fixed-size ring.
// It is not safe for concurrent use; Recorder serializes access.
type PreBuffer struct {
	frames []frame.Frame
	start  int
	size   int
}

// NewPreBuffer returns a buffer holding at most capacity frames.
// A zero capacity is valid and keeps nothing.
func NewPreBuffer(capacity int) *PreBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &PreBuffer{frames: make([]frame.Frame, capacity)}
}

// Feed stores a clone of f, evicting and closing the oldest frame when full.
func (b *PreBuffer) Feed(f frame.Frame) {
	capacity := len(b.frames)
	if capacity == 0 {
		return
	}

	if b.size < capacity {
		b.frames[(b.start+b.size)%capacity] = f.Clone()
		b.size++
		return
	}

	b.frames[b.start].Close()
	b.frames[b.start] = f.Clone()
	b.start = (b.start + 1) % capacity
}

// Snapshot returns the buffered frames oldest first. The frames stay owned
// by the buffer and are only valid until the next Feed or Clear.
func (b *PreBuffer) Snapshot() []frame.Frame {
	out := make([]frame.Frame, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.frames[(b.start+i)%len(b.frames)])
	}
	return out
}

// Len returns the number of buffered frames.
func (b *PreBuffer) Len() int { return b.size }

// Cap returns the buffer capacity.
func (b *PreBuffer) Cap() int { return len(b.frames) }

// Clear closes and drops every buffered frame.
func (b *PreBuffer) Clear() {
	for i := 0; i < b.size; i++ {
		idx := (b.start + i) % len(b.frames)
		b.frames[idx].Close()
		b.frames[idx] = nil
	}
	b.start, b.size = 0, 0
}
