package recorder

import (
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"eventcam/internal/frame/frametest"
	"eventcam/internal/model"
)

var testNow = time.Date(2025, 6, 15, 14, 30, 0, 0, time.Local)

var frameSize = image.Pt(640, 480)

type harness struct {
	dir   string
	sinks *frametest.Sinks

	mu     sync.Mutex
	events []model.Event
}

func (h *harness) Events() []model.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.Event(nil), h.events...)
}

func newTestRecorder(t *testing.T, fps, pre, post float64) (*Recorder, *harness) {
	t.Helper()

	h := &harness{dir: filepath.Join(t.TempDir(), "events"), sinks: &frametest.Sinks{}}
	r := New(Options{
		Dir:         h.dir,
		FPS:         fps,
		PreSeconds:  pre,
		PostSeconds: post,
		NewSink: func(path string, fps float64, size image.Point) (Sink, error) {
			sink, err := h.sinks.Open(path, fps, size)
			if err != nil {
				return nil, err
			}
			return sink, nil
		},
		Notifier: NotifierFunc(func(e model.Event) {
			h.mu.Lock()
			h.events = append(h.events, e)
			h.mu.Unlock()
		}),
		Now: func() time.Time { return testNow },
	})
	return r, h
}

func feedRange(t *testing.T, r *Recorder, from, to int) {
	t.Helper()
	for seq := from; seq < to; seq++ {
		if err := r.Feed(frametest.New(seq, frameSize.X, frameSize.Y)); err != nil {
			t.Fatalf("Feed(%d) failed: %v", seq, err)
		}
	}
}

func seqRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ========================================
// FPS / sizing
// ========================================

func TestClampFPS(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{math.NaN(), 30},
		{math.Inf(1), 30},
		{math.Inf(-1), 30},
		{-1, 30},
		{0, 30},
		{1, 5},
		{5, 5},
		{25, 25},
		{29.97, 29.97},
		{61, 60},
		{120, 60},
	}

	for _, tt := range tests {
		if got := ClampFPS(tt.input); got != tt.expected {
			t.Errorf("ClampFPS(%v) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		seconds, fps float64
		expected     int
	}{
		{5, 30, 150},
		{0, 30, 0},
		{-2, 30, 0},
		{0.5, 25, 13},
		{1, 5, 5},
	}

	for _, tt := range tests {
		if got := FrameCount(tt.seconds, tt.fps); got != tt.expected {
			t.Errorf("FrameCount(%v, %v) = %d, expected %d", tt.seconds, tt.fps, got, tt.expected)
		}
	}
}

// ========================================
// Pre-roll buffer
// ========================================

func TestPreBuffer_KeepsNewestInOrder(t *testing.T) {
	b := NewPreBuffer(3)

	for seq := 1; seq <= 3; seq++ {
		b.Feed(frametest.New(seq, 4, 4))
	}
	first := b.Snapshot()[0].(*frametest.Frame)

	for seq := 4; seq <= 5; seq++ {
		b.Feed(frametest.New(seq, 4, 4))
	}

	if b.Len() != 3 || b.Cap() != 3 {
		t.Fatalf("Expected len 3 cap 3, got %d/%d", b.Len(), b.Cap())
	}

	var got []int
	for _, f := range b.Snapshot() {
		got = append(got, frametest.Seq(f))
	}
	if !equalInts(got, []int{3, 4, 5}) {
		t.Errorf("Expected [3 4 5], got %v", got)
	}
	if !first.Closed() {
		t.Error("Evicted frame should be closed")
	}
}

func TestPreBuffer_StoresCopies(t *testing.T) {
	b := NewPreBuffer(2)
	original := frametest.New(1, 4, 4)
	b.Feed(original)

	if b.Snapshot()[0] == original {
		t.Error("Buffer should hold a clone, not the fed frame")
	}

	b.Clear()
	if original.Closed() {
		t.Error("Clear must not close the caller's frame")
	}
}

func TestPreBuffer_ZeroCapacity(t *testing.T) {
	b := NewPreBuffer(0)
	b.Feed(frametest.New(1, 4, 4))

	if b.Len() != 0 || len(b.Snapshot()) != 0 {
		t.Errorf("Zero capacity buffer should stay empty, got %d", b.Len())
	}
}

func TestPreBuffer_Clear(t *testing.T) {
	b := NewPreBuffer(4)
	for seq := 0; seq < 4; seq++ {
		b.Feed(frametest.New(seq, 4, 4))
	}
	held := b.Snapshot()

	b.Clear()

	if b.Len() != 0 {
		t.Errorf("Expected empty buffer, got %d", b.Len())
	}
	for _, f := range held {
		if !f.(*frametest.Frame).Closed() {
			t.Errorf("Frame %d not closed by Clear", frametest.Seq(f))
		}
	}

	b.Feed(frametest.New(9, 4, 4))
	if got := frametest.Seq(b.Snapshot()[0]); got != 9 {
		t.Errorf("Expected buffer reusable after Clear, got seq %d", got)
	}
}

// ========================================
// Recording state machine
// ========================================

func TestRecorder_PreAndPostRoll(t *testing.T) {
	r, h := newTestRecorder(t, 30, 5, 5)

	feedRange(t, r, 0, 200)
	if err := r.Trigger("collision", frameSize); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	status := r.Status()
	if !status.Recording || status.Written != 150 || status.Remaining != 150 {
		t.Fatalf("Unexpected status after trigger: %+v", status)
	}

	feedRange(t, r, 200, 349)
	if !r.Recording() || len(h.Events()) != 0 {
		t.Fatal("Session ended before the post-roll was exhausted")
	}
	feedRange(t, r, 349, 350)

	if r.Recording() {
		t.Error("Recorder should be idle after the post-roll")
	}

	sinks := h.sinks.Opened()
	if len(sinks) != 1 {
		t.Fatalf("Expected one sink, got %d", len(sinks))
	}
	if got := sinks[0].Seqs(); !equalInts(got, seqRange(50, 350)) {
		t.Errorf("Clip should contain frames 50..349, got %d frames starting at %v", len(got), got[:1])
	}
	if !sinks[0].Closed() {
		t.Error("Sink should be closed")
	}
	if sinks[0].FPS != 30 || sinks[0].Size != frameSize {
		t.Errorf("Sink opened with fps %v size %v", sinks[0].FPS, sinks[0].Size)
	}

	events := h.Events()
	if len(events) != 1 {
		t.Fatalf("Expected one saved event, got %d", len(events))
	}
	e := events[0]
	if e.Kind != model.EventClip || e.Label != "collision" || e.Frames != 300 {
		t.Errorf("Unexpected event: %+v", e)
	}
	if e.Filename != "collision_20250615_143000.mp4" || e.FilePath != filepath.Join(h.dir, e.Filename) {
		t.Errorf("Unexpected clip path: %s", e.FilePath)
	}
	if e.UUID == "" || !e.Timestamp.Equal(testNow) {
		t.Errorf("Event missing id or timestamp: %+v", e)
	}

	feedRange(t, r, 350, 360)
	if got := len(sinks[0].Seqs()); got != 300 {
		t.Errorf("Frames written after the session ended: %d", got)
	}
}

func TestRecorder_ManualTriggerWithoutPreRoll(t *testing.T) {
	r, h := newTestRecorder(t, 30, 0, 1)

	feedRange(t, r, 0, 10)
	if err := r.Trigger("manual", frameSize); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	if got := r.Status().Written; got != 0 {
		t.Errorf("Expected no pre-roll frames, got %d", got)
	}

	feedRange(t, r, 10, 40)

	events := h.Events()
	if len(events) != 1 || events[0].Frames != 30 || events[0].Label != "manual" {
		t.Fatalf("Expected one 30 frame manual clip, got %+v", events)
	}
	if got := h.sinks.Opened()[0].Seqs(); !equalInts(got, seqRange(10, 40)) {
		t.Errorf("Unexpected clip frames: %v", got)
	}
}

func TestRecorder_RetriggerExtendsSession(t *testing.T) {
	r, h := newTestRecorder(t, 10, 0.5, 1)

	feedRange(t, r, 0, 10)
	r.Trigger("forklift", frameSize)
	path := r.Status().Path

	feedRange(t, r, 10, 15)
	if err := r.Trigger("smoking", frameSize); err != nil {
		t.Fatalf("Re-trigger failed: %v", err)
	}

	status := r.Status()
	if status.Remaining != 10 || status.Path != path || status.Label != "forklift" {
		t.Errorf("Re-trigger should reset the countdown only, got %+v", status)
	}

	feedRange(t, r, 15, 24)
	if !r.Recording() {
		t.Fatal("Session ended early after extend")
	}
	feedRange(t, r, 24, 25)

	if len(h.sinks.Opened()) != 1 {
		t.Errorf("Extend must reuse the sink, %d opened", len(h.sinks.Opened()))
	}
	events := h.Events()
	if len(events) != 1 || events[0].Frames != 20 {
		t.Fatalf("Expected one 20 frame clip, got %+v", events)
	}
	if got := h.sinks.Opened()[0].Seqs(); !equalInts(got, seqRange(5, 25)) {
		t.Errorf("Unexpected clip frames: %v", got)
	}
}

func TestRecorder_ExtendWhileIdle(t *testing.T) {
	r, h := newTestRecorder(t, 10, 1, 1)
	r.Extend()

	if r.Recording() || len(h.sinks.Opened()) != 0 {
		t.Error("Extend while idle must not start a session")
	}
}

func TestRecorder_ZeroPostRoll(t *testing.T) {
	r, h := newTestRecorder(t, 10, 0.5, 0)

	feedRange(t, r, 0, 8)
	if err := r.Trigger("fire", frameSize); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	if r.Recording() {
		t.Error("Zero post-roll should close the clip immediately")
	}
	events := h.Events()
	if len(events) != 1 || events[0].Frames != 5 {
		t.Fatalf("Expected one pre-roll only clip, got %+v", events)
	}
}

func TestRecorder_SinkOpenFailure(t *testing.T) {
	r, h := newTestRecorder(t, 10, 0.5, 1)
	h.sinks.OpenErr = errors.New("codec not available")

	feedRange(t, r, 0, 5)
	err := r.Trigger("fire", frameSize)
	if !errors.Is(err, ErrSinkOpen) {
		t.Fatalf("Expected ErrSinkOpen, got %v", err)
	}
	if r.Recording() {
		t.Error("Recorder should stay idle")
	}
	if _, statErr := os.Stat(filepath.Join(h.dir, "fire_20250615_143000.mp4")); !os.IsNotExist(statErr) {
		t.Error("Partial clip file should be removed")
	}
	if len(h.Events()) != 0 {
		t.Error("No event expected for a failed session")
	}

	feedRange(t, r, 5, 7)
	if got := r.Status().Buffered; got != 5 {
		t.Errorf("Buffer should keep running after a failure, got %d", got)
	}
}

func TestRecorder_PreRollWriteFailure(t *testing.T) {
	r, h := newTestRecorder(t, 10, 0.5, 1)
	h.sinks.FailWriteAt = 2

	feedRange(t, r, 0, 5)
	err := r.Trigger("fire", frameSize)
	if !errors.Is(err, ErrSinkOpen) {
		t.Fatalf("Expected ErrSinkOpen, got %v", err)
	}
	if !h.sinks.Opened()[0].Closed() {
		t.Error("Sink should be closed after a pre-roll failure")
	}
	if _, statErr := os.Stat(h.sinks.Opened()[0].Path); !os.IsNotExist(statErr) {
		t.Error("Partial clip file should be removed")
	}
}

func TestRecorder_MidSessionWriteFailure(t *testing.T) {
	r, h := newTestRecorder(t, 10, 0, 1)
	h.sinks.FailWriteAt = 3

	if err := r.Trigger("fire", frameSize); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	feedRange(t, r, 0, 2)

	err := r.Feed(frametest.New(2, frameSize.X, frameSize.Y))
	if !errors.Is(err, ErrSinkWrite) {
		t.Fatalf("Expected ErrSinkWrite, got %v", err)
	}
	if r.Recording() {
		t.Error("Session should be aborted")
	}
	if len(h.Events()) != 0 {
		t.Error("Aborted session must not emit an event")
	}
	if !h.sinks.Opened()[0].Closed() {
		t.Error("Aborted sink should be closed")
	}

	if _, statErr := os.Stat(h.sinks.Opened()[0].Path); !os.IsNotExist(statErr) {
		t.Error("Aborted clip file should be removed")
	}

	// The name is free again for a new session in the same second.
	h.sinks.FailWriteAt = 0
	if err := r.Trigger("fire", frameSize); err != nil {
		t.Fatalf("Trigger after abort failed: %v", err)
	}
	if got := filepath.Base(r.Status().Path); got != "fire_20250615_143000.mp4" {
		t.Errorf("Expected the unsuffixed clip name, got %s", got)
	}
}

func TestRecorder_StopDrains(t *testing.T) {
	r, h := newTestRecorder(t, 10, 0, 10)

	r.Trigger("manual", frameSize)
	feedRange(t, r, 0, 3)
	r.Stop()
	r.Stop()

	events := h.Events()
	if len(events) != 1 || events[0].Frames != 3 {
		t.Fatalf("Expected one drained 3 frame clip, got %+v", events)
	}
	if r.Recording() {
		t.Error("Recorder should be idle after Stop")
	}
}

func TestRecorder_CloseReleasesBuffer(t *testing.T) {
	r, h := newTestRecorder(t, 10, 1, 1)
	feedRange(t, r, 0, 10)
	r.Trigger("manual", frameSize)

	r.Close()

	if len(h.Events()) != 1 {
		t.Error("Close should drain the session")
	}
	if got := r.Status().Buffered; got != 0 {
		t.Errorf("Close should empty the buffer, got %d", got)
	}
}

func TestRecorder_SanitizesLabel(t *testing.T) {
	r, h := newTestRecorder(t, 10, 0, 0)

	r.Trigger("person/no workwear", frameSize)

	events := h.Events()
	if len(events) != 1 {
		t.Fatalf("Expected one event, got %d", len(events))
	}
	if events[0].Filename != "person-no-workwear_20250615_143000.mp4" {
		t.Errorf("Unexpected filename %s", events[0].Filename)
	}
	if events[0].Label != "person/no workwear" {
		t.Errorf("Event should keep the original label, got %q", events[0].Label)
	}
}

func TestRecorder_ConcurrentTriggerAndFeed(t *testing.T) {
	r, h := newTestRecorder(t, 30, 0.2, 0.2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for seq := 0; seq < 300; seq++ {
			r.Feed(frametest.New(seq, 8, 8))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			r.Trigger("manual", image.Pt(8, 8))
			_ = r.Status()
		}
	}()
	wg.Wait()
	r.Stop()

	for _, sink := range h.sinks.Opened() {
		if !sink.Closed() {
			t.Errorf("Sink %s left open", sink.Path)
		}
	}
	if len(h.Events()) != len(h.sinks.Opened()) {
		t.Errorf("Expected one event per sink, got %d events for %d sinks", len(h.Events()), len(h.sinks.Opened()))
	}
}

// ========================================
// Naming
// ========================================

func TestSanitizeLabel(t *testing.T) {
	tests := map[string]string{
		"collision":          "collision",
		"a/b\\c d:e":         "a-b-c-d-e",
		"  manual ":          "manual",
		"":                   "event",
		"..":                 "event",
		"smoking in no zone": "smoking-in-no-zone",
	}
	for input, expected := range tests {
		if got := SanitizeLabel(input); got != expected {
			t.Errorf("SanitizeLabel(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestParseClipName(t *testing.T) {
	label, at, err := ParseClipName("cargo_collapse_20250615_143000.mp4")
	if err != nil {
		t.Fatalf("ParseClipName failed: %v", err)
	}
	if label != "cargo_collapse" || !at.Equal(testNow) {
		t.Errorf("Got %q %v", label, at)
	}

	label, at, err = ParseClipName("/events/fire_20250615_143000_2.mp4")
	if err != nil || label != "fire" || !at.Equal(testNow) {
		t.Errorf("Collision suffix: got %q %v %v", label, at, err)
	}

	for _, name := range []string{"clip.mp4", "fire_2025_bad.mp4", "fire_20250615.mp4", "fire_x_20250615_2.mp4"} {
		if _, _, err := ParseClipName(name); err == nil {
			t.Errorf("Expected error for %q", name)
		}
	}
}
