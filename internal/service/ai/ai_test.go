package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"eventcam/internal/frame"
	"eventcam/internal/frame/frametest"
	"eventcam/internal/model"
)

type stubDetector struct {
	name       string
	detections []model.Detection
	closed     bool
}

func (s *stubDetector) Infer(ctx context.Context, f frame.Frame) ([]model.Detection, error) {
	return append([]model.Detection(nil), s.detections...), nil
}
func (s *stubDetector) Names() model.ClassNames { return model.ClassNames{0: "person"} }
func (s *stubDetector) Name() string            { return s.name }
func (s *stubDetector) Close() error            { s.closed = true; return nil }

// ========================================
// Registry
// ========================================

func TestRegistry_OpenAndToggle(t *testing.T) {
	r := NewRegistry()
	r.Register("seg", func() (Detector, error) { return &stubDetector{name: "seg"}, nil })
	r.Register("det", func() (Detector, error) { return &stubDetector{name: "det"}, nil })

	d, err := r.Open("det")
	if err != nil || d.Name() != "det" {
		t.Fatalf("Open(det) = %v, %v", d, err)
	}

	if _, err := r.Open("pose"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Expected ErrUnknownModel, got %v", err)
	}

	tests := map[string]string{"det": "seg", "seg": "det", "": "det"}
	for current, expected := range tests {
		if got := r.Next(current); got != expected {
			t.Errorf("Next(%q) = %q, expected %q", current, got, expected)
		}
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry()
	loadErr := errors.New("model file not found")
	r.Register("det", func() (Detector, error) { return nil, loadErr })

	if _, err := r.Open("det"); !errors.Is(err, loadErr) {
		t.Errorf("Expected wrapped load error, got %v", err)
	}
	if NewRegistry().Next("det") != "" {
		t.Error("Empty registry should have no next model")
	}
}

func TestRelabel(t *testing.T) {
	stub := &stubDetector{detections: []model.Detection{
		{ClassID: 0, Label: "person"},
		{ClassID: 7, Label: "truck"},
		{ClassID: 9},
	}}
	d := Relabel(stub, model.ClassNames{0: "worker", 9: "pallet"})

	got, err := d.Infer(context.Background(), frametest.New(1, 4, 4))
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	expected := []string{"worker", "truck", "pallet"}
	for i, det := range got {
		if det.Label != expected[i] {
			t.Errorf("detection %d label = %q, expected %q", i, det.Label, expected[i])
		}
	}
	if d.Names()[9] != "pallet" {
		t.Error("Relabel should expose the merged table")
	}

	d.Close()
	if !stub.closed {
		t.Error("Close should reach the wrapped detector")
	}
}

func TestLoadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	os.WriteFile(path, []byte("person\n\nforklift\n  pallet  \n"), 0644)

	names, err := LoadLabels(path)
	if err != nil {
		t.Fatalf("LoadLabels failed: %v", err)
	}
	if len(names) != 3 || names[0] != "person" || names[2] != "forklift" || names[3] != "pallet" {
		t.Errorf("Unexpected names: %v", names)
	}
	if _, ok := names[1]; ok {
		t.Error("Blank line should leave the id unnamed")
	}

	if _, err := LoadLabels(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
}

// ========================================
// Remote inference
// ========================================

func TestRemoteDetector_Infer(t *testing.T) {
	var received InferenceRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&received)

		json.NewEncoder(w).Encode(InferenceResponse{
			LogID: "1",
			Names: map[string]string{"3": "forklift"},
			Results: []InferenceResult{
				{ClassID: 0, Label: "person", Score: 0.9, Location: Location{Left: 0.125, Top: 0.25, Width: 0.25, Height: 0.5}},
				{ClassID: 3, Score: 0.8, Location: Location{Left: 0.5, Top: 0.5, Width: 0.8, Height: 0.8}},
				{ClassID: 5, Score: 0.1, Location: Location{Left: 0.1, Top: 0.1, Width: 0.1, Height: 0.1}},
				{ClassID: 6, Score: 0.9, Location: Location{Left: 0.3, Top: 0.3}},
			},
		})
	}))
	defer server.Close()

	d := NewRemoteDetector("det", server.URL, 0.5, nil)
	dets, err := d.Infer(context.Background(), frametest.New(7, 1000, 500))
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	if received.ModelType != "det" || received.RequestID == "" {
		t.Errorf("Unexpected request: %+v", received)
	}
	if img, err := base64.StdEncoding.DecodeString(received.Image); err != nil || len(img) == 0 {
		t.Errorf("Image should be base64 JPEG, got %q", received.Image)
	}

	if len(dets) != 2 {
		t.Fatalf("Expected 2 detections, got %+v", dets)
	}
	if dets[0].Box != (model.Box{X1: 125, Y1: 125, X2: 375, Y2: 375}) || dets[0].Label != "person" {
		t.Errorf("Unexpected first detection: %+v", dets[0])
	}
	if dets[1].Box != (model.Box{X1: 500, Y1: 250, X2: 1000, Y2: 500}) || dets[1].Label != "forklift" {
		t.Errorf("Second detection should be clamped and named from the response: %+v", dets[1])
	}
}

func TestRemoteDetector_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"errno", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(InferenceResponse{Errno: 2, ErrMsg: "model not loaded"})
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			d := NewRemoteDetector("det", server.URL, 0.5, nil)
			if _, err := d.Infer(context.Background(), frametest.New(1, 10, 10)); !errors.Is(err, ErrDetect) {
				t.Errorf("Expected ErrDetect, got %v", err)
			}
		})
	}
}

func TestRemoteDetector_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(InferenceResponse{})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewRemoteDetector("seg", server.URL, 0.5, nil)
	if _, err := d.Infer(ctx, frametest.New(1, 10, 10)); !errors.Is(err, ErrDetect) {
		t.Errorf("Expected ErrDetect for canceled context, got %v", err)
	}
}
