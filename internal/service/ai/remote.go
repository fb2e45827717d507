package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"eventcam/internal/frame"
	"eventcam/internal/model"

	"github.com/google/uuid"
)

// InferenceRequest is sent to the inference server.
type InferenceRequest struct {
	RequestID string `json:"request_id"`
	Image     string `json:"image"`      // Base64 encoded JPEG
	ModelType string `json:"model_type"` // "det" or "seg"
}

// InferenceResponse is the reply of the inference server.
type InferenceResponse struct {
	LogID   string            `json:"log_id"`
	Errno   int               `json:"errno"`
	ErrMsg  string            `json:"err_msg"`
	Names   map[string]string `json:"names,omitempty"`
	Results []InferenceResult `json:"results"`
}

// InferenceResult is one detection with normalized coordinates.
type InferenceResult struct {
	ClassID  int      `json:"class_id"`
	Label    string   `json:"label"`
	Score    float64  `json:"score"`
	Location Location `json:"location"`
}

// Location is a box in [0,1] image coordinates.
type Location struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RemoteDetector calls an HTTP inference server.
type RemoteDetector struct {
	name       string
	serverURL  string
	confidence float64
	names      model.ClassNames
	client     *http.Client
}

// NewRemoteDetector creates a client for serverURL. names is the class table
// of the served model, if known.
func NewRemoteDetector(name, serverURL string, confidence float64, names model.ClassNames) *RemoteDetector {
	if confidence <= 0 {
		confidence = DetectionThreshold
	}
	return &RemoteDetector{
		name:       name,
		serverURL:  serverURL,
		confidence: confidence,
		names:      names,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Infer posts the JPEG-encoded frame and converts the normalized boxes to
// pixel coordinates of f.
func (d *RemoteDetector) Infer(ctx context.Context, f frame.Frame) ([]model.Detection, error) {
	enc, ok := f.(frame.Encoder)
	if !ok {
		return nil, fmt.Errorf("%w: frame %T cannot be encoded", ErrDetect, f)
	}
	jpeg, err := enc.JPEG()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetect, err)
	}

	body, err := json.Marshal(InferenceRequest{
		RequestID: uuid.NewString(),
		Image:     base64.StdEncoding.EncodeToString(jpeg),
		ModelType: d.name,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %v", ErrDetect, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.serverURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetect, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request to inference server: %v", ErrDetect, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrDetect, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: inference server returned status %d: %s", ErrDetect, resp.StatusCode, preview(payload))
	}

	var response InferenceResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v (response preview: %s)", ErrDetect, err, preview(payload))
	}
	if response.Errno != 0 {
		return nil, fmt.Errorf("%w: inference failed: %s (errno: %d)", ErrDetect, response.ErrMsg, response.Errno)
	}

	size := f.Size()
	detections := make([]model.Detection, 0, len(response.Results))
	for _, result := range response.Results {
		if result.Score < d.confidence {
			continue
		}
		box := model.Box{
			X1: int(result.Location.Left * float64(size.X)),
			Y1: int(result.Location.Top * float64(size.Y)),
			X2: int((result.Location.Left + result.Location.Width) * float64(size.X)),
			Y2: int((result.Location.Top + result.Location.Height) * float64(size.Y)),
		}.Clamp(size.X, size.Y)
		if box.X2 <= box.X1 || box.Y2 <= box.Y1 {
			continue
		}

		label := result.Label
		if label == "" {
			label = d.names[result.ClassID]
		}
		if label == "" {
			label = response.Names[strconv.Itoa(result.ClassID)]
		}
		detections = append(detections, model.Detection{
			ClassID:    result.ClassID,
			Label:      label,
			Box:        box,
			Confidence: result.Score,
		})
	}
	return detections, nil
}

func (d *RemoteDetector) Names() model.ClassNames { return d.names }

func (d *RemoteDetector) Name() string { return d.name }

func (d *RemoteDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

func preview(body []byte) string {
	if len(body) > 200 {
		return string(body[:200]) + "..."
	}
	return string(body)
}
