// Package dnn runs detection networks in-process through the OpenCV DNN
// module.
package dnn

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"eventcam/internal/frame"
	"eventcam/internal/logger"
	"eventcam/internal/model"
	"eventcam/internal/service/ai"
	"eventcam/internal/service/video"

	"gocv.io/x/gocv"
)

// Output layouts understood by Detector.
const (
	FormatYOLO = "yolo" // [1, 4+classes, anchors], cx/cy/w/h in input pixels
	FormatSSD  = "ssd"  // [1, 1, N, 7], batch/class/score/x1/y1/x2/y2 normalized
)

// Options configures a Detector.
type Options struct {
	Name       string
	ModelPath  string
	ConfigPath string // optional, for two-file formats
	Format     string
	Confidence float64
	Names      model.ClassNames
}

// Detector runs a network through the OpenCV DNN module.
type Detector struct {
	mu         sync.Mutex
	net        gocv.Net
	name       string
	format     string
	inputSize  image.Point
	confidence float32
	names      model.ClassNames
	logger     *logger.Logger
}

// New loads the network and sets the CPU backend.
func New(opts Options, logger *logger.Logger) (*Detector, error) {
	if _, err := os.Stat(opts.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", opts.ModelPath)
	}
	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", opts.ConfigPath)
		}
	}

	d := &Detector{
		name:       opts.Name,
		format:     opts.Format,
		confidence: float32(opts.Confidence),
		names:      opts.Names,
		logger:     logger,
	}
	switch opts.Format {
	case FormatYOLO, "":
		d.format = FormatYOLO
		d.inputSize = image.Pt(640, 640)
	case FormatSSD:
		d.inputSize = image.Pt(300, 300)
	default:
		return nil, fmt.Errorf("unsupported model format: %s", opts.Format)
	}
	if d.confidence <= 0 {
		d.confidence = ai.DetectionThreshold
	}

	net := gocv.ReadNet(opts.ModelPath, opts.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network %s", opts.ModelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	d.net = net
	logger.Info("Detection network %s initialized (%s)", d.name, d.format)
	return d, nil
}

// Infer runs the network on f.
func (d *Detector) Infer(ctx context.Context, f frame.Frame) ([]model.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrDetect, err)
	}
	mf, ok := f.(*video.MatFrame)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported frame type %T", ai.ErrDetect, f)
	}
	mat := mf.Mat()
	if mat.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ai.ErrDetect)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var blob gocv.Mat
	if d.format == FormatSSD {
		blob = gocv.BlobFromImage(mat, 1.0/127.5, d.inputSize, gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	} else {
		blob = gocv.BlobFromImage(mat, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	}
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	if d.format == FormatSSD {
		return d.parseSSD(output, mat.Cols(), mat.Rows()), nil
	}
	return d.parseYOLO(output, mat.Cols(), mat.Rows())
}

// parseSSD reads rows of [batch_id, class_id, confidence, x1, y1, x2, y2].
func (d *Detector) parseSSD(output gocv.Mat, width, height int) []model.Detection {
	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	var results []model.Detection
	for i := 0; i < rows.Rows(); i++ {
		confidence := rows.GetFloatAt(i, 2)
		if confidence < d.confidence {
			continue
		}
		classID := int(rows.GetFloatAt(i, 1))
		results = append(results, model.Detection{
			ClassID: classID,
			Label:   d.names[classID],
			Box: model.Box{
				X1: int(rows.GetFloatAt(i, 3) * float32(width)),
				Y1: int(rows.GetFloatAt(i, 4) * float32(height)),
				X2: int(rows.GetFloatAt(i, 5) * float32(width)),
				Y2: int(rows.GetFloatAt(i, 6) * float32(height)),
			}.Clamp(width, height),
			Confidence: float64(confidence),
		})
	}
	return results
}

// parseYOLO reads a [1, 4+classes, anchors] tensor and applies NMS.
func (d *Detector) parseYOLO(output gocv.Mat, width, height int) ([]model.Detection, error) {
	dims := output.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("%w: unexpected output shape %v", ai.ErrDetect, dims)
	}
	attrs, anchors := dims[1], dims[2]

	data := output.Reshape(1, attrs)
	defer data.Close()

	scaleX := float32(width) / float32(d.inputSize.X)
	scaleY := float32(height) / float32(d.inputSize.Y)

	var (
		boxes   []image.Rectangle
		scores  []float32
		classes []int
	)
	for i := 0; i < anchors; i++ {
		classID, best := 0, float32(0)
		for c := 4; c < attrs; c++ {
			if score := data.GetFloatAt(c, i); score > best {
				classID, best = c-4, score
			}
		}
		if best < d.confidence {
			continue
		}

		cx, cy := data.GetFloatAt(0, i)*scaleX, data.GetFloatAt(1, i)*scaleY
		w, h := data.GetFloatAt(2, i)*scaleX, data.GetFloatAt(3, i)*scaleY
		boxes = append(boxes, image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)))
		scores = append(scores, best)
		classes = append(classes, classID)
	}
	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, d.confidence, ai.NMSThreshold)
	results := make([]model.Detection, 0, len(indices))
	for _, idx := range indices {
		r := boxes[idx]
		results = append(results, model.Detection{
			ClassID:    classes[idx],
			Label:      d.names[classes[idx]],
			Box:        model.Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}.Clamp(width, height),
			Confidence: float64(scores[idx]),
		})
	}
	return results, nil
}

func (d *Detector) Names() model.ClassNames { return d.names }

func (d *Detector) Name() string { return d.name }

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
