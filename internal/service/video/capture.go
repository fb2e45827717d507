package video

import (
	"fmt"
	"image"
	"sync"

	"eventcam/internal/frame"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// CameraFPS is the frame rate requested from cameras and used for their
// clips, whatever the driver reports.
const CameraFPS = 30

var (
	// ErrSourceUnavailable is returned when a source cannot be opened.
	ErrSourceUnavailable = errors.New("video source unavailable")
	// ErrReadFailed is returned by Read when no frame could be grabbed.
	ErrReadFailed = errors.New("failed to read frame")
)

// CameraOptions selects a local camera.
type CameraOptions struct {
	Index  int
	CSI    bool // Jetson CSI sensor through nvarguscamerasrc
	Width  int
	Height int
	FPS    int
}

// Capture is an opened video source.
type Capture struct {
	name string
	live bool
	fps  float64
	size image.Point

	mu sync.Mutex
	vc *gocv.VideoCapture
}

// CSIPipeline returns the GStreamer pipeline reading a Jetson CSI sensor
// into BGR frames for appsink.
func CSIPipeline(sensorID, width, height, fps int) string {
	return fmt.Sprintf(
		"nvarguscamerasrc sensor-id=%d ! "+
			"video/x-raw(memory:NVMM), width=%d, height=%d, format=NV12, framerate=%d/1 ! "+
			"nvvidconv flip-method=0 ! video/x-raw, width=%d, height=%d, format=BGRx ! "+
			"videoconvert ! video/x-raw, format=BGR ! appsink",
		sensorID, width, height, fps, width, height)
}

// OpenCamera opens a USB camera by index, or a CSI sensor when opts.CSI is set.
func OpenCamera(opts CameraOptions) (*Capture, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}
	if opts.FPS <= 0 {
		opts.FPS = CameraFPS
	}

	var (
		vc   *gocv.VideoCapture
		err  error
		name string
	)
	if opts.CSI {
		name = fmt.Sprintf("csi:%d", opts.Index)
		vc, err = gocv.OpenVideoCaptureWithAPI(CSIPipeline(opts.Index, opts.Width, opts.Height, opts.FPS), gocv.VideoCaptureGstreamer)
	} else {
		name = fmt.Sprintf("camera:%d", opts.Index)
		vc, err = gocv.OpenVideoCapture(opts.Index)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrSourceUnavailable, "%s: %v", name, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Wrapf(ErrSourceUnavailable, "%s: not opened", name)
	}

	if !opts.CSI {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
		vc.Set(gocv.VideoCaptureFPS, float64(opts.FPS))
	}

	return &Capture{name: name, live: true, fps: CameraFPS, size: reportedSize(vc), vc: vc}, nil
}

// OpenFile opens a video file. Its clips use the frame rate stored in the file.
func OpenFile(path string) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrSourceUnavailable, "file %s: %v", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Wrapf(ErrSourceUnavailable, "file %s: not opened", path)
	}
	return &Capture{name: path, live: false, fps: vc.Get(gocv.VideoCaptureFPS), size: reportedSize(vc), vc: vc}, nil
}

// OpenURL opens a network stream (RTSP, HTTP MJPEG). It is treated as live.
func OpenURL(url string) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, errors.Wrapf(ErrSourceUnavailable, "stream %s: %v", url, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Wrapf(ErrSourceUnavailable, "stream %s: not opened", url)
	}
	return &Capture{name: url, live: true, fps: vc.Get(gocv.VideoCaptureFPS), size: reportedSize(vc), vc: vc}, nil
}

// reportedSize is the frame size the backend announces; zero when unknown.
func reportedSize(vc *gocv.VideoCapture) image.Point {
	w := int(vc.Get(gocv.VideoCaptureFrameWidth))
	h := int(vc.Get(gocv.VideoCaptureFrameHeight))
	if w <= 0 || h <= 0 {
		return image.Point{}
	}
	return image.Pt(w, h)
}

// Read grabs the next frame.
func (c *Capture) Read() (frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil, errors.Wrap(ErrReadFailed, "capture closed")
	}

	mat := gocv.NewMat()
	if ok := c.vc.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, errors.Wrapf(ErrReadFailed, "%s", c.name)
	}
	return NewMatFrame(mat), nil
}

// FPS returns the frame rate the source reported (or CameraFPS for cameras).
func (c *Capture) FPS() float64 { return c.fps }

// Size returns the frame size reported when the source was opened.
func (c *Capture) Size() image.Point { return c.size }

// Live reports whether the source is a device or stream rather than a file.
func (c *Capture) Live() bool { return c.live }

// Name identifies the source in logs and status.
func (c *Capture) Name() string { return c.name }

// Close releases the device or file.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	return err
}
