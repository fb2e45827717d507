package video

import (
	"image"

	"eventcam/internal/frame"
	"eventcam/internal/service/recorder"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ClipCodec is the FourCC of recorded clips.
const ClipCodec = "mp4v"

// ClipWriter writes frames to an mp4 file.
type ClipWriter struct {
	vw   *gocv.VideoWriter
	size image.Point
}

// OpenClip opens a clip writer; it has the recorder.SinkFactory signature.
func OpenClip(path string, fps float64, size image.Point) (recorder.Sink, error) {
	vw, err := gocv.VideoWriterFile(path, ClipCodec, fps, size.X, size.Y, true)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open video writer %s", path)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, errors.Errorf("video writer %s not opened", path)
	}
	return &ClipWriter{vw: vw, size: size}, nil
}

// Write appends a frame, resizing it when it does not match the clip size.
func (w *ClipWriter) Write(f frame.Frame) error {
	mat, err := matOf(f)
	if err != nil {
		return err
	}

	if f.Size() != w.size {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(mat, &resized, w.size, 0, 0, gocv.InterpolationLinear)
		mat = resized
	}
	return errors.Wrap(w.vw.Write(mat), "failed to write frame")
}

func (w *ClipWriter) Close() error {
	return w.vw.Close()
}
