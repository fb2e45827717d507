// Package video adapts OpenCV capture, encoding and drawing to the frame
// contract used by the recording engine.
package video

import (
	"image"

	"eventcam/internal/frame"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// MatFrame is a frame backed by a gocv.Mat.
type MatFrame struct {
	mat gocv.Mat
}

// NewMatFrame takes ownership of mat.
func NewMatFrame(mat gocv.Mat) *MatFrame {
	return &MatFrame{mat: mat}
}

func (f *MatFrame) Size() image.Point {
	return image.Pt(f.mat.Cols(), f.mat.Rows())
}

func (f *MatFrame) Clone() frame.Frame {
	return &MatFrame{mat: f.mat.Clone()}
}

func (f *MatFrame) Close() error {
	return f.mat.Close()
}

// Mat returns the underlying matrix. It stays owned by the frame.
func (f *MatFrame) Mat() gocv.Mat {
	return f.mat
}

// JPEG encodes the frame as a JPEG image.
func (f *MatFrame) JPEG() ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", f.mat)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode frame")
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}

func matOf(f frame.Frame) (gocv.Mat, error) {
	mf, ok := f.(*MatFrame)
	if !ok {
		return gocv.Mat{}, errors.Errorf("unsupported frame type %T", f)
	}
	if mf.mat.Empty() {
		return gocv.Mat{}, errors.New("empty frame")
	}
	return mf.mat, nil
}
