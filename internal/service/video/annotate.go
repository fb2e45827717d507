package video

import (
	"fmt"
	"image"
	"image/color"

	"eventcam/internal/frame"
	"eventcam/internal/model"
	"eventcam/internal/service/risk"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	boxColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	riskColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// Annotator draws detections and the collision warning onto frames in place.
type Annotator struct{}

// Annotate draws a box and "label:score" per detection, plus
// "COLLISION RISK!" when the proximity rule fired.
func (Annotator) Annotate(f frame.Frame, detections []model.Detection, decision risk.Decision) error {
	mf, ok := f.(*MatFrame)
	if !ok {
		return errors.Errorf("unsupported frame type %T", f)
	}
	mat := &mf.mat

	for _, det := range detections {
		if err := gocv.Rectangle(mat, det.Box.Rect(), boxColor, 2); err != nil {
			return errors.Wrap(err, "failed to draw rectangle")
		}

		label := fmt.Sprintf("%s:%.2f", det.ResolvedLabel(), det.Confidence)
		pt := image.Pt(det.Box.X1, max(det.Box.Y1-5, 10))
		if err := gocv.PutText(mat, label, pt, gocv.FontHersheySimplex, 0.5, boxColor, 1); err != nil {
			return errors.Wrap(err, "failed to draw text")
		}
	}

	if decision.Collision {
		if err := gocv.PutText(mat, "COLLISION RISK!", image.Pt(30, 50), gocv.FontHersheySimplex, 1.2, riskColor, 3); err != nil {
			return errors.Wrap(err, "failed to draw warning")
		}
	}
	return nil
}
