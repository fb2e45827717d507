// Package frame defines the raster frame contract shared by sources, sinks,
// detectors and the recording engine.
package frame

import "image"

// Frame is a captured raster image. Its size is fixed for the lifetime of
// the source connection that produced it.
type Frame interface {
	// Size returns the frame width (X) and height (Y) in pixels.
	Size() image.Point
	// Clone returns an independent deep copy owned by the caller.
	Clone() Frame
	// Close releases the frame's pixel memory.
	Close() error
}

// Encoder is implemented by frames that can render themselves as JPEG.
type Encoder interface {
	JPEG() ([]byte, error)
}
