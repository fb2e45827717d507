package model

import (
	"image"
	"strconv"
)

// Box is a bounding box in integer pixel coordinates.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Center returns the integer center of the box.
func (b Box) Center() image.Point {
	return image.Pt((b.X1+b.X2)/2, (b.Y1+b.Y2)/2)
}

// Clamp limits the box to a width x height image.
func (b Box) Clamp(width, height int) Box {
	return Box{
		X1: min(max(b.X1, 0), width),
		Y1: min(max(b.Y1, 0), height),
		X2: min(max(b.X2, 0), width),
		Y2: min(max(b.Y2, 0), height),
	}
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Detection represents a detected object in a frame.
type Detection struct {
	ClassID    int     `json:"class_id"`
	Label      string  `json:"label"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// ResolvedLabel returns the human-readable label, or the numeric class id
// when the adapter had no name for it.
func (d Detection) ResolvedLabel() string {
	if d.Label != "" {
		return d.Label
	}
	return strconv.Itoa(d.ClassID)
}

// ClassNames maps class ids to labels. A table is built once per adapter
// load and never mutated afterwards.
type ClassNames map[int]string

// Label returns the name for id, or the id itself as a synthetic label.
func (n ClassNames) Label(id int) string {
	if name, ok := n[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}
